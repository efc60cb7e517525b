package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/interview-engine/internal/interview"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/router"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const streamWriteWait = 10 * time.Second

// streamConn serializes writes; gorilla allows one concurrent writer
type streamConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *streamConn) send(event models.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal stream event", "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send stream event", "error", err)
		return err
	}
	return nil
}

func (c *streamConn) closeNormal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
}

// handleStream upgrades to a WebSocket that replays the transcript after the
// "after" sequence, then streams live messages. Clients may submit candidate
// messages over the same socket.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var after int64
	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		parsed, err := strconv.ParseInt(afterStr, 10, 64)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "validation_error", "after must be a non-negative sequence number")
			return
		}
		after = parsed
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := s.sessions.Subscribe(ctx, id, after)
	if err != nil {
		respondSessionError(w, err, "subscribe", id)
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("stream websocket connected", "session_id", id, "after", after)

	out := &streamConn{conn: conn}
	if err := out.send(models.StreamEvent{Type: models.StreamConnected, LastSequence: after}); err != nil {
		return
	}

	var wg sync.WaitGroup

	// Subscription -> WebSocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		// Unblocks the reader below
		defer conn.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Messages():
				if !ok {
					if errors.Is(sub.Err(), router.ErrSubscriberLagged) {
						out.send(models.StreamEvent{
							Type:         models.StreamError,
							Data:         "lagged",
							LastSequence: sub.LastSequence(),
						})
					}
					out.closeNormal()
					return
				}
				if err := out.send(models.StreamEvent{Type: models.StreamMessage, Message: msg}); err != nil {
					return
				}
			}
		}
	}()

	// WebSocket -> router
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}

			var event models.StreamEvent
			if err := json.Unmarshal(data, &event); err != nil {
				slog.Debug("invalid stream frame", "error", err)
				continue
			}

			switch event.Type {
			case models.StreamSubmit:
				if _, err := s.sessions.Submit(ctx, id, event.Data); err != nil {
					out.send(models.StreamEvent{Type: models.StreamError, Data: streamErrorCode(err)})
				}
			default:
				slog.Debug("ignoring stream frame", "type", event.Type)
			}
		}
	}()

	wg.Wait()
	slog.Info("stream websocket disconnected", "session_id", id, "last_sequence", sub.LastSequence())
}

func streamErrorCode(err error) string {
	switch {
	case errors.Is(err, interview.ErrSessionNotActive):
		return "session_not_active"
	case errors.Is(err, interview.ErrStageChanged):
		return "stage_changed"
	case errors.Is(err, interview.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		slog.Error("stream submit failed", "error", err)
		return "internal_error"
	}
}
