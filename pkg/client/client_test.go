package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/interview-engine/internal/models"
)

func writeEnvelope(t *testing.T, w http.ResponseWriter, status int, data interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{
		"success": status < 300,
		"data":    data,
	}))
}

func TestCreateSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/sessions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req models.CreateSessionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Backend Developer", req.Position)

		writeEnvelope(t, w, http.StatusCreated, models.CreateSessionResponse{
			Session:  &models.Session{ID: "s-1", Position: req.Position, Status: models.SessionActive},
			Messages: []*models.Message{{Sequence: 1, Sender: models.SenderSystem, Content: "Welcome"}},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL+"/", "secret")
	resp, err := c.CreateSession(context.Background(), models.CreateSessionRequest{Position: "Backend Developer"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", resp.Session.ID)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "Welcome", resp.Messages[0].Content)
}

func TestListSessionsQuery(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "completed", r.URL.Query().Get("status"))
		assert.Equal(t, "Data Scientist", r.URL.Query().Get("position"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Empty(t, r.URL.Query().Get("offset"))

		writeEnvelope(t, w, http.StatusOK, models.SessionListResponse{
			Sessions: []*models.Session{{ID: "a"}, {ID: "b"}},
			Total:    2,
		})
	}))
	defer ts.Close()

	sessions, err := NewClient(ts.URL, "").ListSessions(context.Background(), ListOptions{
		Status:   models.SessionCompleted,
		Position: "Data Scientist",
		Limit:    5,
	})
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success":false,"error":{"code":"session_not_active","message":"session is not active"}}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, "k").SendMessage(context.Background(), "s-1", "hello")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "session_not_active", apiErr.Code)
}

func TestNonEnvelopeError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	err := NewClient(ts.URL, "").Health(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "http_error", apiErr.Code)
	assert.Contains(t, apiErr.Message, "bad gateway")
}

func TestStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sessions/s-1/stream", r.URL.Path)
		assert.Equal(t, "4", r.URL.Query().Get("after"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		assert.NoError(t, conn.WriteJSON(models.StreamEvent{Type: models.StreamConnected, LastSequence: 4}))

		var in models.StreamEvent
		if !assert.NoError(t, conn.ReadJSON(&in)) {
			return
		}
		assert.Equal(t, models.StreamSubmit, in.Type)

		assert.NoError(t, conn.WriteJSON(models.StreamEvent{
			Type:    models.StreamMessage,
			Message: &models.Message{Sequence: 5, Sender: models.SenderCandidate, Content: in.Data},
		}))
	}))
	defer ts.Close()

	stream, err := NewClient(ts.URL, "k").Stream(context.Background(), "s-1", 4)
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, models.StreamConnected, ev.Type)

	require.NoError(t, stream.Submit("my answer"))
	ev, err = stream.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(5), ev.Message.Sequence)
	assert.Equal(t, "my answer", ev.Message.Content)
}

func TestStreamRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":{"code":"not_found","message":"session not found"}}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, "").Stream(context.Background(), "missing", 0)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "not_found", apiErr.Code)
}
