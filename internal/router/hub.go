package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/terra-clan/interview-engine/internal/models"
)

// DefaultBuffer is the live message buffer of a subscription
const DefaultBuffer = 64

// MessageSource reads persisted transcripts
type MessageSource interface {
	Transcript(ctx context.Context, id string, afterSeq int64) ([]*models.Message, error)
	GetStatus(ctx context.Context, id string) (*models.SessionStatusView, error)
}

// Hub fans messages out to per-session topics. A topic exists while it has
// at least one subscriber.
type Hub struct {
	source MessageSource
	buffer int

	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	sessionID string

	mu   sync.Mutex
	subs map[*Subscription]struct{}
	// last is the highest sequence fanned out; anything at or below it is
	// already stored and visible to a replaying subscriber
	last int64
}

// NewHub creates a hub reading history from source
func NewHub(source MessageSource, buffer int) *Hub {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	return &Hub{
		source: source,
		buffer: buffer,
		topics: make(map[string]*topic),
	}
}

// Subscribe attaches a listener that first receives stored messages with a
// sequence above after, then live ones. The subscription closes when ctx is
// done.
func (h *Hub) Subscribe(ctx context.Context, sessionID string, after int64) (*Subscription, error) {
	status, err := h.source.GetStatus(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if after < 0 {
		after = 0
	}

	sub := newSubscription(sessionID, after, h.detach)
	h.attach(sub, status.MessageCount)

	history, err := h.source.Transcript(ctx, sessionID, after)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to replay transcript: %w", err)
	}
	sub.finishReplay(history, h.buffer)

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()

	slog.Debug("subscriber attached", "session_id", sessionID, "after", after, "replayed", len(history))
	return sub, nil
}

// Publish delivers stored messages to the session's subscribers in sequence
// order. Gaps are filled from the source; duplicates are dropped.
func (h *Hub) Publish(ctx context.Context, sessionID string, messages []*models.Message) {
	if len(messages) == 0 {
		return
	}

	h.mu.Lock()
	t, ok := h.topics[sessionID]
	h.mu.Unlock()
	if !ok {
		return
	}

	sorted := append([]*models.Message(nil), messages...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	if empty := t.publish(ctx, h.source, sorted); empty {
		h.removeIfEmpty(t)
	}
}

// Topics returns the number of sessions with live subscribers
func (h *Hub) Topics() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}

// Subscribers returns the number of live subscribers of a session
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	t, ok := h.topics[sessionID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (h *Hub) attach(sub *Subscription, lastStored int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[sub.sessionID]
	if !ok {
		t = &topic{
			sessionID: sub.sessionID,
			subs:      make(map[*Subscription]struct{}),
			last:      lastStored,
		}
		h.topics[sub.sessionID] = t
	}

	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
}

func (h *Hub) detach(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[sub.sessionID]
	if !ok {
		return
	}

	t.mu.Lock()
	delete(t.subs, sub)
	empty := len(t.subs) == 0
	t.mu.Unlock()

	if empty {
		delete(h.topics, sub.sessionID)
		slog.Debug("session topic removed", "session_id", sub.sessionID)
	}
}

func (h *Hub) removeIfEmpty(t *topic) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t.mu.Lock()
	empty := len(t.subs) == 0
	t.mu.Unlock()

	if empty && h.topics[t.sessionID] == t {
		delete(h.topics, t.sessionID)
	}
}

// publish fans out sorted messages and reports whether the topic ended up
// without subscribers.
func (t *topic) publish(ctx context.Context, source MessageSource, messages []*models.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range messages {
		if m.Sequence <= t.last {
			continue
		}
		if m.Sequence > t.last+1 {
			t.backfill(ctx, source, m.Sequence)
		}
		t.fanout(m)
	}
	return len(t.subs) == 0
}

// backfill delivers stored messages between the last fanned out sequence
// and before.
func (t *topic) backfill(ctx context.Context, source MessageSource, before int64) {
	missing, err := source.Transcript(ctx, t.sessionID, t.last)
	if err != nil {
		slog.Warn("failed to backfill session topic",
			"session_id", t.sessionID,
			"after", t.last,
			"error", err,
		)
		return
	}
	for _, m := range missing {
		if m.Sequence >= before {
			break
		}
		t.fanout(m)
	}
}

func (t *topic) fanout(m *models.Message) {
	for sub := range t.subs {
		if !sub.offer(m) {
			delete(t.subs, sub)
		}
	}
	t.last = m.Sequence
}
