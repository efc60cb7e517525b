// Package router serializes work per interview session and broadcasts the
// resulting messages to subscribers, locally and across instances.
package router

import (
	"context"
	"log/slog"

	"github.com/terra-clan/interview-engine/internal/interview"
	"github.com/terra-clan/interview-engine/internal/models"
)

// Relay forwards broadcasts to other engine instances
type Relay interface {
	Publish(ctx context.Context, sessionID string, messages []*models.Message) error
}

// Router is the entry point for session mutations. Submit and Advance are
// serialized per session; End and Cancel never wait behind them.
type Router struct {
	manager interview.Manager
	hub     *Hub
	relay   Relay
	tokens  *tokenMap
}

// New creates a router over manager with a hub of the given buffer size
func New(manager interview.Manager, buffer int) *Router {
	return &Router{
		manager: manager,
		hub:     NewHub(manager, buffer),
		tokens:  newTokenMap(),
	}
}

// Hub returns the local broadcast hub
func (r *Router) Hub() *Hub {
	return r.hub
}

// UseRelay makes every broadcast also go to relay
func (r *Router) UseRelay(relay Relay) {
	r.relay = relay
}

// Create starts a session and announces its opening messages
func (r *Router) Create(ctx context.Context, req models.CreateSessionRequest, createdBy string) (*models.Session, []*models.Message, error) {
	session, messages, err := r.manager.CreateSession(ctx, req, createdBy)
	if err != nil {
		return nil, nil, err
	}
	r.broadcast(ctx, session.ID, messages)
	return session, messages, nil
}

// Submit processes a candidate message. Only one submission per session is
// in flight; others wait for the token or give up with ctx.
func (r *Router) Submit(ctx context.Context, sessionID, text string) (*interview.Turn, error) {
	release, err := r.tokens.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	turn, err := r.manager.ProcessMessage(ctx, sessionID, text)
	if turn != nil {
		r.broadcast(ctx, sessionID, turn.Messages())
	}
	return turn, err
}

// Advance moves the session to its next stage
func (r *Router) Advance(ctx context.Context, sessionID string) (*interview.Transition, error) {
	release, err := r.tokens.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	tr, err := r.manager.AdvanceStage(ctx, sessionID)
	if tr != nil {
		r.broadcast(ctx, sessionID, tr.Messages)
	}
	return tr, err
}

// End completes the session and returns its report
func (r *Router) End(ctx context.Context, sessionID string) (*models.AssessmentReport, error) {
	status, err := r.manager.GetStatus(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	report, err := r.manager.EndSession(ctx, sessionID)

	added, listErr := r.manager.Transcript(context.WithoutCancel(ctx), sessionID, status.MessageCount)
	if listErr != nil {
		slog.Warn("failed to load messages for broadcast", "session_id", sessionID, "error", listErr)
	} else {
		r.broadcast(ctx, sessionID, added)
	}
	return report, err
}

// Cancel aborts the session
func (r *Router) Cancel(ctx context.Context, sessionID string) (*interview.Transition, error) {
	tr, err := r.manager.CancelSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	r.broadcast(ctx, sessionID, tr.Messages)
	return tr, nil
}

// Subscribe attaches a listener to the session's message stream
func (r *Router) Subscribe(ctx context.Context, sessionID string, after int64) (*Subscription, error) {
	return r.hub.Subscribe(ctx, sessionID, after)
}

// broadcast runs after messages are stored, so it completes even when the
// caller's context is gone.
func (r *Router) broadcast(ctx context.Context, sessionID string, messages []*models.Message) {
	if len(messages) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	r.hub.Publish(ctx, sessionID, messages)
	if r.relay != nil {
		if err := r.relay.Publish(ctx, sessionID, messages); err != nil {
			slog.Warn("failed to relay messages", "session_id", sessionID, "count", len(messages), "error", err)
		}
	}
}
