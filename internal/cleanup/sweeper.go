package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/terra-clan/interview-engine/internal/interview"
	"github.com/terra-clan/interview-engine/internal/models"
)

// IdleLister finds active sessions without activity since a point in time
type IdleLister interface {
	ListIdleSessions(ctx context.Context, idleSince time.Time) ([]*models.Session, error)
}

// Canceller cancels a session and announces it to subscribers
type Canceller interface {
	Cancel(ctx context.Context, sessionID string) (*interview.Transition, error)
}

// Sweeper periodically cancels interviews abandoned by their candidates
type Sweeper struct {
	lister      IdleLister
	canceller   Canceller
	schedule    string
	idleTimeout time.Duration
	cron        *cron.Cron
	now         func() time.Time
}

// NewSweeper creates a new idle session sweeper
func NewSweeper(lister IdleLister, canceller Canceller, schedule string, idleTimeout time.Duration) *Sweeper {
	if schedule == "" {
		schedule = "@every 5m"
	}
	if idleTimeout <= 0 {
		idleTimeout = 2 * time.Hour
	}

	return &Sweeper{
		lister:      lister,
		canceller:   canceller,
		schedule:    schedule,
		idleTimeout: idleTimeout,
		cron:        cron.New(),
		now:         time.Now,
	}
}

// Start schedules the sweep and runs one immediately. The schedule stops
// when ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}

	slog.Info("session sweeper started", "schedule", s.schedule, "idle_timeout", s.idleTimeout)
	s.cron.Start()

	go func() {
		s.Sweep(ctx)
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("session sweeper stopped")
}

// Sweep cancels every active session idle past the timeout and returns how
// many were cancelled.
func (s *Sweeper) Sweep(ctx context.Context) int {
	slog.Debug("running session sweep")

	idle, err := s.lister.ListIdleSessions(ctx, s.now().Add(-s.idleTimeout))
	if err != nil {
		slog.Error("failed to list idle sessions", "error", err)
		return 0
	}

	if len(idle) == 0 {
		slog.Debug("no idle sessions found")
		return 0
	}

	slog.Info("found idle sessions", "count", len(idle))

	cancelled := 0
	for _, session := range idle {
		slog.Info("cancelling idle session",
			"id", session.ID,
			"position", session.Position,
			"stage", session.StageIndex,
			"updated_at", session.UpdatedAt,
		)

		if _, err := s.canceller.Cancel(ctx, session.ID); err != nil {
			if errors.Is(err, interview.ErrSessionNotActive) {
				// Finished between listing and cancelling
				continue
			}
			slog.Error("failed to cancel idle session",
				"error", err,
				"id", session.ID,
			)
			continue
		}

		cancelled++
		slog.Info("idle session cancelled", "id", session.ID)
	}
	return cancelled
}
