package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/interview-engine/internal/interview"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/storage"
)

type recordingCanceller struct {
	mu        sync.Mutex
	cancelled []string
	fail      map[string]error
}

func (c *recordingCanceller) Cancel(ctx context.Context, sessionID string) (*interview.Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[sessionID]; err != nil {
		return nil, err
	}
	c.cancelled = append(c.cancelled, sessionID)
	return &interview.Transition{}, nil
}

func (c *recordingCanceller) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cancelled...)
}

func seedSession(t *testing.T, repo *storage.MemoryRepository, id string, status models.SessionStatus, updated time.Time) {
	t.Helper()
	require.NoError(t, repo.CreateSession(context.Background(), &models.Session{
		ID:        id,
		Position:  "Backend Developer",
		Roles:     []models.Role{models.RoleTechnical},
		Status:    status,
		CreatedAt: updated,
		UpdatedAt: updated,
	}))
}

func TestSweepCancelsIdleSessions(t *testing.T) {
	repo := storage.NewMemoryRepository()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedSession(t, repo, "stale", models.SessionActive, now.Add(-3*time.Hour))
	seedSession(t, repo, "fresh", models.SessionActive, now.Add(-10*time.Minute))
	seedSession(t, repo, "done", models.SessionCompleted, now.Add(-5*time.Hour))

	canceller := &recordingCanceller{}
	s := NewSweeper(repo, canceller, "@every 1h", 2*time.Hour)
	s.now = func() time.Time { return now }

	assert.Equal(t, 1, s.Sweep(context.Background()))
	assert.Equal(t, []string{"stale"}, canceller.ids())
}

func TestSweepSkipsFailures(t *testing.T) {
	repo := storage.NewMemoryRepository()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedSession(t, repo, "raced", models.SessionActive, now.Add(-4*time.Hour))
	seedSession(t, repo, "broken", models.SessionActive, now.Add(-3*time.Hour))
	seedSession(t, repo, "stale", models.SessionActive, now.Add(-2*time.Hour-time.Minute))

	canceller := &recordingCanceller{fail: map[string]error{
		"raced":  interview.ErrSessionNotActive,
		"broken": errors.New("database unavailable"),
	}}
	s := NewSweeper(repo, canceller, "@every 1h", 2*time.Hour)
	s.now = func() time.Time { return now }

	assert.Equal(t, 1, s.Sweep(context.Background()))
	assert.Equal(t, []string{"stale"}, canceller.ids())
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	repo := storage.NewMemoryRepository()
	seedSession(t, repo, "stale", models.SessionActive, time.Now().Add(-3*time.Hour))

	canceller := &recordingCanceller{}
	s := NewSweeper(repo, canceller, "@every 1h", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	assert.Eventually(t, func() bool { return len(canceller.ids()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewSweeper(storage.NewMemoryRepository(), &recordingCanceller{}, "whenever", time.Hour)
	assert.Error(t, s.Start(context.Background()))
}
