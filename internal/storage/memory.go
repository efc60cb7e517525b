package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/terra-clan/interview-engine/internal/models"
)

// MemoryRepository is an in-process Repository used when no database is
// configured and in tests. Every value is copied on the way in and out.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	messages map[string][]*models.Message
	feedback map[string][]*models.FeedbackRecord
	reports  map[string][]*models.AssessmentReport
	clients  map[string]*models.ApiClient
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*models.Session),
		messages: make(map[string][]*models.Message),
		feedback: make(map[string][]*models.FeedbackRecord),
		reports:  make(map[string][]*models.AssessmentReport),
		clients:  make(map[string]*models.ApiClient),
	}
}

// AddClient registers an API client
func (r *MemoryRepository) AddClient(c *models.ApiClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *c
	copied.Permissions = append([]string(nil), c.Permissions...)
	r.clients[c.ApiKey] = &copied
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateSession stores a new session
func (r *MemoryRepository) CreateSession(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return fmt.Errorf("failed to create session: %s already exists", s.ID)
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

// GetSession returns a copy of the session or nil when absent
func (r *MemoryRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id].Clone(), nil
}

// UpdateSession replaces the stored session
func (r *MemoryRepository) UpdateSession(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; !exists {
		return fmt.Errorf("session not found: %s", s.ID)
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

// ListSessions returns sessions matching filters, newest first
func (r *MemoryRepository) ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Session
	for _, s := range r.sessions {
		if filters.Status != "" && s.Status != filters.Status {
			continue
		}
		if filters.Position != "" && !strings.EqualFold(s.Position, filters.Position) {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(out) {
			return nil, nil
		}
		out = out[filters.Offset:]
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

// ListIdleSessions returns active sessions not updated since idleSince
func (r *MemoryRepository) ListIdleSessions(ctx context.Context, idleSince time.Time) ([]*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Session
	for _, s := range r.sessions {
		if s.Status == models.SessionActive && s.UpdatedAt.Before(idleSince) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

// AppendMessage appends to the transcript. Sequences must be strictly
// increasing per session.
func (r *MemoryRepository) AppendMessage(ctx context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[m.SessionID]; !exists {
		return fmt.Errorf("failed to append message: session %s not found", m.SessionID)
	}
	list := r.messages[m.SessionID]
	if n := len(list); n > 0 && list[n-1].Sequence >= m.Sequence {
		return fmt.Errorf("failed to append message: sequence %d not after %d", m.Sequence, list[n-1].Sequence)
	}
	copied := *m
	r.messages[m.SessionID] = append(list, &copied)
	return nil
}

// ListMessages returns messages with sequence > afterSeq in order
func (r *MemoryRepository) ListMessages(ctx context.Context, sessionID string, afterSeq int64) ([]*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.messages[sessionID]
	start := sort.Search(len(list), func(i int) bool { return list[i].Sequence > afterSeq })
	out := make([]*models.Message, 0, len(list)-start)
	for _, m := range list[start:] {
		copied := *m
		out = append(out, &copied)
	}
	return out, nil
}

// SaveFeedback stores a role's record unless one already exists
func (r *MemoryRepository) SaveFeedback(ctx context.Context, f *models.FeedbackRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.feedback[f.SessionID] {
		if existing.Role == f.Role {
			return nil
		}
	}
	r.feedback[f.SessionID] = append(r.feedback[f.SessionID], copyFeedback(f))
	return nil
}

// ListFeedback returns the session's records in creation order
func (r *MemoryRepository) ListFeedback(ctx context.Context, sessionID string) ([]*models.FeedbackRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.FeedbackRecord
	for _, f := range r.feedback[sessionID] {
		out = append(out, copyFeedback(f))
	}
	return out, nil
}

// CreateReport stores a new report version
func (r *MemoryRepository) CreateReport(ctx context.Context, rep *models.AssessmentReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.reports[rep.SessionID] {
		if existing.Version == rep.Version {
			return ErrReportExists
		}
	}
	copied := *rep
	r.reports[rep.SessionID] = append(r.reports[rep.SessionID], &copied)
	return nil
}

// GetLatestReport returns the highest version or nil
func (r *MemoryRepository) GetLatestReport(ctx context.Context, sessionID string) (*models.AssessmentReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.AssessmentReport
	for _, rep := range r.reports[sessionID] {
		if latest == nil || rep.Version > latest.Version {
			latest = rep
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

// GetClientByApiKey retrieves an API client by its key
func (r *MemoryRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[apiKey]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

// UpdateClientLastUsed updates the last used timestamp for a client
func (r *MemoryRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[apiKey]; ok {
		now := time.Now().UTC()
		c.LastUsedAt = &now
	}
	return nil
}

func copyFeedback(f *models.FeedbackRecord) *models.FeedbackRecord {
	copied := *f
	copied.Scores = make(map[string]float64, len(f.Scores))
	for k, v := range f.Scores {
		copied.Scores[k] = v
	}
	copied.Strengths = append([]string(nil), f.Strengths...)
	copied.Improvements = append([]string(nil), f.Improvements...)
	return &copied
}
