package storage

import (
	"context"
	"errors"
	"time"

	"github.com/terra-clan/interview-engine/internal/models"
)

// ErrReportExists is returned when a report version is written twice
var ErrReportExists = errors.New("report version already exists")

// Repository defines the interface for interview persistence. Getters return
// nil, nil when the record does not exist.
type Repository interface {
	// Sessions
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	UpdateSession(ctx context.Context, s *models.Session) error
	ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error)
	ListIdleSessions(ctx context.Context, idleSince time.Time) ([]*models.Session, error)

	// Messages are append-only and ordered by sequence
	AppendMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, sessionID string, afterSeq int64) ([]*models.Message, error)

	// Feedback, at most one record per role. Saving a role twice keeps the first.
	SaveFeedback(ctx context.Context, f *models.FeedbackRecord) error
	ListFeedback(ctx context.Context, sessionID string) ([]*models.FeedbackRecord, error)

	// Reports are create-only; the highest version is current
	CreateReport(ctx context.Context, r *models.AssessmentReport) error
	GetLatestReport(ctx context.Context, sessionID string) (*models.AssessmentReport, error)

	// API Clients
	GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error)
	UpdateClientLastUsed(ctx context.Context, apiKey string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
