package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/interview-engine/internal/models"
)

const uniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	// Set pool configuration
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25 // default
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2 // default
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the underlying pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Sessions ---

const sessionColumns = `id, position, difficulty, roles, stage_index, turn_count, max_turns_per_stage, last_sequence, status, resume_skills, created_by, created_at, updated_at, completed_at`

// CreateSession creates a new session record
func (r *PostgresRepository) CreateSession(ctx context.Context, s *models.Session) error {
	rolesJSON, err := json.Marshal(s.Roles)
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}

	skillsJSON, err := json.Marshal(nonNilStrings(s.ResumeSkills))
	if err != nil {
		return fmt.Errorf("failed to marshal resume skills: %w", err)
	}

	query := `
		INSERT INTO interview_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.Position,
		s.Difficulty,
		rolesJSON,
		s.StageIndex,
		s.TurnCount,
		s.MaxTurnsPerStage,
		s.LastSequence,
		string(s.Status),
		skillsJSON,
		nullString(s.CreatedBy),
		s.CreatedAt,
		s.UpdatedAt,
		nullTime(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSession retrieves a session by ID
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM interview_sessions WHERE id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return s, nil
}

// UpdateSession persists progress fields of an existing session
func (r *PostgresRepository) UpdateSession(ctx context.Context, s *models.Session) error {
	query := `
		UPDATE interview_sessions
		SET stage_index = $2, turn_count = $3, last_sequence = $4, status = $5, updated_at = $6, completed_at = $7
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		s.ID,
		s.StageIndex,
		s.TurnCount,
		s.LastSequence,
		string(s.Status),
		s.UpdatedAt,
		nullTime(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("session not found: %s", s.ID)
	}

	return nil
}

// ListSessions returns sessions matching filters, newest first
func (r *PostgresRepository) ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM interview_sessions WHERE 1=1`
	args := make([]interface{}, 0)
	argNum := 1

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(filters.Status))
		argNum++
	}

	if filters.Position != "" {
		query += fmt.Sprintf(" AND LOWER(position) = LOWER($%d)", argNum)
		args = append(args, filters.Position)
		argNum++
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	return r.querySessions(ctx, "list sessions", query, args...)
}

// ListIdleSessions returns active sessions not updated since idleSince
func (r *PostgresRepository) ListIdleSessions(ctx context.Context, idleSince time.Time) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM interview_sessions
		WHERE status = 'active'
		  AND updated_at < $1
		ORDER BY updated_at ASC
	`

	return r.querySessions(ctx, "get idle sessions", query, idleSince)
}

func (r *PostgresRepository) querySessions(ctx context.Context, op, query string, args ...interface{}) ([]*models.Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var sessions []*models.Session

	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	var statusStr string
	var createdBy sql.NullString
	var completedAt sql.NullTime
	var rolesJSON, skillsJSON []byte

	err := row.Scan(
		&s.ID,
		&s.Position,
		&s.Difficulty,
		&rolesJSON,
		&s.StageIndex,
		&s.TurnCount,
		&s.MaxTurnsPerStage,
		&s.LastSequence,
		&statusStr,
		&skillsJSON,
		&createdBy,
		&s.CreatedAt,
		&s.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = models.SessionStatus(statusStr)
	s.CreatedBy = createdBy.String

	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}

	if err := json.Unmarshal(rolesJSON, &s.Roles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roles: %w", err)
	}

	if skillsJSON != nil {
		if err := json.Unmarshal(skillsJSON, &s.ResumeSkills); err != nil {
			return nil, fmt.Errorf("failed to unmarshal resume skills: %w", err)
		}
	}

	return &s, nil
}

// --- Messages ---

// AppendMessage stores a transcript message. The (session, sequence) key
// rejects reuse of a sequence number.
func (r *PostgresRepository) AppendMessage(ctx context.Context, m *models.Message) error {
	query := `
		INSERT INTO interview_messages (id, session_id, sequence, sender, role, content, fallback, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		m.ID,
		m.SessionID,
		m.Sequence,
		string(m.Sender),
		nullString(string(m.Role)),
		m.Content,
		m.Fallback,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	return nil
}

// ListMessages returns messages with sequence > afterSeq in order
func (r *PostgresRepository) ListMessages(ctx context.Context, sessionID string, afterSeq int64) ([]*models.Message, error) {
	query := `
		SELECT id, session_id, sequence, sender, role, content, fallback, created_at
		FROM interview_messages
		WHERE session_id = $1 AND sequence > $2
		ORDER BY sequence ASC
	`

	rows, err := r.pool.Query(ctx, query, sessionID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)

	for rows.Next() {
		var m models.Message
		var sender string
		var role sql.NullString

		err := rows.Scan(
			&m.ID,
			&m.SessionID,
			&m.Sequence,
			&sender,
			&role,
			&m.Content,
			&m.Fallback,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		m.Sender = models.SenderKind(sender)
		m.Role = models.Role(role.String)
		messages = append(messages, &m)
	}

	return messages, rows.Err()
}

// --- Feedback ---

// SaveFeedback stores a role's feedback record; an existing record wins
func (r *PostgresRepository) SaveFeedback(ctx context.Context, f *models.FeedbackRecord) error {
	scoresJSON, err := json.Marshal(f.Scores)
	if err != nil {
		return fmt.Errorf("failed to marshal scores: %w", err)
	}

	strengthsJSON, err := json.Marshal(nonNilStrings(f.Strengths))
	if err != nil {
		return fmt.Errorf("failed to marshal strengths: %w", err)
	}

	improvementsJSON, err := json.Marshal(nonNilStrings(f.Improvements))
	if err != nil {
		return fmt.Errorf("failed to marshal improvements: %w", err)
	}

	query := `
		INSERT INTO interviewer_feedback (session_id, role, scores, strengths, improvements, comment, origin, default_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, role) DO NOTHING
	`

	_, err = r.pool.Exec(ctx, query,
		f.SessionID,
		string(f.Role),
		scoresJSON,
		strengthsJSON,
		improvementsJSON,
		f.Comment,
		string(f.Origin),
		nullString(string(f.DefaultReason)),
		f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}

	return nil
}

// ListFeedback returns all feedback records of a session
func (r *PostgresRepository) ListFeedback(ctx context.Context, sessionID string) ([]*models.FeedbackRecord, error) {
	query := `
		SELECT session_id, role, scores, strengths, improvements, comment, origin, default_reason, created_at
		FROM interviewer_feedback
		WHERE session_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var records []*models.FeedbackRecord

	for rows.Next() {
		var f models.FeedbackRecord
		var role, origin string
		var reason sql.NullString
		var scoresJSON, strengthsJSON, improvementsJSON []byte

		err := rows.Scan(
			&f.SessionID,
			&role,
			&scoresJSON,
			&strengthsJSON,
			&improvementsJSON,
			&f.Comment,
			&origin,
			&reason,
			&f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}

		f.Role = models.Role(role)
		f.Origin = models.FeedbackOrigin(origin)
		f.DefaultReason = models.DefaultReason(reason.String)

		if err := json.Unmarshal(scoresJSON, &f.Scores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scores: %w", err)
		}
		if err := json.Unmarshal(strengthsJSON, &f.Strengths); err != nil {
			return nil, fmt.Errorf("failed to unmarshal strengths: %w", err)
		}
		if err := json.Unmarshal(improvementsJSON, &f.Improvements); err != nil {
			return nil, fmt.Errorf("failed to unmarshal improvements: %w", err)
		}

		records = append(records, &f)
	}

	return records, rows.Err()
}

// --- Reports ---

// CreateReport inserts a new report version
func (r *PostgresRepository) CreateReport(ctx context.Context, rep *models.AssessmentReport) error {
	reportJSON, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
		INSERT INTO assessment_reports (id, session_id, version, overall, level, report, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.pool.Exec(ctx, query,
		rep.ID,
		rep.SessionID,
		rep.Version,
		rep.OverallScore,
		rep.Level,
		reportJSON,
		rep.GeneratedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrReportExists
		}
		return fmt.Errorf("failed to create report: %w", err)
	}

	return nil
}

// GetLatestReport returns the highest report version of a session
func (r *PostgresRepository) GetLatestReport(ctx context.Context, sessionID string) (*models.AssessmentReport, error) {
	query := `
		SELECT report
		FROM assessment_reports
		WHERE session_id = $1
		ORDER BY version DESC
		LIMIT 1
	`

	var reportJSON []byte
	if err := r.pool.QueryRow(ctx, query, sessionID).Scan(&reportJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var rep models.AssessmentReport
	if err := json.Unmarshal(reportJSON, &rep); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return &rep, nil
}

// --- API Clients ---

// GetClientByApiKey retrieves an API client by its key
func (r *PostgresRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	query := `
		SELECT id, name, api_key, is_active, created_at, last_used_at, permissions, metadata
		FROM api_clients
		WHERE api_key = $1
	`

	var client models.ApiClient
	var lastUsedAt sql.NullTime
	var permissionsJSON, metadataJSON []byte

	err := r.pool.QueryRow(ctx, query, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.ApiKey,
		&client.IsActive,
		&client.CreatedAt,
		&lastUsedAt,
		&permissionsJSON,
		&metadataJSON,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	if lastUsedAt.Valid {
		client.LastUsedAt = &lastUsedAt.Time
	}

	if permissionsJSON != nil {
		if err := json.Unmarshal(permissionsJSON, &client.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &client.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &client, nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *PostgresRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	query := `UPDATE api_clients SET last_used_at = NOW() WHERE api_key = $1`

	_, err := r.pool.Exec(ctx, query, apiKey)
	if err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}

	return nil
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
