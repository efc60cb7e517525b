// Package interview runs interview sessions: which interviewer is active,
// message sequencing, turn counting, stage transitions and completion.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/terra-clan/interview-engine/internal/assessment"
	"github.com/terra-clan/interview-engine/internal/config"
	"github.com/terra-clan/interview-engine/internal/feedback"
	"github.com/terra-clan/interview-engine/internal/generator"
	"github.com/terra-clan/interview-engine/internal/metrics"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/policy"
	"github.com/terra-clan/interview-engine/internal/skills"
	"github.com/terra-clan/interview-engine/internal/storage"
)

// Common errors
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotActive    = errors.New("session is not active")
	ErrSessionNotCompleted = errors.New("session is not completed")
	ErrEmptyMessage        = errors.New("message content is empty")
	ErrInvalidRequest      = errors.New("invalid session request")
	ErrReportNotFound      = errors.New("report not found")
	ErrStageChanged        = errors.New("stage changed before the reply was ready")
)

// Manager defines the interface for interview session management
type Manager interface {
	CreateSession(ctx context.Context, req models.CreateSessionRequest, createdBy string) (*models.Session, []*models.Message, error)
	ProcessMessage(ctx context.Context, id, text string) (*Turn, error)
	AdvanceStage(ctx context.Context, id string) (*Transition, error)
	EndSession(ctx context.Context, id string) (*models.AssessmentReport, error)
	CancelSession(ctx context.Context, id string) (*Transition, error)
	GetStatus(ctx context.Context, id string) (*models.SessionStatusView, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	Transcript(ctx context.Context, id string, afterSeq int64) ([]*models.Message, error)
	ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error)
	GetReport(ctx context.Context, id string) (*models.AssessmentReport, error)
	RegenerateReport(ctx context.Context, id string) (*models.AssessmentReport, error)
}

// Turn is the outcome of one candidate message
type Turn struct {
	Candidate *models.Message
	Reply     *models.Message
	// Events holds messages produced by a stage change the turn triggered
	Events  []*models.Message
	Session *models.Session
	Report  *models.AssessmentReport
}

// Messages returns every message the turn appended, in sequence order
func (t *Turn) Messages() []*models.Message {
	if t == nil {
		return nil
	}
	var out []*models.Message
	if t.Candidate != nil {
		out = append(out, t.Candidate)
	}
	if t.Reply != nil {
		out = append(out, t.Reply)
	}
	return append(out, t.Events...)
}

// Transition is the outcome of an explicit stage change or cancellation.
// To is empty when the session became terminal.
type Transition struct {
	From     models.Role
	To       models.Role
	Messages []*models.Message
	Session  *models.Session
	Report   *models.AssessmentReport
}

// stageChange describes a transition applied under the session lock
type stageChange struct {
	from      models.Role
	to        models.Role
	toIndex   int
	completed bool
	message   *models.Message
}

// Orchestrator implements Manager on top of a Repository
type Orchestrator struct {
	cfg        config.InterviewConfig
	table      *policy.Table
	gen        generator.ResponseGenerator
	normalizer *feedback.Normalizer
	aggregator *assessment.Aggregator
	extractor  skills.ResumeExtractor
	repo       storage.Repository
	locks      *lockMap
	flights    singleflight.Group
	now        func() time.Time
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(
	cfg config.InterviewConfig,
	table *policy.Table,
	gen generator.ResponseGenerator,
	normalizer *feedback.Normalizer,
	aggregator *assessment.Aggregator,
	extractor skills.ResumeExtractor,
	repo storage.Repository,
) *Orchestrator {
	if cfg.MaxTurnsPerStage < 1 {
		cfg.MaxTurnsPerStage = 3
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 20 * time.Second
	}
	if cfg.FeedbackTimeout <= 0 {
		cfg.FeedbackTimeout = 30 * time.Second
	}
	if cfg.DefaultDifficulty == "" {
		cfg.DefaultDifficulty = policy.DefaultDifficulty
	}

	return &Orchestrator{
		cfg:        cfg,
		table:      table,
		gen:        gen,
		normalizer: normalizer,
		aggregator: aggregator,
		extractor:  extractor,
		repo:       repo,
		locks:      newLockMap(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession snapshots the stage plan, stores the session and opens the
// first stage with a greeting and the first interviewer's question.
func (o *Orchestrator) CreateSession(ctx context.Context, req models.CreateSessionRequest, createdBy string) (*models.Session, []*models.Message, error) {
	position := strings.TrimSpace(req.Position)
	if position == "" {
		return nil, nil, fmt.Errorf("%w: position is required", ErrInvalidRequest)
	}

	difficulty := strings.ToLower(strings.TrimSpace(req.Difficulty))
	if difficulty == "" {
		difficulty = o.cfg.DefaultDifficulty
	}
	if !o.table.KnownDifficulty(difficulty) {
		return nil, nil, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRequest, req.Difficulty)
	}

	roles := o.table.StagePlan(difficulty)
	if len(req.Roles) > 0 {
		seen := make(map[models.Role]bool, len(req.Roles))
		roles = make([]models.Role, 0, len(req.Roles))
		for _, role := range req.Roles {
			if !o.table.HasRole(role) {
				return nil, nil, fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, role)
			}
			if seen[role] {
				return nil, nil, fmt.Errorf("%w: role %q listed twice", ErrInvalidRequest, role)
			}
			seen[role] = true
			roles = append(roles, role)
		}
	}

	maxTurns := o.cfg.MaxTurnsPerStage
	if req.MaxTurnsPerStage < 0 {
		return nil, nil, fmt.Errorf("%w: max turns per stage must be positive", ErrInvalidRequest)
	}
	if req.MaxTurnsPerStage > 0 {
		maxTurns = req.MaxTurnsPerStage
	}

	var resumeSkills []string
	if o.extractor != nil && strings.TrimSpace(req.ResumeText) != "" {
		resumeSkills = o.extractor.ExtractSkills(req.ResumeText)
	}

	now := o.now()
	session := &models.Session{
		ID:               uuid.New().String(),
		Position:         position,
		Difficulty:       difficulty,
		Roles:            roles,
		MaxTurnsPerStage: maxTurns,
		Status:           models.SessionActive,
		ResumeSkills:     resumeSkills,
		CreatedBy:        createdBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	unlock := o.locks.lock(session.ID)
	if err := o.repo.CreateSession(ctx, session); err != nil {
		unlock()
		return nil, nil, fmt.Errorf("failed to save session: %w", err)
	}

	first := session.ActiveRole()
	greeting := fmt.Sprintf("Interview started for %s. The %s will speak with you first.",
		position, generator.PersonaFor(first).Title)
	started, err := o.appendMessage(ctx, session, models.SenderSystem, first, greeting, false)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	if err := o.saveSession(ctx, session); err != nil {
		unlock()
		return nil, nil, err
	}
	unlock()

	metrics.SessionCreated(difficulty)
	slog.Info("interview session created",
		"session_id", session.ID,
		"position", position,
		"difficulty", difficulty,
		"roles", roles,
		"resume_skills", len(resumeSkills),
	)

	messages := []*models.Message{started}
	opening, current, err := o.openStage(ctx, session.ID, first, 0)
	if err != nil {
		return nil, nil, err
	}
	if opening != nil {
		messages = append(messages, opening)
	}

	return current, messages, nil
}

// ProcessMessage records a candidate message and the active interviewer's
// reply, advancing the stage when its turn limit is reached.
//
// The generator runs outside the session lock. If the session stopped being
// active meanwhile, the reply is discarded and ErrSessionNotActive is
// returned together with a Turn carrying the already stored candidate
// message. If the stage moved on instead, the reply is discarded the same way
// and ErrStageChanged is returned. The Router serializes submissions so its
// callers only see the latter after an explicit advance.
func (o *Orchestrator) ProcessMessage(ctx context.Context, id, text string) (*Turn, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	unlock := o.locks.lock(id)
	session, err := o.load(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}
	if session.Status != models.SessionActive {
		unlock()
		return nil, ErrSessionNotActive
	}

	role := session.ActiveRole()
	stage := session.StageIndex
	candidate, err := o.appendMessage(ctx, session, models.SenderCandidate, "", content, false)
	if err != nil {
		unlock()
		return nil, err
	}
	session.TurnCount++
	if err := o.saveSession(ctx, session); err != nil {
		unlock()
		return nil, err
	}
	transcript, err := o.repo.ListMessages(ctx, id, 0)
	unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	replyText, fallback := o.reply(ctx, id, role, transcript, false)

	// The candidate message is stored, so bookkeeping completes even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)
	turn := &Turn{Candidate: candidate}

	unlock = o.locks.lock(id)
	session, err = o.load(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}
	if session.Status != models.SessionActive {
		unlock()
		slog.Info("discarding reply for inactive session", "session_id", id, "role", role, "status", session.Status)
		turn.Session = session
		return turn, ErrSessionNotActive
	}
	if session.StageIndex != stage {
		unlock()
		slog.Info("discarding reply from previous stage", "session_id", id, "role", role)
		turn.Session = session
		return turn, ErrStageChanged
	}

	reply, err := o.appendMessage(ctx, session, models.SenderInterviewer, role, replyText, fallback)
	if err != nil {
		unlock()
		return nil, err
	}
	turn.Reply = reply
	metrics.Turn(string(role))

	var change *stageChange
	if session.TurnCount >= session.MaxTurnsPerStage {
		change, err = o.transitionLocked(ctx, session)
		if err != nil {
			unlock()
			return nil, err
		}
	}
	if err := o.saveSession(ctx, session); err != nil {
		unlock()
		return nil, err
	}
	turn.Session = session.Clone()
	unlock()

	if change == nil {
		return turn, nil
	}

	slog.Info("stage turn limit reached", "session_id", id, "role", role, "turns", session.TurnCount)
	events, current, report, err := o.afterTransition(ctx, id, change)
	turn.Events = events
	turn.Report = report
	if current != nil {
		turn.Session = current
	}
	return turn, err
}

// AdvanceStage moves to the next interviewer, or completes the session when
// the current stage is the last.
func (o *Orchestrator) AdvanceStage(ctx context.Context, id string) (*Transition, error) {
	unlock := o.locks.lock(id)
	session, err := o.load(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}
	if session.Status != models.SessionActive {
		unlock()
		return nil, ErrSessionNotActive
	}

	change, err := o.transitionLocked(ctx, session)
	if err != nil {
		unlock()
		return nil, err
	}
	if err := o.saveSession(ctx, session); err != nil {
		unlock()
		return nil, err
	}
	snapshot := session.Clone()
	unlock()

	slog.Info("stage advanced", "session_id", id, "from", change.from, "to", change.to, "completed", change.completed)

	events, current, report, err := o.afterTransition(ctx, id, change)
	if current == nil {
		current = snapshot
	}
	tr := &Transition{
		From:     change.from,
		To:       change.to,
		Messages: events,
		Session:  current,
		Report:   report,
	}
	return tr, err
}

// EndSession completes the interview and returns its report. Calling it on a
// completed session returns the existing report.
func (o *Orchestrator) EndSession(ctx context.Context, id string) (*models.AssessmentReport, error) {
	unlock := o.locks.lock(id)
	session, err := o.load(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}

	switch session.Status {
	case models.SessionCancelled:
		unlock()
		return nil, ErrSessionNotActive
	case models.SessionActive:
		if _, err := o.appendMessage(ctx, session, models.SenderSystem, "", "Interview ended.", false); err != nil {
			unlock()
			return nil, err
		}
		o.complete(session)
		if err := o.saveSession(ctx, session); err != nil {
			unlock()
			return nil, err
		}
		metrics.SessionClosed(string(models.SessionCompleted))
		slog.Info("interview ended", "session_id", id, "stage", session.StageIndex)
	}
	unlock()

	return o.finalize(ctx, id)
}

// CancelSession aborts a non-terminal session. No report is produced.
func (o *Orchestrator) CancelSession(ctx context.Context, id string) (*Transition, error) {
	unlock := o.locks.lock(id)
	defer unlock()

	session, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.IsTerminal() {
		return nil, ErrSessionNotActive
	}

	from := session.ActiveRole()
	msg, err := o.appendMessage(ctx, session, models.SenderSystem, "", "Interview cancelled.", false)
	if err != nil {
		return nil, err
	}
	session.Status = models.SessionCancelled
	if err := o.saveSession(ctx, session); err != nil {
		return nil, err
	}

	metrics.SessionClosed(string(models.SessionCancelled))
	slog.Info("interview cancelled", "session_id", id, "stage", session.StageIndex)

	return &Transition{
		From:     from,
		Messages: []*models.Message{msg},
		Session:  session.Clone(),
	}, nil
}

// GetStatus returns a read-only snapshot of progress
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*models.SessionStatusView, error) {
	unlock := o.locks.lock(id)
	defer unlock()

	session, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.SessionStatusView{
		SessionID:        session.ID,
		Position:         session.Position,
		Difficulty:       session.Difficulty,
		Status:           session.Status,
		Roles:            session.Roles,
		StageIndex:       session.StageIndex,
		ActiveRole:       session.ActiveRole(),
		TurnCount:        session.TurnCount,
		MaxTurnsPerStage: session.MaxTurnsPerStage,
		MessageCount:     session.LastSequence,
		CreatedAt:        session.CreatedAt,
		CompletedAt:      session.CompletedAt,
	}, nil
}

// GetSession returns the stored session
func (o *Orchestrator) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return o.load(ctx, id)
}

// Transcript returns messages with a sequence greater than afterSeq
func (o *Orchestrator) Transcript(ctx context.Context, id string, afterSeq int64) ([]*models.Message, error) {
	if _, err := o.load(ctx, id); err != nil {
		return nil, err
	}
	messages, err := o.repo.ListMessages(ctx, id, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// ListSessions returns sessions matching filters
func (o *Orchestrator) ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	sessions, err := o.repo.ListSessions(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// GetReport returns the current report. A completed session whose report was
// never written gets one generated now.
func (o *Orchestrator) GetReport(ctx context.Context, id string) (*models.AssessmentReport, error) {
	session, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}

	report, err := o.repo.GetLatestReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	if report != nil {
		return report, nil
	}
	if session.Status != models.SessionCompleted {
		return nil, ErrReportNotFound
	}
	return o.finalize(ctx, id)
}

// RegenerateReport forces a new report version from the stored data
func (o *Orchestrator) RegenerateReport(ctx context.Context, id string) (*models.AssessmentReport, error) {
	unlock := o.locks.lock(id)
	defer unlock()

	session, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionCompleted {
		return nil, ErrSessionNotCompleted
	}

	report, err := o.aggregator.Regenerate(ctx, id)
	if err != nil {
		return nil, err
	}
	slog.Info("report regenerated", "session_id", id, "version", report.Version)
	return report, nil
}

// transitionLocked applies the next stage change to session. The caller
// holds the session lock and persists the session.
func (o *Orchestrator) transitionLocked(ctx context.Context, session *models.Session) (*stageChange, error) {
	change := &stageChange{from: session.ActiveRole()}

	if session.IsLastStage() {
		msg, err := o.appendMessage(ctx, session, models.SenderSystem, "",
			"Interview complete. Thank you for your time.", false)
		if err != nil {
			return nil, err
		}
		o.complete(session)
		metrics.SessionClosed(string(models.SessionCompleted))
		change.completed = true
		change.message = msg
		return change, nil
	}

	session.StageIndex++
	session.TurnCount = 0
	change.to = session.ActiveRole()
	change.toIndex = session.StageIndex

	text := fmt.Sprintf("Stage %d of %d: the %s takes over.",
		session.StageIndex+1, len(session.Roles), generator.PersonaFor(change.to).Title)
	msg, err := o.appendMessage(ctx, session, models.SenderSystem, change.to, text, false)
	if err != nil {
		return nil, err
	}
	change.message = msg
	return change, nil
}

// afterTransition does the slow work of a stage change outside the lock:
// the leaving interviewer's feedback and the next opening question run
// concurrently; completion produces the report.
func (o *Orchestrator) afterTransition(ctx context.Context, id string, change *stageChange) ([]*models.Message, *models.Session, *models.AssessmentReport, error) {
	events := []*models.Message{change.message}

	if change.completed {
		report, err := o.finalize(ctx, id)
		if err != nil {
			return events, nil, nil, err
		}
		current, err := o.load(ctx, id)
		if err != nil {
			return events, nil, report, err
		}
		return events, current, report, nil
	}

	transcript, err := o.repo.ListMessages(ctx, id, 0)
	if err != nil {
		return events, nil, nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	var (
		g       errgroup.Group
		opening *models.Message
		current *models.Session
	)
	g.Go(func() error {
		// Missing feedback becomes a default record at aggregation
		if err := o.stageFeedback(ctx, id, change.from, transcript); err != nil {
			slog.Error("stage feedback not stored", "session_id", id, "role", change.from, "error", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		opening, current, err = o.openStage(ctx, id, change.to, change.toIndex)
		return err
	})
	if err := g.Wait(); err != nil {
		return events, nil, nil, err
	}

	if opening != nil {
		events = append(events, opening)
	}
	return events, current, nil, nil
}

// openStage generates the opening question for role and appends it if the
// session is still active on that stage.
func (o *Orchestrator) openStage(ctx context.Context, id string, role models.Role, stageIndex int) (*models.Message, *models.Session, error) {
	transcript, err := o.repo.ListMessages(ctx, id, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	text, fallback := o.reply(ctx, id, role, transcript, true)
	ctx = context.WithoutCancel(ctx)

	unlock := o.locks.lock(id)
	defer unlock()

	session, err := o.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if session.Status != models.SessionActive || session.StageIndex != stageIndex {
		return nil, session, nil
	}

	msg, err := o.appendMessage(ctx, session, models.SenderInterviewer, role, text, fallback)
	if err != nil {
		return nil, nil, err
	}
	if err := o.saveSession(ctx, session); err != nil {
		return nil, nil, err
	}
	return msg, session.Clone(), nil
}

// finalize returns the session's report, generating missing feedback for
// every visited stage before aggregating. Concurrent calls for one session
// share a single run.
func (o *Orchestrator) finalize(ctx context.Context, id string) (*models.AssessmentReport, error) {
	ctx = context.WithoutCancel(ctx)

	v, err, _ := o.flights.Do("report:"+id, func() (interface{}, error) {
		return o.finalizeOnce(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.AssessmentReport), nil
}

func (o *Orchestrator) finalizeOnce(ctx context.Context, id string) (*models.AssessmentReport, error) {
	existing, err := o.repo.GetLatestReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	session, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	records, err := o.repo.ListFeedback(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	have := make(map[models.Role]bool, len(records))
	for _, rec := range records {
		have[rec.Role] = true
	}

	visited := session.Roles
	if session.StageIndex+1 < len(visited) {
		visited = visited[:session.StageIndex+1]
	}

	var pending []models.Role
	for _, role := range visited {
		if !have[role] {
			pending = append(pending, role)
		}
	}

	if len(pending) > 0 {
		transcript, err := o.repo.ListMessages(ctx, id, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to load transcript: %w", err)
		}
		var g errgroup.Group
		for _, role := range pending {
			g.Go(func() error {
				return o.stageFeedback(ctx, id, role, transcript)
			})
		}
		if err := g.Wait(); err != nil {
			slog.Error("feedback incomplete, aggregating with defaults", "session_id", id, "error", err)
		}
	}

	unlock := o.locks.lock(id)
	defer unlock()

	report, err := o.aggregator.Generate(ctx, id)
	if err != nil {
		slog.Error("failed to generate report", "session_id", id, "error", err)
		return nil, err
	}
	return report, nil
}

// stageFeedback asks role's interviewer for feedback and stores the
// normalized record, at most once per role. Generation failures store a
// default record instead; only a failed save is returned.
func (o *Orchestrator) stageFeedback(ctx context.Context, id string, role models.Role, transcript []*models.Message) error {
	_, err, _ := o.flights.Do("feedback:"+id+":"+string(role), func() (interface{}, error) {
		records, err := o.repo.ListFeedback(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to list feedback: %w", err)
		}
		for _, rec := range records {
			if rec.Role == role {
				return nil, nil
			}
		}
		return nil, o.generateFeedback(ctx, id, role, transcript)
	})
	return err
}

func (o *Orchestrator) generateFeedback(ctx context.Context, id string, role models.Role, transcript []*models.Message) error {
	genCtx, cancel := context.WithTimeout(ctx, o.cfg.FeedbackTimeout)
	defer cancel()

	start := time.Now()
	raw, err := o.gen.GenerateFeedback(genCtx, role, transcript)
	metrics.ObserveGeneration(generator.OpFeedback, time.Since(start))
	if err != nil {
		reason := failureReason(err)
		metrics.Fallback(generator.OpFeedback, string(role), reason)
		slog.Warn("interviewer feedback failed, using default",
			"session_id", id, "role", role, "reason", reason, "error", err)
	}

	record := o.normalizer.Normalize(id, role, raw, err)
	if err == nil && record.IsDefault() {
		metrics.Fallback(generator.OpFeedback, string(role), string(record.DefaultReason))
		slog.Warn("interviewer feedback unusable, using default", "session_id", id, "role", role)
	}

	if err := o.repo.SaveFeedback(context.WithoutCancel(ctx), record); err != nil {
		return fmt.Errorf("failed to save %s feedback: %w", role, err)
	}
	return nil
}

// reply produces interviewer text for role, substituting a fallback when
// the generator fails or runs past the reply timeout.
func (o *Orchestrator) reply(ctx context.Context, id string, role models.Role, transcript []*models.Message, opening bool) (string, bool) {
	genCtx, cancel := context.WithTimeout(ctx, o.cfg.ReplyTimeout)
	defer cancel()

	start := time.Now()
	text, err := o.gen.GenerateReply(genCtx, role, transcript)
	metrics.ObserveGeneration(generator.OpReply, time.Since(start))

	text = strings.TrimSpace(text)
	if err == nil && text != "" {
		return text, false
	}

	reason := "empty"
	if err != nil {
		reason = failureReason(err)
	}
	metrics.Fallback(generator.OpReply, string(role), reason)
	slog.Warn("interviewer reply failed, using fallback",
		"session_id", id, "role", role, "reason", reason, "error", err)

	if opening {
		return generator.FallbackOpening(role), true
	}
	return generator.FallbackReply(role), true
}

// appendMessage assigns the next sequence and stores a message. The caller
// holds the session lock.
func (o *Orchestrator) appendMessage(ctx context.Context, session *models.Session, sender models.SenderKind, role models.Role, content string, fallback bool) (*models.Message, error) {
	msg := &models.Message{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Sequence:  session.NextSequence(),
		Sender:    sender,
		Role:      role,
		Content:   content,
		Fallback:  fallback,
		CreatedAt: o.now(),
	}
	if err := o.repo.AppendMessage(ctx, msg); err != nil {
		session.LastSequence--
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return msg, nil
}

func (o *Orchestrator) saveSession(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = o.now()
	if err := o.repo.UpdateSession(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (o *Orchestrator) complete(session *models.Session) {
	now := o.now()
	session.Status = models.SessionCompleted
	session.CompletedAt = &now
}

// load fetches a session, mapping unknown or malformed IDs to
// ErrSessionNotFound.
func (o *Orchestrator) load(ctx context.Context, id string) (*models.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}
	session, err := o.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, generator.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
