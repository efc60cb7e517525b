// Package assessment combines interviewer feedback into the final weighted
// report with a level, a recommendation and an improvement plan.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/interview-engine/internal/feedback"
	"github.com/terra-clan/interview-engine/internal/metrics"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/policy"
	"github.com/terra-clan/interview-engine/internal/skills"
	"github.com/terra-clan/interview-engine/internal/storage"
)

// NeutralOverallScore is the overall score when no interviewer counts
const NeutralOverallScore = 50.0

// AggregationDataError means the session could not be read, so no report can
// be built. It is not transient.
type AggregationDataError struct {
	SessionID string
	Err       error
}

func (e *AggregationDataError) Error() string {
	return fmt.Sprintf("cannot aggregate session %s: %v", e.SessionID, e.Err)
}

func (e *AggregationDataError) Unwrap() error {
	return e.Err
}

var errSessionMissing = errors.New("session record not found")

// Aggregator builds and persists assessment reports
type Aggregator struct {
	table      *policy.Table
	analyzer   *skills.Analyzer
	normalizer *feedback.Normalizer
	repo       storage.Repository
	now        func() time.Time
}

// NewAggregator creates an aggregator
func NewAggregator(table *policy.Table, analyzer *skills.Analyzer, normalizer *feedback.Normalizer, repo storage.Repository) *Aggregator {
	return &Aggregator{
		table:      table,
		analyzer:   analyzer,
		normalizer: normalizer,
		repo:       repo,
		now:        time.Now,
	}
}

// Generate returns the session's report, building and storing version 1 only
// when none exists yet.
func (a *Aggregator) Generate(ctx context.Context, sessionID string) (*models.AssessmentReport, error) {
	existing, err := a.repo.GetLatestReport(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	return a.create(ctx, sessionID, 1)
}

// Regenerate forces a new aggregation stored as the next version. Earlier
// versions are kept untouched.
func (a *Aggregator) Regenerate(ctx context.Context, sessionID string) (*models.AssessmentReport, error) {
	existing, err := a.repo.GetLatestReport(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	version := 1
	if existing != nil {
		version = existing.Version + 1
	}
	return a.create(ctx, sessionID, version)
}

func (a *Aggregator) create(ctx context.Context, sessionID string, version int) (*models.AssessmentReport, error) {
	session, err := a.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, &AggregationDataError{SessionID: sessionID, Err: err}
	}
	if session == nil {
		return nil, &AggregationDataError{SessionID: sessionID, Err: errSessionMissing}
	}

	transcript, err := a.repo.ListMessages(ctx, sessionID, 0)
	if err != nil {
		return nil, &AggregationDataError{SessionID: sessionID, Err: err}
	}

	records, err := a.repo.ListFeedback(ctx, sessionID)
	if err != nil {
		return nil, &AggregationDataError{SessionID: sessionID, Err: err}
	}

	report := a.Build(session, transcript, records)
	report.Version = version

	if err := a.repo.CreateReport(ctx, report); err != nil {
		if errors.Is(err, storage.ErrReportExists) {
			// A concurrent writer stored this version first
			return a.repo.GetLatestReport(ctx, sessionID)
		}
		return nil, fmt.Errorf("failed to store report: %w", err)
	}

	metrics.Report(report.Recommendation, report.Degraded)
	slog.Info("assessment report generated",
		"session_id", sessionID,
		"version", report.Version,
		"overall_score", report.OverallScore,
		"level", report.Level,
		"degraded", report.Degraded,
	)

	return report, nil
}

// Build computes a report from already loaded data without storing it
func (a *Aggregator) Build(session *models.Session, transcript []*models.Message, records []*models.FeedbackRecord) *models.AssessmentReport {
	byRole := make(map[models.Role]*models.FeedbackRecord, len(records))
	for _, rec := range records {
		if _, seen := byRole[rec.Role]; !seen {
			byRole[rec.Role] = rec
		}
	}

	roles := uniqueRoles(session.Roles)
	used := make([]*models.FeedbackRecord, 0, len(roles))
	for _, role := range roles {
		rec, ok := byRole[role]
		if !ok {
			slog.Warn("no feedback for interviewer, substituting default",
				"session_id", session.ID,
				"role", role,
			)
			rec = a.normalizer.Default(session.ID, role, models.ReasonMissing)
		}
		used = append(used, rec)
	}

	contributions, overall := a.score(session.ID, used)
	level := a.table.LevelFor(overall)
	dimensions := a.dimensionAverages(used)

	demonstrated := a.analyzer.ExtractDemonstrated(transcript)
	gap := a.analyzer.MatchProfile(demonstrated, session.ResumeSkills, a.table.Profile(session.Position))

	degraded := false
	var strengths, suggestions []string
	for _, rec := range used {
		if rec.IsDefault() {
			degraded = true
		}
		strengths = append(strengths, rec.Strengths...)
		suggestions = append(suggestions, rec.Improvements...)
	}

	return &models.AssessmentReport{
		ID:              uuid.New().String(),
		SessionID:       session.ID,
		Version:         1,
		OverallScore:    overall,
		Level:           level.Name,
		Recommendation:  level.Recommendation,
		DimensionScores: dimensions,
		Contributions:   contributions,
		SkillGap:        gap,
		ImprovementPlan: models.ImprovementPlan{
			PriorityAreas:   a.priorityAreas(dimensions),
			Suggestions:     feedback.CleanList(suggestions),
			SkillsToDevelop: append([]string{}, gap.Gaps...),
		},
		Strengths:   feedback.CleanList(strengths),
		Degraded:    degraded,
		GeneratedAt: a.now().UTC(),
	}
}

// score computes per-interviewer scores and the overall score normalized by
// the role weights actually counted.
func (a *Aggregator) score(sessionID string, records []*models.FeedbackRecord) ([]models.InterviewerContribution, float64) {
	contributions := make([]models.InterviewerContribution, 0, len(records))
	raw := make([]float64, 0, len(records))
	weighted, totalWeight := 0.0, 0.0

	for _, rec := range records {
		roleScore, ok := a.roleScore(sessionID, rec)
		weight, known := a.table.RoleWeight(rec.Role)

		c := models.InterviewerContribution{
			Role:          rec.Role,
			Score:         round(roleScore, 1),
			Weight:        weight,
			Origin:        rec.Origin,
			DefaultReason: rec.DefaultReason,
			Comment:       rec.Comment,
			Counted:       ok && known && weight > 0 && rec.CountsTowardScore(),
		}
		if c.Counted {
			weighted += roleScore * weight
			totalWeight += weight
		}
		contributions = append(contributions, c)
		raw = append(raw, roleScore)
	}

	overall := NeutralOverallScore
	if totalWeight > 0 {
		overall = weighted / totalWeight
	}
	overall = round(math.Max(0, math.Min(100, overall)), 1)

	for i := range contributions {
		if contributions[i].Counted {
			contributions[i].Contribution = round(raw[i]*contributions[i].Weight/totalWeight, 2)
		}
	}

	return contributions, overall
}

// roleScore is the weighted mean of the record's mapped dimensions on a
// 0-100 scale. It reports false when no dimension maps to the role.
func (a *Aggregator) roleScore(sessionID string, rec *models.FeedbackRecord) (float64, bool) {
	sum, weights := 0.0, 0.0
	for dim, score := range rec.Scores {
		w, ok := a.table.DimensionWeight(rec.Role, dim)
		if !ok {
			slog.Warn("ignoring unmapped feedback dimension",
				"session_id", sessionID,
				"role", rec.Role,
				"dimension", dim,
			)
			continue
		}
		sum += score * w
		weights += w
	}
	if weights == 0 {
		return 0, false
	}
	return sum / weights * 10, true
}

// dimensionAverages averages each mapped dimension across counted records
func (a *Aggregator) dimensionAverages(records []*models.FeedbackRecord) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, rec := range records {
		if !rec.CountsTowardScore() {
			continue
		}
		for dim, score := range rec.Scores {
			if _, ok := a.table.DimensionWeight(rec.Role, dim); !ok {
				continue
			}
			sums[dim] += score
			counts[dim]++
		}
	}

	out := make(map[string]float64, len(sums))
	for dim, sum := range sums {
		out[dim] = round(sum/float64(counts[dim])*10, 1)
	}
	return out
}

// priorityAreas lists dimensions below the threshold, lowest first
func (a *Aggregator) priorityAreas(dimensions map[string]float64) []models.PriorityArea {
	areas := make([]models.PriorityArea, 0)
	for dim, score := range dimensions {
		if score < a.table.PriorityThreshold() {
			areas = append(areas, models.PriorityArea{Dimension: dim, Score: score})
		}
	}
	sort.Slice(areas, func(i, j int) bool {
		if areas[i].Score != areas[j].Score {
			return areas[i].Score < areas[j].Score
		}
		return areas[i].Dimension < areas[j].Dimension
	})
	if limit := a.table.MaxPriorityAreas(); limit >= 0 && len(areas) > limit {
		areas = areas[:limit]
	}
	return areas
}

func uniqueRoles(roles []models.Role) []models.Role {
	seen := make(map[models.Role]bool, len(roles))
	out := make([]models.Role, 0, len(roles))
	for _, r := range roles {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
