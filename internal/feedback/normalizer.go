// Package feedback turns raw interviewer feedback into canonical records and
// substitutes neutral defaults when an interviewer produced nothing usable.
package feedback

import (
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/terra-clan/interview-engine/internal/generator"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/policy"
)

const (
	minScore = 0
	maxScore = 10
)

// Normalizer builds FeedbackRecords. It holds no mutable state.
type Normalizer struct {
	table *policy.Table
	now   func() time.Time
}

// NewNormalizer creates a normalizer over the scoring policy
func NewNormalizer(table *policy.Table) *Normalizer {
	return &Normalizer{table: table, now: time.Now}
}

// Normalize converts raw generator output into a record. A generation error
// yields a generation_failed default; output without a single usable score
// for the role's dimensions yields a malformed default.
func (n *Normalizer) Normalize(sessionID string, role models.Role, raw *generator.Feedback, genErr error) *models.FeedbackRecord {
	if genErr != nil || raw == nil {
		slog.Warn("feedback generation failed, using default",
			"session_id", sessionID,
			"role", role,
			"error", genErr,
		)
		return n.Default(sessionID, role, models.ReasonGenerationFailed)
	}

	scores := make(map[string]float64, len(raw.Scores))
	mapped := 0
	for name, value := range raw.Scores {
		key := DimensionKey(name)
		if key == "" || math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		scores[key] = clamp(value)
		if _, ok := n.table.DimensionWeight(role, key); ok {
			mapped++
		}
	}

	if mapped == 0 {
		slog.Warn("feedback has no usable scores, using default",
			"session_id", sessionID,
			"role", role,
			"raw_dimensions", len(raw.Scores),
		)
		return n.Default(sessionID, role, models.ReasonMalformed)
	}

	return &models.FeedbackRecord{
		SessionID:    sessionID,
		Role:         role,
		Scores:       scores,
		Strengths:    CleanList(raw.Strengths),
		Improvements: CleanList(raw.Improvements),
		Comment:      strings.TrimSpace(raw.Comment),
		Origin:       models.FeedbackGenerated,
		CreatedAt:    n.now().UTC(),
	}
}

// Default builds the neutral substitute record: every dimension of the role
// at the neutral score and a generic comment.
func (n *Normalizer) Default(sessionID string, role models.Role, reason models.DefaultReason) *models.FeedbackRecord {
	scores := make(map[string]float64)
	for _, dim := range n.table.Dimensions(role) {
		scores[dim] = n.table.NeutralScore()
	}

	comment := "Feedback from this interviewer was unavailable; neutral scores were used."
	if reason == models.ReasonMissing {
		comment = "This interviewer did not take part; the stage is excluded from the overall score."
	}

	return &models.FeedbackRecord{
		SessionID:     sessionID,
		Role:          role,
		Scores:        scores,
		Strengths:     []string{},
		Improvements:  []string{},
		Comment:       comment,
		Origin:        models.FeedbackDefault,
		DefaultReason: reason,
		CreatedAt:     n.now().UTC(),
	}
}

// DimensionKey converts a free-form dimension label to its snake_case key
func DimensionKey(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingSep = true
		}
	}
	return b.String()
}

// NormalizeText is the comparison key for deduplicating free text: lower
// case, collapsed whitespace, no trailing punctuation.
func NormalizeText(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.TrimRightFunc(s, unicode.IsPunct)
}

// CleanList trims entries and drops blanks and duplicates, keeping the first
// spelling seen.
func CleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		key := NormalizeText(item)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

func clamp(v float64) float64 {
	return math.Max(minScore, math.Min(maxScore, v))
}
