package models

import "time"

// FeedbackOrigin tags whether a feedback record came from the interviewer or
// was substituted.
type FeedbackOrigin string

const (
	FeedbackGenerated FeedbackOrigin = "generated"
	FeedbackDefault   FeedbackOrigin = "default"
)

// DefaultReason explains why a default record was substituted
type DefaultReason string

const (
	ReasonNone             DefaultReason = ""
	ReasonGenerationFailed DefaultReason = "generation_failed"
	ReasonMalformed        DefaultReason = "malformed"
	ReasonMissing          DefaultReason = "missing"
)

// FeedbackRecord is one interviewer's assessment of the candidate. Scores are
// on a 0-10 scale keyed by dimension name.
type FeedbackRecord struct {
	SessionID     string             `json:"session_id"`
	Role          Role               `json:"role"`
	Scores        map[string]float64 `json:"scores"`
	Strengths     []string           `json:"strengths"`
	Improvements  []string           `json:"improvements"`
	Comment       string             `json:"comment"`
	Origin        FeedbackOrigin     `json:"origin"`
	DefaultReason DefaultReason      `json:"default_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// IsDefault returns true if the record is a substitute
func (f *FeedbackRecord) IsDefault() bool {
	return f.Origin == FeedbackDefault
}

// CountsTowardScore reports whether the record takes part in weight
// normalization. Records for interviewers that never produced anything are
// listed but excluded.
func (f *FeedbackRecord) CountsTowardScore() bool {
	return !(f.Origin == FeedbackDefault && f.DefaultReason == ReasonMissing)
}
