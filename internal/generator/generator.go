// Package generator defines the response generation capability used by
// interviewers, plus its error taxonomy and templated fallbacks.
package generator

import (
	"context"
	"errors"
	"fmt"

	"github.com/terra-clan/interview-engine/internal/models"
)

// ResponseGenerator produces interviewer replies and stage-exit feedback.
// Implementations may block; callers bound them with a context deadline.
type ResponseGenerator interface {
	GenerateReply(ctx context.Context, role models.Role, transcript []*models.Message) (string, error)
	GenerateFeedback(ctx context.Context, role models.Role, transcript []*models.Message) (*Feedback, error)
}

// Feedback is raw interviewer feedback before normalization. Scores are
// expected on a 0-10 scale but are not trusted.
type Feedback struct {
	Scores       map[string]float64 `json:"scores"`
	Strengths    []string           `json:"strengths"`
	Improvements []string           `json:"improvements"`
	Comment      string             `json:"comment"`
}

// ErrTimeout is returned when a generation call exceeds its deadline
var ErrTimeout = errors.New("generation timed out")

// Operation names used in errors and logs
const (
	OpReply    = "reply"
	OpFeedback = "feedback"
)

// Error is an upstream generation failure
type Error struct {
	Provider string
	Op       string
	Role     models.Role
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s for %s failed: %v", e.Provider, e.Op, e.Role, e.Err)
	}
	return fmt.Sprintf("%s %s for %s failed", e.Provider, e.Op, e.Role)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap classifies err from a generation call. Deadline expiry becomes
// ErrTimeout so callers can tell slow upstreams from broken ones.
func Wrap(provider, op string, role models.Role, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s for %s: %w", provider, op, role, ErrTimeout)
	}
	var genErr *Error
	if errors.As(err, &genErr) {
		return err
	}
	return &Error{Provider: provider, Op: op, Role: role, Err: err}
}
