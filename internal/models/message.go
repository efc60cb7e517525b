package models

import "time"

// SenderKind identifies who authored a message
type SenderKind string

const (
	SenderCandidate   SenderKind = "candidate"
	SenderInterviewer SenderKind = "interviewer"
	SenderSystem      SenderKind = "system"
)

// Message is one immutable transcript entry. Sequence is the only ordering
// key; timestamps may collide.
type Message struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Sequence  int64      `json:"sequence"`
	Sender    SenderKind `json:"sender"`
	Role      Role       `json:"role,omitempty"`
	Content   string     `json:"content"`
	Fallback  bool       `json:"fallback,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsCandidate returns true for candidate-authored messages
func (m *Message) IsCandidate() bool {
	return m.Sender == SenderCandidate
}

// SubmitMessageRequest is the body of a candidate message submission
type SubmitMessageRequest struct {
	Content string `json:"content"`
}
