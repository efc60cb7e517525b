package models

// CreateSessionResponse is returned when an interview starts
type CreateSessionResponse struct {
	Session  *Session   `json:"session"`
	Messages []*Message `json:"messages"`
}

// TurnResponse is the result of a candidate message
type TurnResponse struct {
	Messages []*Message        `json:"messages"`
	Session  *Session          `json:"session"`
	Report   *AssessmentReport `json:"report,omitempty"`
}

// TransitionResponse is the result of an advance or cancel
type TransitionResponse struct {
	From     Role              `json:"from,omitempty"`
	To       Role              `json:"to,omitempty"`
	Messages []*Message        `json:"messages"`
	Session  *Session          `json:"session"`
	Report   *AssessmentReport `json:"report,omitempty"`
}

// SessionListResponse is a page of sessions
type SessionListResponse struct {
	Sessions []*Session `json:"sessions"`
	Total    int        `json:"total"`
}

// MessageListResponse is a slice of a transcript
type MessageListResponse struct {
	Messages []*Message `json:"messages"`
	Total    int        `json:"total"`
}

// PositionListResponse lists the known position profiles
type PositionListResponse struct {
	Positions []*PositionSkillProfile `json:"positions"`
	Total     int                     `json:"total"`
}

// StreamEvent is a frame on the session WebSocket. Clients send "submit"
// frames with Data set; the server sends "connected", "message" and "error"
// frames.
type StreamEvent struct {
	Type         string   `json:"type"`
	Message      *Message `json:"message,omitempty"`
	Data         string   `json:"data,omitempty"`
	LastSequence int64    `json:"last_sequence,omitempty"`
}

// Stream frame types
const (
	StreamConnected = "connected"
	StreamMessage   = "message"
	StreamError     = "error"
	StreamSubmit    = "submit"
)
