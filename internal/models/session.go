package models

import (
	"time"
)

// SessionStatus represents the lifecycle state of an interview session
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"    // Interview in progress
	SessionCompleted SessionStatus = "completed" // All stages done or ended explicitly, report generated
	SessionCancelled SessionStatus = "cancelled" // Aborted, no report
)

// IsTerminal returns true if the status is a final state
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// Role identifies an interviewer persona
type Role string

const (
	RoleTechnical  Role = "technical"
	RoleBehavioral Role = "behavioral"
	RoleHR         Role = "hr"
	RoleProduct    Role = "product"
	RoleSenior     Role = "senior"
)

// Session is an interview session. The stage plan (Roles) and turn limit are
// snapshotted at creation so later policy changes never alter it.
type Session struct {
	ID               string        `json:"id"`
	Position         string        `json:"position"`
	Difficulty       string        `json:"difficulty"`
	Roles            []Role        `json:"roles"`
	StageIndex       int           `json:"stage_index"`
	TurnCount        int           `json:"turn_count"`
	MaxTurnsPerStage int           `json:"max_turns_per_stage"`
	LastSequence     int64         `json:"last_sequence"`
	Status           SessionStatus `json:"status"`
	ResumeSkills     []string      `json:"resume_skills,omitempty"`
	CreatedBy        string        `json:"created_by,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the session is in a final state
func (s *Session) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// ActiveRole returns the interviewer owning the current stage, or "" when the
// session is terminal.
func (s *Session) ActiveRole() Role {
	if s.IsTerminal() || s.StageIndex < 0 || s.StageIndex >= len(s.Roles) {
		return ""
	}
	return s.Roles[s.StageIndex]
}

// IsLastStage reports whether the current stage is the final one in the plan
func (s *Session) IsLastStage() bool {
	return s.StageIndex >= len(s.Roles)-1
}

// NextSequence reserves the next message sequence number
func (s *Session) NextSequence() int64 {
	s.LastSequence++
	return s.LastSequence
}

// Clone returns a deep copy safe to hand out to readers
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Roles = append([]Role(nil), s.Roles...)
	c.ResumeSkills = append([]string(nil), s.ResumeSkills...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// SessionStatusView is a read-only snapshot of interview progress
type SessionStatusView struct {
	SessionID        string        `json:"session_id"`
	Position         string        `json:"position"`
	Difficulty       string        `json:"difficulty"`
	Status           SessionStatus `json:"status"`
	Roles            []Role        `json:"roles"`
	StageIndex       int           `json:"stage_index"`
	ActiveRole       Role          `json:"active_role,omitempty"`
	TurnCount        int           `json:"turn_count"`
	MaxTurnsPerStage int           `json:"max_turns_per_stage"`
	MessageCount     int64         `json:"message_count"`
	CreatedAt        time.Time     `json:"created_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// CreateSessionRequest represents a request to start an interview
type CreateSessionRequest struct {
	Position         string `json:"position"`
	Difficulty       string `json:"difficulty"`
	ResumeText       string `json:"resume_text,omitempty"`
	Roles            []Role `json:"roles,omitempty"`
	MaxTurnsPerStage int    `json:"max_turns_per_stage,omitempty"`
}

// SessionFilters defines filters for listing sessions
type SessionFilters struct {
	Status   SessionStatus
	Position string
	Limit    int
	Offset   int
}
