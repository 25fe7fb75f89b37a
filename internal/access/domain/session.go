package domain

import "time"

// Allowed bounds for a scoped session's lifetime, in minutes.
const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 120
)

// Status is the lifecycle state of a scoped session. Transitions are
// one-directional: active moves to exactly one of the terminal states and a
// session never re-enters active.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCompleted Status = "completed"
	StatusRevoked   Status = "revoked"
)

// Terminal reports whether the status is an absorbing state.
func (s Status) Terminal() bool {
	return s != StatusActive && s != ""
}

// Session is one admin→target delegation. All fields except Status and EndedAt
// are immutable after creation. The scoped token itself is never stored; only
// its SHA-256 hash is.
type Session struct {
	ID              string
	AdminID         string
	TargetID        string
	Reason          string
	DurationMinutes int
	TokenHash       string
	Status          Status
	CreatedAt       time.Time
	ExpiresAt       time.Time
	EndedAt         *time.Time // nil until the session reaches a terminal state
}

// PastExpiry reports whether the session's window has closed at the given
// instant. A session exactly at ExpiresAt is still within its window.
func (s *Session) PastExpiry(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
