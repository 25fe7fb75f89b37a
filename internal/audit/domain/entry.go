package domain

import "time"

// Action types recorded by the support access subsystem.
const (
	ActionSupportAccessStarted = "support_access_started"
	ActionSupportAccessEnded   = "support_access_ended"
	ActionSupportAccessRevoked = "support_access_revoked"
	ActionUserViewed           = "user_viewed"
)

// Entry is one immutable audit record describing an action taken by or about a
// scoped session. Entries are append-only; nothing in this subsystem updates or
// deletes them.
type Entry struct {
	ID           string
	SessionID    string // empty for actions not tied to a session
	AdminID      string
	TargetID     string // empty when the action has no target principal
	ActionType   string
	ResourceType string
	ResourceID   string
	Details      string // JSON payload; opaque to this subsystem
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
}
