// Package service implements the scoped session lifecycle: creation,
// per-request validation, explicit termination, and the lazy expiry self-heal.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	accessdomain "support-access-plane/internal/access/domain"
	accessrepo "support-access-plane/internal/access/repository"
	"support-access-plane/internal/audit"
	auditdomain "support-access-plane/internal/audit/domain"
	"support-access-plane/internal/policy/engine"
	"support-access-plane/internal/security"
	userdomain "support-access-plane/internal/user/domain"
)

// Sentinel errors for the lifecycle manager; handlers map them to HTTP statuses.
var (
	ErrInvalidDuration = fmt.Errorf("duration must be between %d and %d minutes",
		accessdomain.MinDurationMinutes, accessdomain.MaxDurationMinutes)
	ErrReasonRequired   = errors.New("reason is required")
	ErrPermissionDenied = errors.New("permission denied")
	ErrTargetNotFound   = errors.New("target user not found")
	ErrTargetIneligible = errors.New("target user is not eligible for support access")
	// ErrNotFoundOrForbidden deliberately does not distinguish a missing
	// session from one owned by a different admin.
	ErrNotFoundOrForbidden = errors.New("session not found or not owned by caller")
)

// ConflictError is returned by Create when an unexpired active session already
// exists for the (admin, target) pair. It carries the existing session's id so
// the caller can surface it (e.g. offer to end it).
type ConflictError struct {
	ExistingSessionID string
}

func (e *ConflictError) Error() string {
	return "an active support session already exists for this target"
}

// SessionRepo is the minimal scoped session repository needed by the manager.
type SessionRepo interface {
	Create(ctx context.Context, s *accessdomain.Session) error
	GetByID(ctx context.Context, id string) (*accessdomain.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*accessdomain.Session, error)
	FindActiveByAdminAndTarget(ctx context.Context, adminID, targetID string) (*accessdomain.Session, error)
	ListActiveByAdmin(ctx context.Context, adminID string, now time.Time) ([]*accessdomain.Session, error)
	MarkExpired(ctx context.Context, id string, endedAt time.Time) error
	End(ctx context.Context, id string, status accessdomain.Status, endedAt time.Time) error
}

// UserRepo is the minimal user directory needed by the manager.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// CreateResult holds a newly created session and its one-time plaintext token.
// The token is never retrievable again; only its hash is stored.
type CreateResult struct {
	Session *accessdomain.Session
	Token   string
}

// Validation is the outcome of checking a scoped token. Every negative case
// (unknown token, terminal status, past expiry) yields the same Valid=false
// shape so callers cannot distinguish them.
type Validation struct {
	Valid     bool
	SessionID string
	AdminID   string
	TargetID  string
	ExpiresAt time.Time
}

// Manager owns all scoped-session state machine and conflict resolution logic.
type Manager struct {
	sessions SessionRepo
	users    UserRepo
	policy   engine.Evaluator
	recorder audit.Recorder
	now      func() time.Time
}

// NewManager returns a Manager with the given dependencies.
func NewManager(sessions SessionRepo, users UserRepo, policy engine.Evaluator, recorder audit.Recorder) *Manager {
	return &Manager{
		sessions: sessions,
		users:    users,
		policy:   policy,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a scoped session from admin to target and returns it with the
// one-time plaintext token. Exactly one active session may exist per
// (admin, target) pair; a stale active row past its expiry is healed in place
// and does not block creation.
func (m *Manager) Create(ctx context.Context, adminID, targetID, reason string, durationMinutes int) (*CreateResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	if durationMinutes < accessdomain.MinDurationMinutes || durationMinutes > accessdomain.MaxDurationMinutes {
		return nil, ErrInvalidDuration
	}

	admin, err := m.users.GetByID(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, ErrPermissionDenied
	}
	target, err := m.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrTargetNotFound
	}
	elig, err := m.policy.EvaluateEligibility(ctx, admin, target)
	if err != nil {
		return nil, err
	}
	if !elig.AdminAllowed {
		return nil, ErrPermissionDenied
	}
	if !elig.TargetEligible {
		return nil, ErrTargetIneligible
	}

	now := m.now()
	existing, err := m.sessions.FindActiveByAdminAndTarget(ctx, adminID, targetID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.PastExpiry(now) {
			return nil, &ConflictError{ExistingSessionID: existing.ID}
		}
		// Stale row whose status was never corrected: heal it, then proceed.
		if err := m.sessions.MarkExpired(ctx, existing.ID, existing.ExpiresAt); err != nil {
			return nil, err
		}
	}

	token := security.NewScopedToken()
	sess := &accessdomain.Session{
		ID:              uuid.New().String(),
		AdminID:         adminID,
		TargetID:        targetID,
		Reason:          reason,
		DurationMinutes: durationMinutes,
		TokenHash:       security.HashScopedToken(token),
		Status:          accessdomain.StatusActive,
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Duration(durationMinutes) * time.Minute),
	}
	if err := m.sessions.Create(ctx, sess); err != nil {
		if errors.Is(err, accessrepo.ErrDuplicateActive) {
			// Lost the create/create race; report the winner's id when we can see it.
			winner, findErr := m.sessions.FindActiveByAdminAndTarget(ctx, adminID, targetID)
			if findErr == nil && winner != nil {
				return nil, &ConflictError{ExistingSessionID: winner.ID}
			}
			return nil, &ConflictError{}
		}
		return nil, err
	}

	m.record(ctx, audit.Event{
		SessionID:  sess.ID,
		AdminID:    adminID,
		TargetID:   targetID,
		ActionType: auditdomain.ActionSupportAccessStarted,
		Details: map[string]any{
			"reason":           reason,
			"duration_minutes": durationMinutes,
			"expires_at":       sess.ExpiresAt.Format(time.RFC3339),
		},
	})

	return &CreateResult{Session: sess, Token: token}, nil
}

// Validate resolves a scoped token against current time. It is the sole gate
// for downstream scoped actions and must be re-invoked per request: expiry and
// revocation take effect on the next call, never later. A stale active row is
// flipped to expired in place (lazy self-heal). Errors are storage failures
// only; a negative outcome is a Valid=false result, not an error.
func (m *Manager) Validate(ctx context.Context, token string) (Validation, error) {
	if token == "" {
		return Validation{}, nil
	}
	sess, err := m.sessions.GetByTokenHash(ctx, security.HashScopedToken(token))
	if err != nil {
		return Validation{}, err
	}
	if sess == nil {
		return Validation{}, nil
	}
	if sess.PastExpiry(m.now()) {
		if sess.Status == accessdomain.StatusActive {
			if err := m.sessions.MarkExpired(ctx, sess.ID, sess.ExpiresAt); err != nil {
				log.Printf("access: lazy expiry of session %s failed: %v", sess.ID, err)
			}
		}
		return Validation{}, nil
	}
	if sess.Status != accessdomain.StatusActive {
		return Validation{}, nil
	}
	return Validation{
		Valid:     true,
		SessionID: sess.ID,
		AdminID:   sess.AdminID,
		TargetID:  sess.TargetID,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// End terminates the session with the caller-supplied reason. "completed" (or
// empty) records a normal completion; any other label is stored verbatim as the
// terminal status and classified as a revocation for audit purposes. Ending an
// already-terminal session is an idempotent no-op success. The caller must own
// the session; a missing session and a non-owned one produce the same error.
func (m *Manager) End(ctx context.Context, sessionID, adminID, reason string) error {
	sess, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil || sess.AdminID != adminID {
		return ErrNotFoundOrForbidden
	}
	if sess.Status.Terminal() {
		return nil
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = string(accessdomain.StatusCompleted)
	}
	status := accessdomain.Status(reason)
	if status == accessdomain.StatusActive {
		// A terminal label must not be "active"; treat it as a revocation.
		status = accessdomain.StatusRevoked
	}
	now := m.now()
	if err := m.sessions.End(ctx, sessionID, status, now); err != nil {
		return err
	}

	action := auditdomain.ActionSupportAccessRevoked
	if status == accessdomain.StatusCompleted {
		action = auditdomain.ActionSupportAccessEnded
	}
	m.record(ctx, audit.Event{
		SessionID:  sessionID,
		AdminID:    adminID,
		TargetID:   sess.TargetID,
		ActionType: action,
		Details:    map[string]any{"reason": string(status)},
	})
	return nil
}

// ListActive returns the caller's own active, unexpired sessions.
func (m *Manager) ListActive(ctx context.Context, adminID string) ([]*accessdomain.Session, error) {
	return m.sessions.ListActiveByAdmin(ctx, adminID, m.now())
}

// ListAudit returns the audit trail for a session owned by the caller, ordered
// by creation time ascending. Ownership uses the same opaque error as End.
func (m *Manager) ListAudit(ctx context.Context, sessionID, adminID string) ([]*auditdomain.Entry, error) {
	sess, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.AdminID != adminID {
		return nil, ErrNotFoundOrForbidden
	}
	return m.recorder.List(ctx, sessionID)
}

// RecordScopedView writes a user_viewed audit entry for a validated scoped
// read. Best-effort, like every audit write.
func (m *Manager) RecordScopedView(ctx context.Context, v Validation, resourceType, resourceID string) {
	if !v.Valid {
		return
	}
	m.record(ctx, audit.Event{
		SessionID:    v.SessionID,
		AdminID:      v.AdminID,
		TargetID:     v.TargetID,
		ActionType:   auditdomain.ActionUserViewed,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	})
}

func (m *Manager) record(ctx context.Context, e audit.Event) {
	if m.recorder == nil {
		return
	}
	m.recorder.Record(ctx, e)
}
