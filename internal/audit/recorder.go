// Package audit writes the tamper-evident trail for scoped sessions.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"support-access-plane/internal/audit/domain"
	auditrepo "support-access-plane/internal/audit/repository"
)

// IPExtractor returns the client IP from the request context, e.g. from
// forwarded headers captured by middleware.
type IPExtractor func(context.Context) string

// UserAgentExtractor returns the caller's user agent from the request context.
type UserAgentExtractor func(context.Context) string

// Recorder writes audit entries for scoped-session actions. Record is
// best-effort: failures are logged loudly and never propagate to the caller,
// so a session still starts or ends even when its trail entry cannot be
// persisted.
type Recorder interface {
	Record(ctx context.Context, e Event)
	List(ctx context.Context, sessionID string) ([]*domain.Entry, error)
}

// Event is the caller-facing shape of one audit write. Details is marshaled to
// JSON before persistence; a nil map records an empty payload.
type Event struct {
	SessionID    string
	AdminID      string
	TargetID     string
	ActionType   string
	ResourceType string
	ResourceID   string
	Details      map[string]any
}

// DBRecorder implements Recorder using the audit repository and optional
// context extractors for IP and user agent.
type DBRecorder struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	uaExtractor UserAgentExtractor
}

// NewRecorder returns a Recorder that persists to repo. Either extractor may be
// nil; IP is then recorded as "unknown" and the user agent as empty.
func NewRecorder(repo auditrepo.Repository, ip IPExtractor, ua UserAgentExtractor) *DBRecorder {
	return &DBRecorder{repo: repo, ipExtractor: ip, uaExtractor: ua}
}

// Record writes one audit entry. Best-effort: errors are logged and not returned.
func (r *DBRecorder) Record(ctx context.Context, e Event) {
	if r.repo == nil {
		return
	}
	ip := "unknown"
	if r.ipExtractor != nil {
		ip = r.ipExtractor(ctx)
	}
	ua := ""
	if r.uaExtractor != nil {
		ua = r.uaExtractor(ctx)
	}
	details := ""
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			log.Printf("audit: failed to marshal details for %s: %v", e.ActionType, err)
		} else {
			details = string(b)
		}
	}
	entry := &domain.Entry{
		ID:           uuid.New().String(),
		SessionID:    e.SessionID,
		AdminID:      e.AdminID,
		TargetID:     e.TargetID,
		ActionType:   e.ActionType,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      details,
		IPAddress:    ip,
		UserAgent:    ua,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to record %s for session %s: %v", e.ActionType, e.SessionID, err)
	}
}

// List returns the session's entries ordered by creation time ascending.
// Ownership checks are the caller's responsibility.
func (r *DBRecorder) List(ctx context.Context, sessionID string) ([]*domain.Entry, error) {
	return r.repo.ListBySession(ctx, sessionID)
}
