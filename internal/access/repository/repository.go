package repository

import (
	"context"
	"errors"
	"time"

	"support-access-plane/internal/access/domain"
)

// ErrDuplicateActive is returned by Create when the storage layer's partial
// uniqueness constraint rejects a second active session for the same
// (admin, target) pair. It turns the narrow create/create race into a clean
// conflict instead of a silent double-active state.
var ErrDuplicateActive = errors.New("an active session already exists for this admin and target")

// Repository defines persistence for scoped sessions. Status flips are
// predicate-guarded single statements (WHERE status='active') so concurrent
// writers coalesce instead of clobbering each other.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	FindActiveByAdminAndTarget(ctx context.Context, adminID, targetID string) (*domain.Session, error)
	ListActiveByAdmin(ctx context.Context, adminID string, now time.Time) ([]*domain.Session, error)
	// MarkExpired flips the session to expired if it is still active; a no-op otherwise.
	MarkExpired(ctx context.Context, id string, endedAt time.Time) error
	// End flips the session to the given terminal status if it is still active; a no-op otherwise.
	End(ctx context.Context, id string, status domain.Status, endedAt time.Time) error
	// ExpireOlderThan bulk-transitions every active session with expires_at before now
	// to expired and returns the number of rows changed.
	ExpireOlderThan(ctx context.Context, now time.Time) (int64, error)
}
