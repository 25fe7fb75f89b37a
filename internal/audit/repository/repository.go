package repository

import (
	"context"

	"support-access-plane/internal/audit/domain"
)

// Repository defines persistence for audit entries. Append-only: there is no
// update or delete.
type Repository interface {
	Create(ctx context.Context, e *domain.Entry) error
	ListBySession(ctx context.Context, sessionID string) ([]*domain.Entry, error)
}
