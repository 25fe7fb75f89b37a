// Package rbac holds request-scoped authorization preconditions shared by handlers.
package rbac

import (
	"context"
	"errors"

	"support-access-plane/internal/server/middleware"
	userdomain "support-access-plane/internal/user/domain"
)

var (
	// ErrUnauthenticated means no principal was set on the request context.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrNotAdmin means the caller exists but does not hold an active admin role.
	ErrNotAdmin = errors.New("admin role required")
)

// UserGetter resolves a principal by id. Used by RequireAdmin to load the caller.
type UserGetter interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// RequireAdmin ensures the caller is authenticated and holds an active admin
// role. Returns the caller's user id on success. Storage errors propagate
// unchanged so handlers can map them to a generic failure.
func RequireAdmin(ctx context.Context, getter UserGetter) (string, error) {
	userID, ok := middleware.GetPrincipalID(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	u, err := getter.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u == nil || !u.IsAdmin() || u.Status != userdomain.UserStatusActive {
		return "", ErrNotAdmin
	}
	return userID, nil
}
