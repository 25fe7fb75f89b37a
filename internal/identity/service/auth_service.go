// Package service implements password login for the user directory. The access
// token it issues is what admins present to the support-access API; scoped
// tokens are a separate, narrower credential.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"support-access-plane/internal/security"
	userdomain "support-access-plane/internal/user/domain"
)

// ErrInvalidCredentials covers every login failure: unknown email, disabled
// account, missing password hash, or password mismatch. One error so the
// response does not reveal which check failed.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthResult holds the outcome of a successful login.
type AuthResult struct {
	AccessToken string
	ExpiresAt   time.Time
	UserID      string
	Role        userdomain.Role
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
}

// AuthService implements password-only login.
type AuthService struct {
	userRepo UserRepo
	hasher   *security.Hasher
	tokens   *security.TokenProvider
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(userRepo UserRepo, hasher *security.Hasher, tokens *security.TokenProvider) *AuthService {
	return &AuthService{userRepo: userRepo, hasher: hasher, tokens: tokens}
}

// Login authenticates with email/password and returns a signed access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	accessToken, expiresAt, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		UserID:      user.ID,
		Role:        user.Role,
	}, nil
}
