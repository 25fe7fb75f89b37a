package domain

import (
	"errors"
	"time"
)

// User is a principal in the user directory. Admins open scoped sessions;
// members are the only eligible targets.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	Status       UserStatus
	PasswordHash string // bcrypt; empty for directory-only principals with no login
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// IsAdmin reports whether the user holds the elevated admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Role == "" {
		u.Role = RoleMember
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}
