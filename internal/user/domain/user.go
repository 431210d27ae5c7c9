package domain

import (
	"errors"
	"time"
)

// User is the core user entity.
type User struct {
	ID        string
	Email     string // empty for federated users whose provider shared no email
	Name      string
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusDisabled  UserStatus = "disabled"
)

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	switch u.Status {
	case UserStatusActive, UserStatusSuspended, UserStatusDisabled:
	default:
		return errors.New("unknown status")
	}
	return nil
}

// Active reports whether the user may sign in.
func (u *User) Active() bool {
	return u != nil && u.Status == UserStatusActive
}
