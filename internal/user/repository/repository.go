package repository

import (
	"context"
	"errors"

	"authcore/internal/user/domain"
)

// ErrEmailTaken is returned by Create when another user already has the email.
var ErrEmailTaken = errors.New("email already registered")

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// SetStatus changes the account status. Missing users are a no-op.
	SetStatus(ctx context.Context, id string, status domain.UserStatus) error
}
