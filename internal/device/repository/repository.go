package repository

import (
	"context"
	"time"

	"authcore/internal/device/domain"
)

// Repository defines persistence for devices.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Device, error)
	// Upsert records a login as one atomic insert-or-update keyed by (UserID, Fingerprint).
	// newID is used only when a row is inserted; created reports whether that happened.
	Upsert(ctx context.Context, newID string, l domain.Login) (d *domain.Device, created bool, err error)
	// Deactivate clears is_active. An already inactive device is left untouched and is not an error.
	// Returns domain.ErrDeviceNotFound for an unknown id.
	Deactivate(ctx context.Context, id string, at time.Time) error
	// DeactivateAllForUser deactivates every active device of the user and returns how many changed.
	DeactivateAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	// ListActiveByUser returns active devices, most recent activity first.
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Device, error)
}
