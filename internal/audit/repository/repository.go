package repository

import (
	"context"

	"authcore/internal/audit/domain"
)

// Repository defines persistence for audit entries.
type Repository interface {
	Create(ctx context.Context, e *domain.Entry) error
	// ListByUser returns the newest entries for userID first. limit <= 0 means 50.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Entry, error)
}

const defaultListLimit = 50

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
