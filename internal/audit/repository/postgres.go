package repository

import (
	"context"
	"database/sql"

	"authcore/internal/audit/domain"
)

// PostgresRepository implements Repository using Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a Postgres-backed audit repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, e *domain.Entry) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO auth_events (id, user_id, device_id, action, provider, reason, ip_address, user_agent, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)`,
		e.ID, e.UserID, e.DeviceID, e.Action, e.Provider, e.Reason, e.IP, e.UserAgent, e.Metadata, e.CreatedAt.UTC())
	return err
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, device_id, action, provider, reason, ip_address, user_agent, metadata::text, created_at
FROM auth_events WHERE user_id = $1 ORDER BY created_at DESC, id LIMIT $2`, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.DeviceID, &e.Action, &e.Provider, &e.Reason,
			&e.IP, &e.UserAgent, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
