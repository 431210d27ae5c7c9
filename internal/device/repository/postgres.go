package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authcore/internal/device/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a device repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const pgDeviceColumns = `id, user_id, fingerprint, name, location, user_agent, ip_address, is_active,
    first_login_at, last_login_at, created_at, updated_at`

// The conflict branch never moves last_login_at or updated_at backwards, so racing upserts with
// slightly different clocks still leave the row consistent.
const pgUpsertDevice = `
INSERT INTO devices (id, user_id, fingerprint, name, location, user_agent, ip_address, is_active,
    first_login_at, last_login_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $8, $8, $8)
ON CONFLICT (user_id, fingerprint) DO UPDATE SET
    last_login_at = GREATEST(COALESCE(devices.last_login_at, devices.first_login_at), EXCLUDED.last_login_at),
    updated_at    = GREATEST(devices.updated_at, EXCLUDED.updated_at),
    is_active     = TRUE,
    user_agent    = COALESCE(NULLIF(EXCLUDED.user_agent, ''), devices.user_agent),
    ip_address    = COALESCE(NULLIF(EXCLUDED.ip_address, ''), devices.ip_address),
    location      = COALESCE(NULLIF(EXCLUDED.location, ''), devices.location),
    name          = CASE WHEN devices.name = '' THEN EXCLUDED.name ELSE devices.name END
RETURNING ` + pgDeviceColumns

// GetByID returns the device for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+pgDeviceColumns+` FROM devices WHERE id = $1`, id)
	d, err := scanPostgresDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// Upsert inserts a new device for the login or refreshes the existing (user, fingerprint) row.
func (r *PostgresRepository) Upsert(ctx context.Context, newID string, l domain.Login) (*domain.Device, bool, error) {
	if err := l.Validate(); err != nil {
		return nil, false, err
	}
	row := r.db.QueryRowContext(ctx, pgUpsertDevice,
		newID, l.UserID, l.Fingerprint, l.Name, l.Location, l.UserAgent, l.IPAddress, l.At.UTC())
	d, err := scanPostgresDevice(row)
	if err != nil {
		return nil, false, err
	}
	return d, d.ID == newID, nil
}

// Deactivate marks the device inactive. It is a no-op for an already inactive device.
func (r *PostgresRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE devices SET is_active = FALSE, updated_at = GREATEST(updated_at, $2) WHERE id = $1 AND is_active`,
		id, at.UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM devices WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrDeviceNotFound
	}
	return err
}

// DeactivateAllForUser marks every active device of the user inactive.
func (r *PostgresRepository) DeactivateAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE devices SET is_active = FALSE, updated_at = GREATEST(updated_at, $2) WHERE user_id = $1 AND is_active`,
		userID, at.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListActiveByUser returns the user's active devices ordered by last activity, newest first.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Device, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+pgDeviceColumns+` FROM devices
WHERE user_id = $1 AND is_active
ORDER BY COALESCE(last_login_at, first_login_at) DESC, created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Device
	for rows.Next() {
		d, err := scanPostgresDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgresDevice(row rowScanner) (*domain.Device, error) {
	var d domain.Device
	var lastLogin sql.NullTime
	if err := row.Scan(&d.ID, &d.UserID, &d.Fingerprint, &d.Name, &d.Location, &d.UserAgent, &d.IPAddress,
		&d.IsActive, &d.FirstLoginAt, &lastLogin, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.FirstLoginAt = d.FirstLoginAt.UTC()
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		d.LastLoginAt = &t
	}
	return &d, nil
}
