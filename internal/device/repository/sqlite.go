package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authcore/internal/db"
	"authcore/internal/device/domain"
)

// SQLiteRepository implements Repository over SQLite with millisecond timestamps.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a device repository backed by a database opened with db.OpenSQLite.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sqliteDeviceColumns = `id, user_id, fingerprint, name, location, user_agent, ip_address, is_active,
    first_login_at, last_login_at, created_at, updated_at`

const sqliteUpsertDevice = `
INSERT INTO devices (id, user_id, fingerprint, name, location, user_agent, ip_address, is_active,
    first_login_at, last_login_at, created_at, updated_at)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, 1, ?8, ?8, ?8, ?8)
ON CONFLICT (user_id, fingerprint) DO UPDATE SET
    last_login_at = MAX(COALESCE(devices.last_login_at, devices.first_login_at), excluded.last_login_at),
    updated_at    = MAX(devices.updated_at, excluded.updated_at),
    is_active     = 1,
    user_agent    = COALESCE(NULLIF(excluded.user_agent, ''), devices.user_agent),
    ip_address    = COALESCE(NULLIF(excluded.ip_address, ''), devices.ip_address),
    location      = COALESCE(NULLIF(excluded.location, ''), devices.location),
    name          = CASE WHEN devices.name = '' THEN excluded.name ELSE devices.name END
RETURNING ` + sqliteDeviceColumns

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteDeviceColumns+` FROM devices WHERE id = ?1`, id)
	d, err := scanSQLiteDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (r *SQLiteRepository) Upsert(ctx context.Context, newID string, l domain.Login) (*domain.Device, bool, error) {
	if err := l.Validate(); err != nil {
		return nil, false, err
	}
	row := r.db.QueryRowContext(ctx, sqliteUpsertDevice,
		newID, l.UserID, l.Fingerprint, l.Name, l.Location, l.UserAgent, l.IPAddress, db.ToMillis(l.At))
	d, err := scanSQLiteDevice(row)
	if err != nil {
		return nil, false, err
	}
	return d, d.ID == newID, nil
}

func (r *SQLiteRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE devices SET is_active = 0, updated_at = MAX(updated_at, ?2) WHERE id = ?1 AND is_active = 1`,
		id, db.ToMillis(at))
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
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM devices WHERE id = ?1`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrDeviceNotFound
	}
	return err
}

func (r *SQLiteRepository) DeactivateAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE devices SET is_active = 0, updated_at = MAX(updated_at, ?2) WHERE user_id = ?1 AND is_active = 1`,
		userID, db.ToMillis(at))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Device, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteDeviceColumns+` FROM devices
WHERE user_id = ?1 AND is_active = 1
ORDER BY COALESCE(last_login_at, first_login_at) DESC, created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Device
	for rows.Next() {
		d, err := scanSQLiteDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanSQLiteDevice(row rowScanner) (*domain.Device, error) {
	var d domain.Device
	var firstLogin, createdAt, updatedAt int64
	var lastLogin sql.NullInt64
	if err := row.Scan(&d.ID, &d.UserID, &d.Fingerprint, &d.Name, &d.Location, &d.UserAgent, &d.IPAddress,
		&d.IsActive, &firstLogin, &lastLogin, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.FirstLoginAt = db.FromMillis(firstLogin)
	d.LastLoginAt = db.NullMillis(lastLogin)
	d.CreatedAt = db.FromMillis(createdAt)
	d.UpdatedAt = db.FromMillis(updatedAt)
	return &d, nil
}
