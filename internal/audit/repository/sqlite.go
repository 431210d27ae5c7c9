package repository

import (
	"context"
	"database/sql"

	"authcore/internal/audit/domain"
	"authcore/internal/db"
)

// SQLiteRepository implements Repository over SQLite with millisecond timestamps.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns an audit repository backed by a database opened with db.OpenSQLite.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sqliteEntryColumns = `id, user_id, device_id, action, provider, reason, ip_address, user_agent, metadata, created_at`

func (r *SQLiteRepository) Create(ctx context.Context, e *domain.Entry) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO auth_events (`+sqliteEntryColumns+`)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10)`,
		e.ID, e.UserID, e.DeviceID, e.Action, e.Provider, e.Reason, e.IP, e.UserAgent, e.Metadata, db.ToMillis(e.CreatedAt))
	return err
}

func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteEntryColumns+`
FROM auth_events WHERE user_id = ?1 ORDER BY created_at DESC, id LIMIT ?2`, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Entry
	for rows.Next() {
		var (
			e  domain.Entry
			ms int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.DeviceID, &e.Action, &e.Provider, &e.Reason,
			&e.IP, &e.UserAgent, &e.Metadata, &ms); err != nil {
			return nil, err
		}
		e.CreatedAt = db.FromMillis(ms)
		out = append(out, &e)
	}
	return out, rows.Err()
}
