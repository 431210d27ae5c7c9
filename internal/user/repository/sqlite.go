package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authcore/internal/db"
	"authcore/internal/user/domain"
)

// SQLiteRepository implements Repository over an embedded SQLite database opened by db.OpenSQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a user repository backed by SQLite.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sqliteUserColumns = `id, COALESCE(email, ''), name, status, created_at, updated_at`

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id = ?1`, id)
	return scanSQLiteUser(row)
}

func (r *SQLiteRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE email = ?1`, email)
	return scanSQLiteUser(row)
}

func (r *SQLiteRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, status, created_at, updated_at) VALUES (?1, NULLIF(?2, ''), ?3, ?4, ?5, ?6)`,
		u.ID, u.Email, u.Name, string(u.Status), db.ToMillis(u.CreatedAt), db.ToMillis(u.UpdatedAt))
	if db.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *SQLiteRepository) SetStatus(ctx context.Context, id string, status domain.UserStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET status = ?2, updated_at = MAX(updated_at, ?3) WHERE id = ?1`,
		id, string(status), db.ToMillis(time.Now()))
	return err
}

func scanSQLiteUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var status string
	var createdAt, updatedAt int64
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &status, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Status = domain.UserStatus(status)
	u.CreatedAt = db.FromMillis(createdAt)
	u.UpdatedAt = db.FromMillis(updatedAt)
	return &u, nil
}
