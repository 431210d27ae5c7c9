package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authcore/internal/db"
	"authcore/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const pgUserColumns = `id, COALESCE(email, ''), name, status, created_at, updated_at`

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+pgUserColumns+` FROM users WHERE id = $1`, id)
	return scanPostgresUser(row)
}

// GetByEmail returns the user with the given email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+pgUserColumns+` FROM users WHERE email = $1`, email)
	return scanPostgresUser(row)
}

// Create persists the user to the database. The user must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, status, created_at, updated_at) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, string(u.Status), u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	if db.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

// SetStatus updates the user's status and updated_at.
func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status domain.UserStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET status = $2, updated_at = GREATEST(updated_at, $3) WHERE id = $1`,
		id, string(status), time.Now().UTC())
	return err
}

func scanPostgresUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var status string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Status = domain.UserStatus(status)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}
