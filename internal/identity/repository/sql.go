package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"authcore/internal/db"
	"authcore/internal/identity/domain"
	userdomain "authcore/internal/user/domain"
	userrepo "authcore/internal/user/repository"
)

// SQLRepository implements Repository for Postgres and SQLite. Queries are written with $n
// placeholders and rebound for SQLite.
type SQLRepository struct {
	db *sql.DB
	q  queries
	ts func(time.Time) any
}

type queries struct {
	credentialByEmail string
	userIDByLink      string
	insertUser        string
	insertIdentity    string
	markVerified      string
}

var postgresQueries = queries{
	credentialByEmail: `
SELECT i.user_id, COALESCE(u.email, ''), COALESCE(i.password_hash, ''), i.verified, u.status
FROM identities i
JOIN users u ON u.id = i.user_id
WHERE i.provider = 'LOCAL' AND i.provider_id = $1`,
	userIDByLink: `SELECT user_id FROM identities WHERE provider = $1 AND provider_id = $2`,
	insertUser: `
INSERT INTO users (id, email, name, status, created_at, updated_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)`,
	insertIdentity: `
INSERT INTO identities (id, user_id, provider, provider_id, password_hash, verified, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
ON CONFLICT (provider, provider_id) DO NOTHING`,
	markVerified: `UPDATE identities SET verified = TRUE WHERE user_id = $1 AND provider = 'LOCAL'`,
}

// NewPostgresRepository returns an identity repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db, q: postgresQueries, ts: func(t time.Time) any { return t.UTC() }}
}

// NewSQLiteRepository returns an identity repository backed by SQLite. Timestamps are stored as
// unix milliseconds.
func NewSQLiteRepository(sqlDB *sql.DB) *SQLRepository {
	q := postgresQueries
	for _, s := range []*string{&q.credentialByEmail, &q.userIDByLink, &q.insertUser, &q.insertIdentity, &q.markVerified} {
		*s = strings.ReplaceAll(*s, "$", "?")
	}
	return &SQLRepository{db: sqlDB, q: q, ts: func(t time.Time) any { return db.ToMillis(t) }}
}

func (r *SQLRepository) GetCredentialByEmail(ctx context.Context, email string) (*domain.Credential, error) {
	var c domain.Credential
	var status string
	err := r.db.QueryRowContext(ctx, r.q.credentialByEmail, email).
		Scan(&c.UserID, &c.Email, &c.PasswordHash, &c.Verified, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Status = domain.CredentialStatus(status)
	return &c, nil
}

func (r *SQLRepository) GetUserIDByLink(ctx context.Context, provider domain.ProviderName, subject string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, r.q.userIDByLink, string(provider), subject).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return userID, nil
}

func (r *SQLRepository) CreateLocalAccount(ctx context.Context, u *userdomain.User, passwordHash string, verified bool) error {
	if passwordHash == "" {
		return errors.New("password hash is required")
	}
	link := &domain.Link{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Provider:  domain.ProviderLocal,
		Subject:   domain.NormalizeEmail(u.Email),
		CreatedAt: u.CreatedAt,
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.insertUser(ctx, tx, u); err != nil {
			return err
		}
		inserted, err := r.insertIdentity(ctx, tx, link, passwordHash, verified)
		if err != nil {
			return err
		}
		if !inserted {
			return userrepo.ErrEmailTaken
		}
		return nil
	})
}

func (r *SQLRepository) ProvisionLinkedAccount(ctx context.Context, u *userdomain.User, link *domain.Link) (string, bool, error) {
	var owner string
	created := false
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.insertUser(ctx, tx, u); err != nil {
			return err
		}
		l := *link
		l.UserID = u.ID
		inserted, err := r.insertIdentity(ctx, tx, &l, "", true)
		if err != nil {
			return err
		}
		if !inserted {
			return errLinkExists
		}
		owner, created = u.ID, true
		return nil
	})
	if errors.Is(err, errLinkExists) {
		owner, err = r.GetUserIDByLink(ctx, link.Provider, link.Subject)
		if err == nil && owner == "" {
			err = fmt.Errorf("link %s/%s vanished after conflict", link.Provider, link.Subject)
		}
		return owner, false, err
	}
	if errors.Is(err, userrepo.ErrEmailTaken) {
		// A concurrent first login for the same subject may have taken the email; adopt its link.
		existing, lerr := r.GetUserIDByLink(ctx, link.Provider, link.Subject)
		if lerr != nil {
			return "", false, lerr
		}
		if existing != "" {
			return existing, false, nil
		}
		return "", false, err
	}
	if err != nil {
		return "", false, err
	}
	return owner, created, nil
}

func (r *SQLRepository) LinkOrGet(ctx context.Context, link *domain.Link) (string, error) {
	inserted, err := r.insertIdentity(ctx, r.db, link, "", true)
	if err != nil {
		return "", err
	}
	if inserted {
		return link.UserID, nil
	}
	return r.GetUserIDByLink(ctx, link.Provider, link.Subject)
}

func (r *SQLRepository) MarkVerified(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, r.q.markVerified, userID)
	return err
}

var errLinkExists = errors.New("identity link exists")

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLRepository) insertUser(ctx context.Context, ex execer, u *userdomain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := ex.ExecContext(ctx, r.q.insertUser,
		u.ID, u.Email, u.Name, string(u.Status), r.ts(u.CreatedAt), r.ts(u.UpdatedAt))
	if db.IsUniqueViolation(err) {
		return userrepo.ErrEmailTaken
	}
	return err
}

func (r *SQLRepository) insertIdentity(ctx context.Context, ex execer, l *domain.Link, passwordHash string, verified bool) (bool, error) {
	res, err := ex.ExecContext(ctx, r.q.insertIdentity,
		l.ID, l.UserID, string(l.Provider), l.Subject, passwordHash, verified, r.ts(l.CreatedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SQLRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
