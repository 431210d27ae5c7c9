// Package store opens the configured persistence backend and builds its repositories.
package store

import (
	"database/sql"
	"fmt"

	auditrepo "authcore/internal/audit/repository"
	"authcore/internal/config"
	"authcore/internal/db"
	devicerepo "authcore/internal/device/repository"
	identityrepo "authcore/internal/identity/repository"
	userrepo "authcore/internal/user/repository"
)

// Stores groups the repositories sharing one connection pool.
type Stores struct {
	DB         *sql.DB
	Users      userrepo.Repository
	Identities *identityrepo.SQLRepository
	Devices    devicerepo.Repository
	Audit      auditrepo.Repository
}

// Open connects to the backend selected by cfg.StoreDriver. SQLite applies its migrations on
// open; Postgres expects cmd/migrate to have run.
func Open(cfg *config.Config) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		conn, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &Stores{
			DB:         conn,
			Users:      userrepo.NewSQLiteRepository(conn),
			Identities: identityrepo.NewSQLiteRepository(conn),
			Devices:    devicerepo.NewSQLiteRepository(conn),
			Audit:      auditrepo.NewSQLiteRepository(conn),
		}, nil
	case config.StoreDriverPostgres, "":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", config.StoreDriverPostgres)
		}
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &Stores{
			DB:         conn,
			Users:      userrepo.NewPostgresRepository(conn),
			Identities: identityrepo.NewPostgresRepository(conn),
			Devices:    devicerepo.NewPostgresRepository(conn),
			Audit:      auditrepo.NewPostgresRepository(conn),
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Close closes the connection pool.
func (s *Stores) Close() error {
	return s.DB.Close()
}
