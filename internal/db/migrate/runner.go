// Package migrate runs Postgres migrations from embedded SQL files using golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"strings"

	"authcore/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

const sourceDir = "migrations/postgres"

// Direction selects which way Run migrates.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ParseDirection accepts "up" or "down".
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Up, Down:
		return d, nil
	default:
		return "", fmt.Errorf("direction must be up or down, got %q", s)
	}
}

// Run applies migrations in the given direction using the provided DSN. Already being at the
// target version is not an error.
func Run(dsn string, direction Direction) error {
	if strings.TrimSpace(dsn) == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if _, err := ParseDirection(string(direction)); err != nil {
		return err
	}

	sourceDriver, err := iofs.New(db.MigrationFS, sourceDir)
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Version reports the current schema version and whether it is dirty.
func Version(dsn string) (uint, bool, error) {
	sourceDriver, err := iofs.New(db.MigrationFS, sourceDir)
	if err != nil {
		return 0, false, fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return 0, false, fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
