package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations.
// migrations/postgres holds golang-migrate up/down pairs applied by cmd/migrate;
// migrations/sqlite is applied automatically by OpenSQLite.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var MigrationFS embed.FS
