package db

import "embed"

// MigrationFS embeds the Postgres migrations in golang-migrate layout (NNNNNN_name.{up,down}.sql).
// Used by the migrate runner (cmd/migrate).
//
//go:embed migrations/*.sql
var MigrationFS embed.FS

// sqliteMigrationsFS embeds forward-only SQLite migrations applied by OpenSQLite.
//
//go:embed sqlite_migrations/*.sql
var sqliteMigrationsFS embed.FS
