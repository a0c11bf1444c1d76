package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"sevibus.transitlab.org/internal/logging"
)

// migration is a single versioned schema change. Migrations run in slice
// order; versions already recorded in schema_migrations are skipped, which
// makes Migrate idempotent across restarts and upgrades.
type migration struct {
	version string
	sql     string
}

var migrations = []migration{
	{
		version: "001_topology_and_caches",
		sql: `
CREATE TABLE IF NOT EXISTS stops (
	code         TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	lat          REAL NOT NULL,
	lon          REAL NOT NULL,
	street       TEXT,
	house_number TEXT,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lines (
	number     TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	color      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stop_lines (
	stop_code   TEXT NOT NULL,
	line_number TEXT NOT NULL,
	direction   INTEGER NOT NULL,
	ordinal     INTEGER NOT NULL,
	PRIMARY KEY (stop_code, line_number, direction)
);

CREATE TABLE IF NOT EXISTS arrivals_cache (
	stop_code TEXT PRIMARY KEY,
	payload   BLOB NOT NULL,
	cached_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS addresses_cache (
	lat       REAL NOT NULL,
	lon       REAL NOT NULL,
	payload   BLOB NOT NULL,
	cached_at TEXT NOT NULL,
	PRIMARY KEY (lat, lon)
);
`,
	},
	{
		// Databases created by the first release predate the structured
		// address fields; they gain the columns here without data loss.
		version: "002_stop_address_fields",
		sql: `
ALTER TABLE stops ADD COLUMN postal_code TEXT;
ALTER TABLE stops ADD COLUMN municipality TEXT;
ALTER TABLE stops ADD COLUMN province TEXT;
ALTER TABLE stops ADD COLUMN region TEXT;
ALTER TABLE stops ADD COLUMN formatted_address TEXT;
`,
	},
	{
		version: "003_stop_lines_indexes",
		sql: `
CREATE INDEX IF NOT EXISTS idx_stop_lines_line ON stop_lines (line_number, direction, ordinal);
CREATE INDEX IF NOT EXISTS idx_stop_lines_stop ON stop_lines (stop_code);
`,
	},
}

// Migrate applies all pending migrations in order. Each migration and the
// recording of its version commit in one transaction, so a failed migration
// leaves the schema at the previous version.
func Migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return fmt.Errorf("read applied versions: %w", err)
	}

	pending := 0
	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("apply %q: %w", m.version, err)
		}
		pending++
		logging.LogOperation(logger, "migration_applied", slog.String("version", m.version))
	}

	if pending == 0 {
		logging.LogOperation(logger, "schema_up_to_date")
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	seen := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		seen[v] = true
	}
	return seen, rows.Err()
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("exec sql: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))`,
		m.version,
	); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
