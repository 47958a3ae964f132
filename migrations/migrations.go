// Package migrations manages the snapshot store schema for both supported
// drivers. Each migration is applied exactly once and tracked in
// schema_migrations.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const (
	// DriverSQLite applies the sqlite statement set.
	DriverSQLite = "sqlite"
	// DriverPostgres applies the postgres statement set.
	DriverPostgres = "postgres"
)

type migration struct {
	name     string
	sqlite   string
	postgres string
}

var all = []migration{
	{
		name: "0001_snapshot_traces",
		sqlite: `
CREATE TABLE IF NOT EXISTS snapshot_traces (
    trace_key TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL DEFAULT '',
    execution_plan_id TEXT NOT NULL DEFAULT '',
    label TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT '',
    captured_at DATETIME NOT NULL
);
`,
		postgres: `
CREATE TABLE IF NOT EXISTS snapshot_traces (
    trace_key TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL DEFAULT '',
    execution_plan_id TEXT NOT NULL DEFAULT '',
    label TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT '',
    captured_at TIMESTAMPTZ NOT NULL
);
`,
	},
	{
		name: "0002_snapshot_records",
		sqlite: `
CREATE TABLE IF NOT EXISTS snapshot_records (
    trace_key TEXT NOT NULL,
    source_kind TEXT NOT NULL,
    position INTEGER NOT NULL,
    record_id TEXT NOT NULL DEFAULT '',
    payload TEXT NOT NULL,
    PRIMARY KEY (trace_key, source_kind, position)
);
`,
		postgres: `
CREATE TABLE IF NOT EXISTS snapshot_records (
    trace_key TEXT NOT NULL,
    source_kind TEXT NOT NULL,
    position INTEGER NOT NULL,
    record_id TEXT NOT NULL DEFAULT '',
    payload TEXT NOT NULL,
    PRIMARY KEY (trace_key, source_kind, position)
);
`,
	},
	{
		name: "0003_snapshot_trace_ids_index",
		sqlite: `
CREATE INDEX IF NOT EXISTS idx_snapshot_traces_ids
    ON snapshot_traces (conversation_id, execution_plan_id);
`,
		postgres: `
CREATE INDEX IF NOT EXISTS idx_snapshot_traces_ids
    ON snapshot_traces (conversation_id, execution_plan_id);
`,
	},
}

// Apply runs all migrations for the selected driver in declaration order.
func Apply(ctx context.Context, db *sql.DB, driver string) error {
	if db == nil {
		return fmt.Errorf("database is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver != DriverSQLite && driver != DriverPostgres {
		return fmt.Errorf("unsupported migration driver %q", driver)
	}

	if err := ensureMigrationsTable(ctx, db, driver); err != nil {
		return err
	}

	for _, entry := range all {
		body := entry.sqlite
		if driver == DriverPostgres {
			body = entry.postgres
		}
		if err := applyMigration(ctx, db, driver, entry.name, body); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.name, err)
		}
	}

	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB, driver string) error {
	var ddl string
	switch driver {
	case DriverSQLite:
		ddl = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	case DriverPostgres:
		ddl = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	default:
		return fmt.Errorf("unsupported migration driver %q", driver)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, driver, name, statement string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	claimed, err := claimMigration(ctx, tx, driver, name)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if !claimed {
		if err := tx.Rollback(); err != nil {
			return fmt.Errorf("rollback transaction: %w", err)
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, statement); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute migration sql: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func claimMigration(ctx context.Context, tx *sql.Tx, driver, name string) (bool, error) {
	var (
		sqlText string
		args    []any
	)
	switch driver {
	case DriverSQLite:
		sqlText = `INSERT OR IGNORE INTO schema_migrations (name) VALUES (?)`
		args = append(args, name)
	case DriverPostgres:
		sqlText = `INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`
		args = append(args, name)
	default:
		return false, fmt.Errorf("unsupported migration driver %q", driver)
	}

	res, err := tx.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return false, fmt.Errorf("insert schema_migrations row: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read insert row count: %w", err)
	}
	return affected > 0, nil
}
