package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nowlens/nowlens/internal/servicenow"
	"github.com/nowlens/nowlens/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	DSN string
	db  *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	store := &PostgresStore{
		DSN: dsn,
		db:  db,
	}
	if err := store.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrations.Apply(context.Background(), db, migrations.DriverPostgres); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure postgres schema: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) configure() error {
	s.db.SetMaxOpenConns(4)
	s.db.SetMaxIdleConns(2)
	s.db.SetConnMaxIdleTime(5 * time.Minute)
	return nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) WriteSnapshot(ctx context.Context, snap Snapshot) error {
	key := strings.TrimSpace(snap.Info.TraceKey)
	if key == "" {
		return fmt.Errorf("snapshot trace key cannot be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin postgres snapshot transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	capturedAt := snap.Info.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_records WHERE trace_key = $1`, key); err != nil {
		return fmt.Errorf("clear previous snapshot records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO snapshot_traces (trace_key, conversation_id, execution_plan_id, label, state, captured_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (trace_key) DO UPDATE SET
    conversation_id = EXCLUDED.conversation_id,
    execution_plan_id = EXCLUDED.execution_plan_id,
    label = EXCLUDED.label,
    state = EXCLUDED.state,
    captured_at = EXCLUDED.captured_at`,
		key, snap.Info.ConversationID, snap.Info.ExecutionPlanID, snap.Info.Label, snap.Info.State, capturedAt.UTC(),
	); err != nil {
		return fmt.Errorf("write snapshot trace %q: %w", key, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO snapshot_records (trace_key, source_kind, position, record_id, payload)
VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot record insert: %w", err)
	}
	defer stmt.Close()

	for kind, records := range snap.Records {
		for position, record := range records {
			payload, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("encode snapshot record %s/%d: %w", kind, position, err)
			}
			if _, err := stmt.ExecContext(ctx, key, kind, position, record.SysID(), string(payload)); err != nil {
				return fmt.Errorf("write snapshot record %s/%d: %w", kind, position, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReadRecords(ctx context.Context, traceKey, sourceKind string) ([]servicenow.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT payload FROM snapshot_records
WHERE trace_key = $1 AND source_kind = $2
ORDER BY position`, traceKey, sourceKind)
	if err != nil {
		return nil, fmt.Errorf("read snapshot records %s/%s: %w", traceKey, sourceKind, err)
	}
	defer rows.Close()

	return scanRecordRows(rows)
}

func (s *PostgresStore) FindTrace(ctx context.Context, id string) (TraceInfo, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT trace_key, conversation_id, execution_plan_id, label, state, captured_at
FROM snapshot_traces
WHERE trace_key = $1 OR conversation_id = $1 OR execution_plan_id = $1
LIMIT 1`, id)
	info, err := scanTraceInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TraceInfo{}, ErrNotFound
	}
	return info, err
}

func (s *PostgresStore) ListTraces(ctx context.Context) ([]TraceInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT trace_key, conversation_id, execution_plan_id, label, state, captured_at
FROM snapshot_traces
ORDER BY captured_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshot traces: %w", err)
	}
	defer rows.Close()

	var infos []TraceInfo
	for rows.Next() {
		info, err := scanTraceInfo(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
