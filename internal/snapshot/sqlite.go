package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nowlens/nowlens/internal/servicenow"
	"github.com/nowlens/nowlens/migrations"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	Path string
	db   *sql.DB
	// SQLite allows only one writer at a time; serialize writes to avoid
	// SQLITE_BUSY contention when a batch capture fans out.
	writeMu sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}

	store := &SQLiteStore{
		Path: path,
		db:   db,
	}

	if err := store.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrations.Apply(context.Background(), db, migrations.DriverSQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) configure() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		return fmt.Errorf("enable sqlite WAL mode: %w", err)
	}
	if _, err := s.db.Exec(`PRAGMA synchronous = NORMAL;`); err != nil {
		return fmt.Errorf("set sqlite synchronous mode: %w", err)
	}
	if _, err := s.db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		return fmt.Errorf("set sqlite busy timeout: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) WriteSnapshot(ctx context.Context, snap Snapshot) error {
	key := strings.TrimSpace(snap.Info.TraceKey)
	if key == "" {
		return fmt.Errorf("snapshot trace key cannot be empty")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite snapshot transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	capturedAt := snap.Info.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	// Re-capturing a trace replaces the previous snapshot wholesale.
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_records WHERE trace_key = ?`, key); err != nil {
		return fmt.Errorf("clear previous snapshot records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO snapshot_traces (trace_key, conversation_id, execution_plan_id, label, state, captured_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (trace_key) DO UPDATE SET
    conversation_id = excluded.conversation_id,
    execution_plan_id = excluded.execution_plan_id,
    label = excluded.label,
    state = excluded.state,
    captured_at = excluded.captured_at`,
		key, snap.Info.ConversationID, snap.Info.ExecutionPlanID, snap.Info.Label, snap.Info.State, capturedAt.UTC(),
	); err != nil {
		return fmt.Errorf("write snapshot trace %q: %w", key, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO snapshot_records (trace_key, source_kind, position, record_id, payload)
VALUES (?, ?, ?, ?, ?)`)
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

func (s *SQLiteStore) ReadRecords(ctx context.Context, traceKey, sourceKind string) ([]servicenow.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT payload FROM snapshot_records
WHERE trace_key = ? AND source_kind = ?
ORDER BY position`, traceKey, sourceKind)
	if err != nil {
		return nil, fmt.Errorf("read snapshot records %s/%s: %w", traceKey, sourceKind, err)
	}
	defer rows.Close()

	return scanRecordRows(rows)
}

func (s *SQLiteStore) FindTrace(ctx context.Context, id string) (TraceInfo, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT trace_key, conversation_id, execution_plan_id, label, state, captured_at
FROM snapshot_traces
WHERE trace_key = ? OR conversation_id = ? OR execution_plan_id = ?
LIMIT 1`, id, id, id)
	return scanTraceInfo(row)
}

func (s *SQLiteStore) ListTraces(ctx context.Context) ([]TraceInfo, error) {
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTraceInfo(row rowScanner) (TraceInfo, error) {
	var info TraceInfo
	err := row.Scan(&info.TraceKey, &info.ConversationID, &info.ExecutionPlanID, &info.Label, &info.State, &info.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return TraceInfo{}, ErrNotFound
	}
	if err != nil {
		return TraceInfo{}, fmt.Errorf("scan snapshot trace: %w", err)
	}
	info.CapturedAt = info.CapturedAt.UTC()
	return info, nil
}

func scanRecordRows(rows *sql.Rows) ([]servicenow.Record, error) {
	var records []servicenow.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan snapshot record: %w", err)
		}
		var record servicenow.Record
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, fmt.Errorf("decode snapshot record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
