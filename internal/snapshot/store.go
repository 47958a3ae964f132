// Package snapshot persists raw source records for a trace so analyses can
// run offline and repeatably. Only raw records are stored; computed reports
// never are.
package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/nowlens/nowlens/internal/servicenow"
)

// ErrNotFound marks a trace key or snapshot that does not exist in the store.
var ErrNotFound = errors.New("snapshot: not found")

// TraceInfo identifies one captured trace.
type TraceInfo struct {
	TraceKey        string
	ConversationID  string
	ExecutionPlanID string
	Label           string
	State           string
	CapturedAt      time.Time
}

// Snapshot holds everything captured for one trace, records grouped by
// source kind in fetch order.
type Snapshot struct {
	Info    TraceInfo
	Records map[string][]servicenow.Record
}

// Store reads and writes snapshots. Implementations are safe for
// sequential use from one analysis pipeline; concurrent writers are not a
// supported workload.
type Store interface {
	WriteSnapshot(ctx context.Context, snap Snapshot) error
	ReadRecords(ctx context.Context, traceKey, sourceKind string) ([]servicenow.Record, error)
	// FindTrace matches a raw identifier against the trace key,
	// conversation id, or execution plan id of captured traces.
	FindTrace(ctx context.Context, id string) (TraceInfo, error)
	ListTraces(ctx context.Context) ([]TraceInfo, error)
	Close() error
}
