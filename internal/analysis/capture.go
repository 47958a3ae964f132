package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/nowlens/nowlens/internal/fetch"
	"github.com/nowlens/nowlens/internal/servicenow"
	"github.com/nowlens/nowlens/internal/snapshot"
	"github.com/nowlens/nowlens/internal/source"
)

// CaptureResult summarizes what a snapshot capture stored.
type CaptureResult struct {
	Info    snapshot.TraceInfo
	Sources []SourceStatus
	Records int
	Partial bool
}

// CaptureTrace resolves an identifier against the live instance, fetches
// every applicable source, and writes the raw records to the store. Source
// failures degrade to a partial capture; the stored snapshot still replays
// deterministically because missing sources read back as empty.
func (a *Analyzer) CaptureTrace(ctx context.Context, store snapshot.Store, rawID string) (CaptureResult, error) {
	resolution, err := a.resolver.Resolve(ctx, rawID)
	if err != nil {
		return CaptureResult{}, err
	}

	snap := snapshot.Snapshot{
		Info: snapshot.TraceInfo{
			TraceKey:        resolution.Ident.Canonical(),
			ConversationID:  resolution.Ident.ConversationID,
			ExecutionPlanID: resolution.Ident.ExecutionPlanID,
			Label:           resolution.Label,
			State:           resolution.State,
			CapturedAt:      time.Now().UTC(),
		},
		Records: make(map[string][]servicenow.Record),
	}
	result := CaptureResult{Info: snap.Info}

	for _, spec := range source.Sources() {
		status := SourceStatus{Kind: spec.Kind, Name: spec.Name, Category: spec.Category}

		if !fetch.Applicable(spec, resolution.Ident) {
			status.Skipped = true
			result.Sources = append(result.Sources, status)
			continue
		}

		records, fetchErr := a.fetcher.Fetch(ctx, spec, resolution.Ident)
		if fetchErr != nil {
			status.Err = fetchErr
			status.ErrClass = servicenow.ClassifyFetchError(fetchErr)
			result.Partial = true
			result.Sources = append(result.Sources, status)
			a.logger.Warn("capture: source unavailable",
				"source", spec.Kind,
				"class", status.ErrClass,
				"error", fetchErr)
			continue
		}

		status.Records = len(records)
		result.Sources = append(result.Sources, status)
		result.Records += len(records)
		snap.Records[spec.Kind] = records
	}

	if err := store.WriteSnapshot(ctx, snap); err != nil {
		return CaptureResult{}, fmt.Errorf("analysis: write snapshot %s: %w", snap.Info.TraceKey, err)
	}
	return result, nil
}
