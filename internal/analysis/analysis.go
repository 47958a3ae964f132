// Package analysis wires the pipeline: resolve an identifier, fetch every
// source, normalize and assemble the timeline, compute metrics, and derive
// findings. Each invocation is independent and produces no shared state.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nowlens/nowlens/internal/fetch"
	"github.com/nowlens/nowlens/internal/metrics"
	"github.com/nowlens/nowlens/internal/report"
	"github.com/nowlens/nowlens/internal/resolve"
	"github.com/nowlens/nowlens/internal/servicenow"
	"github.com/nowlens/nowlens/internal/source"
	"github.com/nowlens/nowlens/internal/timeline"
)

const (
	// MinBatchSize and MaxBatchSize bound a comparison batch.
	MinBatchSize = 2
	MaxBatchSize = 10
)

// ErrInvalidBatch rejects comparison batches outside [MinBatchSize,
// MaxBatchSize].
var ErrInvalidBatch = errors.New("analysis: batch must contain between 2 and 10 trace identifiers")

// Resolver is the identifier resolution seam; implemented by
// *resolve.Resolver for live instances and by the snapshot store resolver
// for offline runs.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (resolve.Resolution, error)
}

// SourceStatus records what one source contributed. Failed sources are
// carried through to the report rather than silently shrinking totals.
type SourceStatus struct {
	Kind     string
	Name     string
	Category source.Category
	Records  int
	Skipped  bool
	Err      error
	ErrClass string
}

// TraceAnalysis is the full single-trace result.
type TraceAnalysis struct {
	Input      string
	Resolution resolve.Resolution
	Sources    []SourceStatus
	Timeline   timeline.Timeline
	Metrics    metrics.TraceMetrics
	Findings   report.Findings

	// Partial is set when at least one source was unavailable; totals are
	// best-effort and the report flags the gap.
	Partial bool
}

// Summary reduces the analysis for batch comparison.
func (a TraceAnalysis) Summary() metrics.TraceSummary {
	return metrics.Summarize(a.Resolution.Ident.Canonical(), a.Resolution.Label, a.Resolution.State, a.Metrics)
}

type Analyzer struct {
	resolver Resolver
	fetcher  fetch.Fetcher
	logger   *slog.Logger
}

func NewAnalyzer(resolver Resolver, fetcher fetch.Fetcher, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{resolver: resolver, fetcher: fetcher, logger: logger}
}

// AnalyzeTrace runs the whole pipeline for one identifier. The returned
// error is terminal (unresolvable or malformed identifier); per-source
// failures degrade to a partial analysis instead.
func (a *Analyzer) AnalyzeTrace(ctx context.Context, rawID string) (TraceAnalysis, error) {
	resolution, err := a.resolver.Resolve(ctx, rawID)
	if err != nil {
		return TraceAnalysis{}, err
	}

	analysis := TraceAnalysis{
		Input:      rawID,
		Resolution: resolution,
	}

	var events []timeline.Event
	for _, spec := range source.Sources() {
		status := SourceStatus{Kind: spec.Kind, Name: spec.Name, Category: spec.Category}

		if !fetch.Applicable(spec, resolution.Ident) {
			status.Skipped = true
			analysis.Sources = append(analysis.Sources, status)
			continue
		}

		records, fetchErr := a.fetcher.Fetch(ctx, spec, resolution.Ident)
		if fetchErr != nil {
			status.Err = fetchErr
			status.ErrClass = servicenow.ClassifyFetchError(fetchErr)
			analysis.Partial = true
			analysis.Sources = append(analysis.Sources, status)
			a.logger.Warn("source unavailable",
				"source", spec.Kind,
				"class", status.ErrClass,
				"error", fetchErr)
			continue
		}

		status.Records = len(records)
		analysis.Sources = append(analysis.Sources, status)
		events = append(events, timeline.Normalize(spec, records)...)
	}

	analysis.Timeline = timeline.Assemble(events)
	analysis.Metrics = metrics.Compute(analysis.Timeline)
	analysis.Findings = report.Build(analysis.Metrics, analysis.Timeline)

	return analysis, nil
}

// BatchEntry is one trace's slot in a batch result. Err holds a terminal
// per-trace failure (typically resolve.ErrNotFound); the slot is kept so
// the comparison table can show what failed.
type BatchEntry struct {
	Input    string
	Analysis *TraceAnalysis
	Err      error
}

// BatchAnalysis compares 2-10 traces.
type BatchAnalysis struct {
	Entries []BatchEntry
	Batch   metrics.BatchMetrics
}

// AnalyzeBatch runs one independent pipeline per identifier and aggregates
// the summaries. Pipelines run concurrently but write only their own slot;
// the final ordering follows the input order regardless of completion
// order.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, rawIDs []string) (BatchAnalysis, error) {
	if len(rawIDs) < MinBatchSize || len(rawIDs) > MaxBatchSize {
		return BatchAnalysis{}, fmt.Errorf("%w (got %d)", ErrInvalidBatch, len(rawIDs))
	}

	entries := make([]BatchEntry, len(rawIDs))
	var wg sync.WaitGroup
	for i, rawID := range rawIDs {
		wg.Add(1)
		go func(slot int, id string) {
			defer wg.Done()
			analysis, err := a.AnalyzeTrace(ctx, id)
			if err != nil {
				entries[slot] = BatchEntry{Input: id, Err: err}
				return
			}
			entries[slot] = BatchEntry{Input: id, Analysis: &analysis}
		}(i, rawID)
	}
	wg.Wait()

	summaries := make([]metrics.TraceSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.Analysis != nil {
			summaries = append(summaries, entry.Analysis.Summary())
		}
	}

	return BatchAnalysis{
		Entries: entries,
		Batch:   metrics.ComputeBatch(summaries),
	}, nil
}
