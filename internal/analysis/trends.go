package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nowlens/nowlens/internal/metrics"
	"github.com/nowlens/nowlens/internal/resolve"
	"github.com/nowlens/nowlens/internal/servicenow"
	"github.com/nowlens/nowlens/internal/source"
	"github.com/nowlens/nowlens/internal/timeline"
)

// DefaultTrendLimit caps how many recent runs a trend scan analyzes.
const DefaultTrendLimit = 50

// ErrNoRecentTraces means the trend window contained no execution plans.
var ErrNoRecentTraces = errors.New("analysis: no execution plans in the requested window")

// TrendOptions select the population for a trend scan.
type TrendOptions struct {
	Since   time.Time
	Usecase string
	Limit   int
}

// TrendAnalysis is the lightweight fleet-level result: one summary per
// recent run, aggregated with the same batch machinery as compare.
type TrendAnalysis struct {
	Options TrendOptions
	Batch   metrics.BatchMetrics
}

// AnalyzeTrends scans recent execution plans and compares them over time.
// Unlike AnalyzeBatch this deliberately fetches only the plan record and
// its model-call logs per run; a full twelve-source pipeline across fifty
// runs would hammer the instance for detail the quartile view never shows.
func (a *Analyzer) AnalyzeTrends(ctx context.Context, client resolve.Lister, opts TrendOptions) (TrendAnalysis, error) {
	if opts.Limit <= 0 || opts.Limit > DefaultTrendLimit {
		opts.Limit = DefaultTrendLimit
	}
	if opts.Since.IsZero() {
		opts.Since = time.Now().UTC().Add(-24 * time.Hour)
	}

	query := servicenow.NewQuery().
		After("sys_created_on", opts.Since.UTC().Format(servicenow.DateTimeLayout))
	if opts.Usecase != "" {
		query.Eq("usecase", opts.Usecase)
	}
	query.OrderByDesc("sys_created_on")

	plans, err := client.List(ctx, servicenow.ListOptions{
		Table:  "sn_aia_execution_plan",
		Query:  query.String(),
		Fields: []string{"sys_id", "conversation", "usecase", "state", "sys_created_on", "sys_updated_on"},
		Limit:  opts.Limit,
	})
	if err != nil {
		return TrendAnalysis{}, fmt.Errorf("analysis: list recent execution plans: %w", err)
	}
	if len(plans) == 0 {
		return TrendAnalysis{}, fmt.Errorf("%w (since %s)", ErrNoRecentTraces, opts.Since.Format(servicenow.DateTimeLayout))
	}

	llmSpec, ok := source.ByKind("generative_ai_log")
	if !ok {
		return TrendAnalysis{}, errors.New("analysis: model call source is not registered")
	}

	summaries := make([]metrics.TraceSummary, 0, len(plans))
	for _, plan := range plans {
		summaries = append(summaries, a.summarizePlan(ctx, llmSpec, plan))
	}

	return TrendAnalysis{
		Options: opts,
		Batch:   metrics.ComputeBatch(summaries),
	}, nil
}

// summarizePlan builds a TraceSummary from the plan record itself plus its
// model-call logs. Wall clock falls back to created->updated on the plan
// when no logs carry timestamps.
func (a *Analyzer) summarizePlan(ctx context.Context, llmSpec source.Spec, plan servicenow.Record) metrics.TraceSummary {
	ident := resolve.TraceIdentifier{
		ExecutionPlanID: plan.SysID(),
		ConversationID:  plan.Value("conversation"),
	}

	summary := metrics.TraceSummary{
		TraceID: ident.Canonical(),
		Label:   plan.Display("usecase"),
		State:   plan.Display("state"),
	}
	if created, ok := plan.Time("sys_created_on"); ok {
		summary.StartedAt = created
		if updated, ok := plan.Time("sys_updated_on"); ok && !updated.Before(created) {
			summary.TotalDurationMS = updated.Sub(created).Milliseconds()
			summary.DurationKnown = true
		}
	}

	records, err := a.fetcher.Fetch(ctx, llmSpec, ident)
	if err != nil {
		a.logger.Warn("trend scan: model call logs unavailable",
			"plan", plan.SysID(),
			"class", servicenow.ClassifyFetchError(err),
			"error", err)
		return summary
	}

	tl := timeline.Assemble(timeline.Normalize(llmSpec, records))
	m := metrics.Compute(tl)
	llm := m.Aggregate(source.CategoryLLM)
	summary.LLMCount = llm.Count
	summary.LLMTotalMS = llm.TotalDurationMS
	summary.LLMMaxMS = llm.MaxDurationMS
	summary.ErrorCount += m.ErrorCount
	if !summary.DurationKnown && m.WallClockKnown {
		summary.TotalDurationMS = m.WallClockMS
		summary.DurationKnown = true
	}
	if summary.StartedAt.IsZero() {
		summary.StartedAt = m.FirstStart
	}
	return summary
}
