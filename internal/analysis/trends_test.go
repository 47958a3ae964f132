package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nowlens/nowlens/internal/metrics"
	"github.com/nowlens/nowlens/internal/servicenow"
)

// fakeLister answers the execution plan scan and records the query it saw.
type fakeLister struct {
	plans     []servicenow.Record
	lastQuery string
	lastLimit int
	err       error
}

func (f *fakeLister) List(ctx context.Context, opts servicenow.ListOptions) ([]servicenow.Record, error) {
	f.lastQuery = opts.Query
	f.lastLimit = opts.Limit
	if f.err != nil {
		return nil, f.err
	}
	return f.plans, nil
}

func trendPlan(id, conversation, created, updated string) servicenow.Record {
	return servicenow.Record{
		"sys_id":         servicenow.NewField(id, id),
		"conversation":   servicenow.NewField(conversation, conversation),
		"usecase":        servicenow.NewField("triage", "Incident triage"),
		"state":          servicenow.NewField("complete", "Complete"),
		"sys_created_on": servicenow.NewField(created, created),
		"sys_updated_on": servicenow.NewField(updated, updated),
	}
}

func TestAnalyzeTrendsSummarizesRecentPlans(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{plans: []servicenow.Record{
		trendPlan("plan1", "conv1", "2026-03-14 09:00:00", "2026-03-14 09:00:10"),
		trendPlan("plan2", "conv2", "2026-03-14 10:00:00", "2026-03-14 10:00:40"),
	}}
	fetcher := &fakeFetcher{records: map[string][]servicenow.Record{
		"generative_ai_log": {
			{
				"sys_id":     servicenow.NewField("log1", "log1"),
				"started_at": servicenow.NewField("2026-03-14 09:00:01", "2026-03-14 09:00:01"),
				"time_taken": servicenow.NewField("2000", "2,000"),
			},
		},
	}}

	analyzer := NewAnalyzer(&fakeResolver{}, fetcher, testLogger())
	since := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	trend, err := analyzer.AnalyzeTrends(context.Background(), lister, TrendOptions{Since: since, Usecase: "triage"})
	if err != nil {
		t.Fatalf("AnalyzeTrends() error: %v", err)
	}

	if !strings.Contains(lister.lastQuery, "sys_created_on>2026-03-14 00:00:00") {
		t.Fatalf("query=%q, want the since bound", lister.lastQuery)
	}
	if !strings.Contains(lister.lastQuery, "usecase=triage") {
		t.Fatalf("query=%q, want the usecase filter", lister.lastQuery)
	}
	if !strings.Contains(lister.lastQuery, "ORDERBYDESCsys_created_on") {
		t.Fatalf("query=%q, want newest-first ordering", lister.lastQuery)
	}
	if lister.lastLimit != DefaultTrendLimit {
		t.Fatalf("limit=%d, want %d", lister.lastLimit, DefaultTrendLimit)
	}

	if len(trend.Batch.Traces) != 2 {
		t.Fatalf("len(Traces)=%d, want 2", len(trend.Batch.Traces))
	}
	byID := make(map[string]metrics.TraceSummary)
	for _, summary := range trend.Batch.Traces {
		byID[summary.TraceID] = summary
	}
	first := byID["plan1"]
	if !first.DurationKnown || first.TotalDurationMS != 10000 {
		t.Fatalf("plan1 duration=(%d,%v), want (10000,true) from plan created->updated", first.TotalDurationMS, first.DurationKnown)
	}
	if first.LLMCount != 1 || first.LLMTotalMS != 2000 {
		t.Fatalf("plan1 llm=(%d,%d), want (1,2000)", first.LLMCount, first.LLMTotalMS)
	}
}

func TestAnalyzeTrendsEmptyWindow(t *testing.T) {
	t.Parallel()

	analyzer := NewAnalyzer(&fakeResolver{}, &fakeFetcher{}, testLogger())
	_, err := analyzer.AnalyzeTrends(context.Background(), &fakeLister{}, TrendOptions{
		Since: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrNoRecentTraces) {
		t.Fatalf("AnalyzeTrends() error=%v, want ErrNoRecentTraces", err)
	}
}

func TestAnalyzeTrendsListFailure(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{err: servicenow.ErrUnavailable}
	analyzer := NewAnalyzer(&fakeResolver{}, &fakeFetcher{}, testLogger())
	_, err := analyzer.AnalyzeTrends(context.Background(), lister, TrendOptions{})
	if !errors.Is(err, servicenow.ErrUnavailable) {
		t.Fatalf("AnalyzeTrends() error=%v, want wrapped ErrUnavailable", err)
	}
}

func TestAnalyzeTrendsLogFailureDegradesToPlanDuration(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{plans: []servicenow.Record{
		trendPlan("plan1", "conv1", "2026-03-14 09:00:00", "2026-03-14 09:00:10"),
	}}
	fetcher := &fakeFetcher{fail: map[string]error{
		"generative_ai_log": servicenow.ErrUnavailable,
	}}

	analyzer := NewAnalyzer(&fakeResolver{}, fetcher, testLogger())
	trend, err := analyzer.AnalyzeTrends(context.Background(), lister, TrendOptions{
		Since: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("AnalyzeTrends() error: %v", err)
	}
	if len(trend.Batch.Traces) != 1 {
		t.Fatalf("len(Traces)=%d, want 1", len(trend.Batch.Traces))
	}
	summary := trend.Batch.Traces[0]
	if !summary.DurationKnown || summary.TotalDurationMS != 10000 {
		t.Fatalf("duration=(%d,%v), want the plan record fallback (10000,true)", summary.TotalDurationMS, summary.DurationKnown)
	}
	if summary.LLMCount != 0 {
		t.Fatalf("LLMCount=%d, want 0 when logs are unavailable", summary.LLMCount)
	}
}
