// Package metrics computes derived performance measurements from assembled
// timelines: per-category aggregates for one trace and rankings, outliers,
// and trends across a batch. Everything here is a pure function of its
// inputs.
package metrics

import (
	"sort"
	"time"

	"github.com/nowlens/nowlens/internal/source"
	"github.com/nowlens/nowlens/internal/timeline"
)

const (
	// GapMinimum filters the time-gap report to pauses worth reading.
	GapMinimum = 500 * time.Millisecond
	// TokenGrowthThresholdPct flags runaway context growth across
	// reasoning turns.
	TokenGrowthThresholdPct = 20.0
)

// ReportedCategories is the fixed category order for reports. Every
// category is always present in aggregates, empty or not.
var ReportedCategories = []source.Category{
	source.CategoryLLM,
	source.CategoryTool,
	source.CategoryOrchestration,
	source.CategoryMessage,
	source.CategoryAccess,
	source.CategoryOther,
}

// CategoryAggregate summarizes one category. Totals cover only events with
// known durations; KnownCount vs Count exposes the coverage instead of
// zero-filling the difference away.
type CategoryAggregate struct {
	Category        source.Category
	Count           int
	KnownCount      int
	TotalDurationMS int64
	AvgDurationMS   float64
	MaxDurationMS   int64
	MinDurationMS   int64
	ErrorCount      int
	InputTokens     int64
	OutputTokens    int64
}

// Gap is a pause between two consecutive timeline events.
type Gap struct {
	DurationMS  int64
	At          time.Time
	AfterLabel  string
	BeforeLabel string
}

// TokenGrowth compares the first and last reasoning turns' input sizes.
type TokenGrowth struct {
	Turns          int
	FirstTurnInput int64
	LastTurnInput  int64
	GrowthAbs      int64
	GrowthPct      float64
	Flagged        bool
}

// TraceMetrics is the single-trace output of the engine.
type TraceMetrics struct {
	EventCount int
	Aggregates []CategoryAggregate

	// TotalProcessingMS sums LLM and Tool durations. WallClockMS is the
	// span from first start to last end. The two differ whenever work is
	// parallel or the run idles and must never be conflated.
	TotalProcessingMS int64
	WallClockMS       int64
	WallClockKnown    bool
	FirstStart        time.Time
	LastEnd           time.Time

	TokenGrowth      TokenGrowth
	TokenGrowthKnown bool

	// Gaps holds every pause above GapMinimum, longest first.
	Gaps []Gap

	// UnknownDurations counts events whose duration could not be
	// determined; their zeroes are excluded from the totals above.
	UnknownDurations int
	ErrorCount       int
}

// Compute derives TraceMetrics from a timeline. It never fails; an empty
// timeline produces empty-but-present aggregates.
func Compute(t timeline.Timeline) TraceMetrics {
	result := TraceMetrics{EventCount: len(t.Events)}

	byCategory := make(map[source.Category]*CategoryAggregate, len(ReportedCategories))
	for _, category := range ReportedCategories {
		byCategory[category] = &CategoryAggregate{Category: category}
	}

	for _, event := range t.Events {
		aggregate, ok := byCategory[event.Category]
		if !ok {
			aggregate = byCategory[source.CategoryOther]
		}
		aggregate.Count++
		aggregate.InputTokens += event.InputTokens
		aggregate.OutputTokens += event.OutputTokens
		if event.HasError() {
			aggregate.ErrorCount++
			result.ErrorCount++
		}
		if !event.DurationKnown {
			result.UnknownDurations++
			continue
		}
		if aggregate.KnownCount == 0 || event.DurationMS < aggregate.MinDurationMS {
			aggregate.MinDurationMS = event.DurationMS
		}
		if event.DurationMS > aggregate.MaxDurationMS {
			aggregate.MaxDurationMS = event.DurationMS
		}
		aggregate.KnownCount++
		aggregate.TotalDurationMS += event.DurationMS
	}

	for _, category := range ReportedCategories {
		aggregate := byCategory[category]
		if aggregate.KnownCount > 0 {
			aggregate.AvgDurationMS = float64(aggregate.TotalDurationMS) / float64(aggregate.KnownCount)
		}
		result.Aggregates = append(result.Aggregates, *aggregate)
	}

	result.TotalProcessingMS = byCategory[source.CategoryLLM].TotalDurationMS +
		byCategory[source.CategoryTool].TotalDurationMS

	if start, end, ok := t.Span(); ok {
		result.FirstStart = start
		result.LastEnd = end
		result.WallClockMS = end.Sub(start).Milliseconds()
		result.WallClockKnown = true
	}

	result.TokenGrowth, result.TokenGrowthKnown = computeTokenGrowth(t)
	result.Gaps = computeGaps(t)

	return result
}

// Aggregate returns the aggregate for one category; present for every
// reported category even when empty.
func (m TraceMetrics) Aggregate(category source.Category) CategoryAggregate {
	for _, aggregate := range m.Aggregates {
		if aggregate.Category == category {
			return aggregate
		}
	}
	return CategoryAggregate{Category: category}
}

func computeTokenGrowth(t timeline.Timeline) (TokenGrowth, bool) {
	var first, last *timeline.Event
	turns := 0
	for i := range t.Events {
		event := &t.Events[i]
		if event.Turn == 0 {
			continue
		}
		turns++
		if !event.TokensKnown {
			continue
		}
		if first == nil {
			first = event
		}
		last = event
	}
	if first == nil || last == nil || first == last || first.InputTokens <= 0 {
		return TokenGrowth{}, false
	}

	growth := TokenGrowth{
		Turns:          turns,
		FirstTurnInput: first.InputTokens,
		LastTurnInput:  last.InputTokens,
		GrowthAbs:      last.InputTokens - first.InputTokens,
	}
	growth.GrowthPct = float64(growth.GrowthAbs) / float64(first.InputTokens) * 100
	growth.Flagged = growth.GrowthPct > TokenGrowthThresholdPct
	return growth, true
}

func computeGaps(t timeline.Timeline) []Gap {
	var gaps []Gap
	for i := 0; i+1 < len(t.Events); i++ {
		current := t.Events[i]
		next := t.Events[i+1]
		if !current.StartKnown || !next.StartKnown {
			continue
		}
		pause := next.Start.Sub(current.EffectiveEnd())
		if pause <= GapMinimum {
			continue
		}
		gaps = append(gaps, Gap{
			DurationMS:  pause.Milliseconds(),
			At:          current.EffectiveEnd(),
			AfterLabel:  current.Label,
			BeforeLabel: next.Label,
		})
	}
	sort.SliceStable(gaps, func(i, j int) bool {
		return gaps[i].DurationMS > gaps[j].DurationMS
	})
	return gaps
}
