// Package report derives ranked findings and recommendations from computed
// metrics. Everything is a pure function of its inputs: no I/O, no mutable
// state, and the output shape is identical whether or not data exists for a
// section.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nowlens/nowlens/internal/metrics"
	"github.com/nowlens/nowlens/internal/source"
	"github.com/nowlens/nowlens/internal/timeline"
)

const (
	// InvestigateThreshold flags any single operation slow enough to
	// warrant a look regardless of its neighbors.
	InvestigateThreshold = 10 * time.Second

	// TopSlowestCount and TopGapCount bound the ranked lists.
	TopSlowestCount = 10
	TopGapCount     = 5
	// LargeGapWarning triggers the idle-period recommendation.
	LargeGapWarning = 2 * time.Second
	// SlowAPIWarning triggers the integration-latency recommendation for
	// any single outbound API invocation.
	SlowAPIWarning = 5 * time.Second
)

// apiLabelPrefix marks operations normalized from outbound API
// invocations; they share the Tool category with platform tools.
const apiLabelPrefix = "API: "

// Operation is one timeline event cited in a finding.
type Operation struct {
	Category   source.Category
	Label      string
	DurationMS int64
	Start      time.Time
	StartKnown bool
	Error      string
}

// CategoryFinding summarizes one category's extremes. Present for every
// reported category; Present=false means the category had no measurable
// events.
type CategoryFinding struct {
	Category    source.Category
	Present     bool
	Fastest     Operation
	Slowest     Operation
	Investigate []Operation
}

// ErrorEntry is one failed operation in the consolidated error list.
type ErrorEntry struct {
	Category  source.Category
	Label     string
	Message   string
	Time      time.Time
	TimeKnown bool
}

// Findings is the bottleneck/anomaly report for one trace.
type Findings struct {
	SlowestOperation      Operation
	SlowestOperationKnown bool

	DominantCategory        source.Category
	DominantCategoryTotalMS int64
	DominantCategoryKnown   bool

	TopSlowest []Operation
	TopGaps    []metrics.Gap

	TokenWarning      metrics.TokenGrowth
	TokenWarningKnown bool

	Categories []CategoryFinding
	Errors     []ErrorEntry

	Recommendations []string
}

// Build derives Findings from a trace's metrics and timeline.
func Build(m metrics.TraceMetrics, t timeline.Timeline) Findings {
	findings := Findings{}

	measured := measuredOperations(t)
	if len(measured) > 0 {
		findings.SlowestOperation = measured[0]
		findings.SlowestOperationKnown = true
	}
	if len(measured) > TopSlowestCount {
		findings.TopSlowest = measured[:TopSlowestCount]
	} else {
		findings.TopSlowest = measured
	}

	for _, aggregate := range m.Aggregates {
		if aggregate.TotalDurationMS > findings.DominantCategoryTotalMS {
			findings.DominantCategory = aggregate.Category
			findings.DominantCategoryTotalMS = aggregate.TotalDurationMS
			findings.DominantCategoryKnown = true
		}
	}

	if len(m.Gaps) > TopGapCount {
		findings.TopGaps = m.Gaps[:TopGapCount]
	} else {
		findings.TopGaps = m.Gaps
	}

	if m.TokenGrowthKnown && m.TokenGrowth.Flagged {
		findings.TokenWarning = m.TokenGrowth
		findings.TokenWarningKnown = true
	}

	findings.Categories = categoryFindings(t)
	findings.Errors = errorEntries(t)
	findings.Recommendations = recommend(m, findings)

	return findings
}

func measuredOperations(t timeline.Timeline) []Operation {
	operations := make([]Operation, 0, len(t.Events))
	for _, event := range t.Events {
		if !event.DurationKnown || event.DurationMS <= 0 {
			continue
		}
		operations = append(operations, asOperation(event))
	}
	sort.SliceStable(operations, func(i, j int) bool {
		return operations[i].DurationMS > operations[j].DurationMS
	})
	return operations
}

func categoryFindings(t timeline.Timeline) []CategoryFinding {
	findings := make([]CategoryFinding, 0, len(metrics.ReportedCategories))
	for _, category := range metrics.ReportedCategories {
		finding := CategoryFinding{Category: category}
		for _, event := range t.Events {
			if event.Category != category || !event.DurationKnown {
				continue
			}
			operation := asOperation(event)
			if !finding.Present {
				finding.Present = true
				finding.Fastest = operation
				finding.Slowest = operation
			} else {
				if operation.DurationMS < finding.Fastest.DurationMS {
					finding.Fastest = operation
				}
				if operation.DurationMS > finding.Slowest.DurationMS {
					finding.Slowest = operation
				}
			}
			if time.Duration(operation.DurationMS)*time.Millisecond > InvestigateThreshold {
				finding.Investigate = append(finding.Investigate, operation)
			}
		}
		sort.SliceStable(finding.Investigate, func(i, j int) bool {
			return finding.Investigate[i].DurationMS > finding.Investigate[j].DurationMS
		})
		findings = append(findings, finding)
	}
	return findings
}

func errorEntries(t timeline.Timeline) []ErrorEntry {
	var entries []ErrorEntry
	for _, event := range t.Events {
		if !event.HasError() {
			continue
		}
		entries = append(entries, ErrorEntry{
			Category:  event.Category,
			Label:     event.Label,
			Message:   event.Error,
			Time:      event.Start,
			TimeKnown: event.StartKnown,
		})
	}
	return entries
}

func recommend(m metrics.TraceMetrics, findings Findings) []string {
	var recommendations []string

	if findings.DominantCategoryKnown {
		total := time.Duration(findings.DominantCategoryTotalMS) * time.Millisecond
		switch findings.DominantCategory {
		case source.CategoryLLM:
			if total > 10*time.Second {
				recommendations = append(recommendations,
					"LLM calls dominate the run: reduce prompt sizes, route simple steps to faster models, and reuse cached completions where the platform allows it")
			}
		case source.CategoryTool:
			if total > 5*time.Second {
				recommendations = append(recommendations,
					"Tool executions dominate the run: profile the tool implementations and cache repeated lookups")
			}
		}
	}

	for _, operation := range findings.TopSlowest {
		if !strings.HasPrefix(operation.Label, apiLabelPrefix) {
			continue
		}
		if time.Duration(operation.DurationMS)*time.Millisecond > SlowAPIWarning {
			recommendations = append(recommendations,
				"Slow integration API calls detected: review the invoked services' latency and move long calls off the critical path where the flow allows it")
		}
		break
	}

	if len(findings.TopGaps) > 0 && time.Duration(findings.TopGaps[0].DurationMS)*time.Millisecond > LargeGapWarning {
		recommendations = append(recommendations,
			"Large idle gaps detected: check skill discovery and routing for synchronous waits that could overlap with other work")
	}

	if findings.TokenWarningKnown {
		recommendations = append(recommendations, fmt.Sprintf(
			"Reasoning context grew %.1f%% between the first and last turn: trim carried-forward history to keep later turns cheap",
			findings.TokenWarning.GrowthPct))
	}

	if len(findings.Errors) > 0 {
		recommendations = append(recommendations,
			"Errors detected: failed operations often trigger retries that inflate the run; fix these first")
	}

	if m.UnknownDurations > 0 {
		recommendations = append(recommendations, fmt.Sprintf(
			"%d events carried no usable duration; totals understate the real cost of those sources", m.UnknownDurations))
	}

	return recommendations
}

func asOperation(event timeline.Event) Operation {
	return Operation{
		Category:   event.Category,
		Label:      event.Label,
		DurationMS: event.DurationMS,
		Start:      event.Start,
		StartKnown: event.StartKnown,
		Error:      event.Error,
	}
}
