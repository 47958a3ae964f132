package report

import (
	"strings"
	"testing"
	"time"

	"github.com/nowlens/nowlens/internal/metrics"
	"github.com/nowlens/nowlens/internal/source"
	"github.com/nowlens/nowlens/internal/timeline"
)

func at(second int) time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC).Add(time.Duration(second) * time.Second)
}

func timedEvent(category source.Category, label string, start time.Time, durationMS int64) timeline.Event {
	return timeline.Event{
		Category:      category,
		Label:         label,
		Start:         start,
		StartKnown:    true,
		DurationMS:    durationMS,
		DurationKnown: true,
	}
}

func buildFor(events []timeline.Event) Findings {
	tl := timeline.Timeline{Events: events}
	return Build(metrics.Compute(tl), tl)
}

func TestBuildSlowestOperationAndRanking(t *testing.T) {
	t.Parallel()

	findings := buildFor([]timeline.Event{
		timedEvent(source.CategoryLLM, "quick", at(0), 100),
		timedEvent(source.CategoryTool, "slowest", at(1), 12000),
		timedEvent(source.CategoryLLM, "middle", at(2), 4000),
	})

	if !findings.SlowestOperationKnown {
		t.Fatal("SlowestOperationKnown=false, want true")
	}
	if findings.SlowestOperation.Label != "slowest" {
		t.Fatalf("SlowestOperation.Label=%q, want %q", findings.SlowestOperation.Label, "slowest")
	}

	wantOrder := []string{"slowest", "middle", "quick"}
	if len(findings.TopSlowest) != len(wantOrder) {
		t.Fatalf("len(TopSlowest)=%d, want %d", len(findings.TopSlowest), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got := findings.TopSlowest[i].Label; got != want {
			t.Fatalf("TopSlowest[%d].Label=%q, want %q", i, got, want)
		}
	}
}

func TestBuildTopSlowestIsCapped(t *testing.T) {
	t.Parallel()

	events := make([]timeline.Event, 0, TopSlowestCount+5)
	for i := 0; i < TopSlowestCount+5; i++ {
		events = append(events, timedEvent(source.CategoryLLM, "llm", at(i), int64(100+i)))
	}

	findings := buildFor(events)
	if len(findings.TopSlowest) != TopSlowestCount {
		t.Fatalf("len(TopSlowest)=%d, want %d", len(findings.TopSlowest), TopSlowestCount)
	}
}

func TestBuildDominantCategory(t *testing.T) {
	t.Parallel()

	findings := buildFor([]timeline.Event{
		timedEvent(source.CategoryLLM, "llm", at(0), 15000),
		timedEvent(source.CategoryTool, "tool", at(1), 2000),
	})

	if !findings.DominantCategoryKnown {
		t.Fatal("DominantCategoryKnown=false, want true")
	}
	if findings.DominantCategory != source.CategoryLLM || findings.DominantCategoryTotalMS != 15000 {
		t.Fatalf("dominant=(%q,%d), want (LLM,15000)", findings.DominantCategory, findings.DominantCategoryTotalMS)
	}
}

func TestBuildCategoryFindings(t *testing.T) {
	t.Parallel()

	findings := buildFor([]timeline.Event{
		timedEvent(source.CategoryLLM, "fast llm", at(0), 100),
		timedEvent(source.CategoryLLM, "slow llm", at(1), 11000),
	})

	var llm CategoryFinding
	for _, finding := range findings.Categories {
		if finding.Category == source.CategoryLLM {
			llm = finding
		}
	}
	if !llm.Present {
		t.Fatal("LLM finding Present=false, want true")
	}
	if llm.Fastest.Label != "fast llm" || llm.Slowest.Label != "slow llm" {
		t.Fatalf("fastest=%q slowest=%q, want fast llm / slow llm", llm.Fastest.Label, llm.Slowest.Label)
	}
	// 11s clears the investigate threshold, 100ms does not.
	if len(llm.Investigate) != 1 || llm.Investigate[0].Label != "slow llm" {
		t.Fatalf("Investigate=%+v, want [slow llm]", llm.Investigate)
	}

	// Absent categories are still listed.
	if len(findings.Categories) != len(metrics.ReportedCategories) {
		t.Fatalf("len(Categories)=%d, want %d", len(findings.Categories), len(metrics.ReportedCategories))
	}
	for _, finding := range findings.Categories {
		if finding.Category == source.CategoryAccess && finding.Present {
			t.Fatal("Access finding Present=true with no access events")
		}
	}
}

func TestBuildErrorsAndRecommendation(t *testing.T) {
	t.Parallel()

	failed := timedEvent(source.CategoryTool, "broken tool", at(0), 500)
	failed.Error = "tool invocation failed"

	findings := buildFor([]timeline.Event{failed})

	if len(findings.Errors) != 1 {
		t.Fatalf("len(Errors)=%d, want 1", len(findings.Errors))
	}
	entry := findings.Errors[0]
	if entry.Label != "broken tool" || entry.Message != "tool invocation failed" {
		t.Fatalf("ErrorEntry=%+v, want broken tool / tool invocation failed", entry)
	}

	if !hasRecommendationContaining(findings, "Errors detected") {
		t.Fatalf("Recommendations=%v, want an errors recommendation", findings.Recommendations)
	}
}

func TestBuildGapRecommendation(t *testing.T) {
	t.Parallel()

	findings := buildFor([]timeline.Event{
		timedEvent(source.CategoryLLM, "a", at(0), 100),
		timedEvent(source.CategoryLLM, "b", at(30), 100),
	})

	if len(findings.TopGaps) == 0 {
		t.Fatal("TopGaps empty, want the 29.9s pause")
	}
	if !hasRecommendationContaining(findings, "idle gaps") {
		t.Fatalf("Recommendations=%v, want an idle-gap recommendation", findings.Recommendations)
	}
}

func TestBuildUnknownDurationRecommendation(t *testing.T) {
	t.Parallel()

	unmeasured := timeline.Event{
		Category:   source.CategoryTool,
		Label:      "no duration",
		Start:      at(0),
		StartKnown: true,
	}
	findings := buildFor([]timeline.Event{unmeasured})

	if findings.SlowestOperationKnown {
		t.Fatal("SlowestOperationKnown=true with no measured operations")
	}
	if !hasRecommendationContaining(findings, "no usable duration") {
		t.Fatalf("Recommendations=%v, want an unknown-duration note", findings.Recommendations)
	}
}

func TestBuildEmptyTimeline(t *testing.T) {
	t.Parallel()

	findings := buildFor(nil)
	if findings.SlowestOperationKnown || findings.DominantCategoryKnown {
		t.Fatal("empty timeline produced known findings")
	}
	if len(findings.Recommendations) != 0 {
		t.Fatalf("Recommendations=%v, want none", findings.Recommendations)
	}
}

func TestBuildRecommendsSlowAPICalls(t *testing.T) {
	t.Parallel()

	findings := buildFor([]timeline.Event{
		timedEvent(source.CategoryTool, "API: Fetch weather", at(0), 6000),
		timedEvent(source.CategoryTool, "Tool: Lookup KB", at(10), 7000),
	})
	if !hasRecommendationContaining(findings, "integration API") {
		t.Fatalf("Recommendations=%v, want the slow integration API warning", findings.Recommendations)
	}

	fast := buildFor([]timeline.Event{
		timedEvent(source.CategoryTool, "API: Fetch weather", at(0), 4000),
	})
	if hasRecommendationContaining(fast, "integration API") {
		t.Fatalf("Recommendations=%v, want no API warning below the threshold", fast.Recommendations)
	}
}

func hasRecommendationContaining(findings Findings, fragment string) bool {
	for _, recommendation := range findings.Recommendations {
		if strings.Contains(recommendation, fragment) {
			return true
		}
	}
	return false
}
