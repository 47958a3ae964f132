package summarize

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nowlens/nowlens/internal/analysis"
	"github.com/nowlens/nowlens/internal/config"
	"github.com/nowlens/nowlens/internal/metrics"
	"github.com/nowlens/nowlens/internal/resolve"
	"github.com/nowlens/nowlens/internal/source"
	"github.com/nowlens/nowlens/internal/timeline"
)

func TestNewDisabled(t *testing.T) {
	t.Parallel()

	_, err := New(config.SummarizerConfig{})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("New() error=%v, want ErrDisabled", err)
	}
}

func TestNewEnabled(t *testing.T) {
	t.Parallel()

	s, err := New(config.SummarizerConfig{
		Enabled: true,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
		BaseURL: "https://llm.internal.example/v1/",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if s == nil {
		t.Fatal("New() returned nil Summarizer")
	}
}

func digestFixture() analysis.TraceAnalysis {
	start := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	tl := timeline.Timeline{Events: []timeline.Event{
		{
			Category:      source.CategoryLLM,
			Label:         "Generate response",
			Start:         start,
			StartKnown:    true,
			DurationMS:    12000,
			DurationKnown: true,
			InputTokens:   1000,
			OutputTokens:  200,
			TokensKnown:   true,
		},
		{
			Category:      source.CategoryTool,
			Label:         "Tool: Lookup KB",
			Start:         start.Add(30 * time.Second),
			StartKnown:    true,
			DurationMS:    500,
			DurationKnown: true,
			Error:         "lookup failed",
		},
	}}
	return analysis.TraceAnalysis{
		Input: "plan1",
		Resolution: resolve.Resolution{
			Ident: resolve.TraceIdentifier{ExecutionPlanID: "plan1", ConversationID: "conv1"},
			Label: "Incident triage",
		},
		Timeline: tl,
		Metrics:  metrics.Compute(tl),
		Partial:  true,
	}
}

func TestDigestContainsAggregatesOnly(t *testing.T) {
	t.Parallel()

	digest := Digest(digestFixture())

	for _, want := range []string{
		"trace: plan1",
		"usecase: Incident triage",
		"events: 2, errors: 1",
		"LLM: count=1 total=12000ms",
		"tokens: in=1000 out=200",
		"gap: ",
		"totals are partial",
	} {
		if !strings.Contains(digest, want) {
			t.Fatalf("Digest missing %q:\n%s", want, digest)
		}
	}

	// Raw record content must never reach the model.
	if strings.Contains(digest, "sys_id") || strings.Contains(digest, "payload") {
		t.Fatalf("Digest leaks raw record fields:\n%s", digest)
	}
	// Empty categories are omitted rather than zero-filled.
	if strings.Contains(digest, "Orchestration:") {
		t.Fatalf("Digest lists empty category:\n%s", digest)
	}
}

func TestDigestUnknownWallClock(t *testing.T) {
	t.Parallel()

	digest := Digest(analysis.TraceAnalysis{
		Resolution: resolve.Resolution{Ident: resolve.TraceIdentifier{ConversationID: "conv1"}},
	})
	if !strings.Contains(digest, "wall clock: unknown") {
		t.Fatalf("Digest=%q, want the unknown wall clock marker", digest)
	}
}
