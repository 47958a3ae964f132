// Package timeline normalizes heterogeneous source records into events and
// assembles them into one chronological sequence per trace.
package timeline

import (
	"time"

	"github.com/nowlens/nowlens/internal/servicenow"
	"github.com/nowlens/nowlens/internal/source"
)

// Event is one normalized unit of work within a trace.
type Event struct {
	Category   source.Category
	Label      string
	SourceKind string
	RecordID   string

	Start      time.Time
	StartKnown bool
	End        time.Time
	EndKnown   bool

	// DurationMS is always >= 0. DurationKnown=false means the source
	// carried no usable duration; the zero is a placeholder, not a
	// measurement, and reporting must keep the two apart.
	DurationMS    int64
	DurationKnown bool

	Status string
	Error  string

	InputTokens  int64
	OutputTokens int64
	TokensKnown  bool

	// Turn is the 1-based index among reasoning events in timeline order;
	// zero for everything else.
	Turn      int
	Reasoning bool

	// Wait marks events representing waiting for external input. When
	// WaitDerived is set the duration was synthesized from the gap to the
	// next chronological event rather than read from the record.
	Wait        bool
	WaitDerived bool

	// CorrelatedWith holds the record id of the LLM log matched to this
	// orchestration task, when cross-source correlation found one.
	CorrelatedWith string
	// Correlated marks an LLM event claimed by an orchestration task.
	Correlated bool

	Raw servicenow.Record
}

// HasError reports whether the event carries an error.
func (e Event) HasError() bool {
	return e.Error != ""
}

// EffectiveEnd returns the best end bound for gap computation: the known
// end, otherwise the start plus any known duration, otherwise the start.
func (e Event) EffectiveEnd() time.Time {
	if e.EndKnown {
		return e.End
	}
	if e.DurationKnown && e.StartKnown {
		return e.Start.Add(time.Duration(e.DurationMS) * time.Millisecond)
	}
	return e.Start
}

// Timeline is the chronologically ordered event sequence for one trace.
type Timeline struct {
	Events []Event
}

// Span returns the wall-clock bounds: first known start and last effective
// end. ok is false when no event has a known start.
func (t Timeline) Span() (start, end time.Time, ok bool) {
	for _, event := range t.Events {
		if !event.StartKnown {
			continue
		}
		if !ok || event.Start.Before(start) {
			start = event.Start
			ok = true
		}
		if candidate := event.EffectiveEnd(); candidate.After(end) {
			end = candidate
		}
	}
	return start, end, ok
}
