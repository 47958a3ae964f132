package timeline

import (
	"sort"
	"strings"
	"time"

	"github.com/nowlens/nowlens/internal/source"
)

// CorrelationWindow is the maximum start-time distance between an
// orchestration task and the LLM log entry describing the same operation.
// The two tables are written independently, so their timestamps drift by
// up to a couple of seconds.
const CorrelationWindow = 2 * time.Second

// reasoningStepLabel is the fixed task description the platform writes for
// generic reasoning steps.
const reasoningStepLabel = "reasoning"

// Assemble merges normalized events into one chronological timeline:
// ascending by start time, ties broken by category priority then original
// order. It then correlates orchestration tasks with LLM logs, derives
// wait durations for message events, and assigns reasoning turn indices.
func Assemble(events []Event) Timeline {
	merged := make([]Event, len(events))
	copy(merged, events)

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		// Events with no usable start sort last; they still contribute to
		// category totals but cannot anchor gaps or correlation.
		if a.StartKnown != b.StartKnown {
			return a.StartKnown
		}
		if a.StartKnown && !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.Category.Priority() < b.Category.Priority()
	})

	correlate(merged)
	deriveWaitDurations(merged)
	assignTurns(merged)

	return Timeline{Events: merged}
}

// correlate matches each orchestration reasoning task to at most one LLM
// log entry whose start falls within CorrelationWindow, nearest first.
// Matching is one-to-one: a claimed log entry leaves the candidate pool.
// Unmatched events on either side stand alone.
func correlate(events []Event) {
	type candidate struct {
		index   int
		claimed bool
	}
	pool := make([]*candidate, 0)
	for i := range events {
		if events[i].Category == source.CategoryLLM && events[i].StartKnown {
			pool = append(pool, &candidate{index: i})
		}
	}
	if len(pool) == 0 {
		return
	}

	for i := range events {
		task := &events[i]
		if !isReasoningTask(*task) || !task.StartKnown {
			continue
		}

		var best *candidate
		var bestDistance time.Duration
		for _, entry := range pool {
			if entry.claimed {
				continue
			}
			distance := absDuration(events[entry.index].Start.Sub(task.Start))
			if distance > CorrelationWindow {
				continue
			}
			if best == nil || distance < bestDistance {
				best = entry
				bestDistance = distance
			}
		}
		if best == nil {
			continue
		}

		best.claimed = true
		log := &events[best.index]
		log.Correlated = true
		task.CorrelatedWith = log.RecordID
		if log.TokensKnown {
			task.InputTokens = log.InputTokens
			task.OutputTokens = log.OutputTokens
			task.TokensKnown = true
		}
	}
}

// deriveWaitDurations replaces the (usually missing) duration of
// waiting-for-input events with the gap to the next chronologically known
// event. The trailing wait of a timeline has no successor and stays
// unknown.
func deriveWaitDurations(events []Event) {
	for i := range events {
		event := &events[i]
		if !event.Wait || !event.StartKnown {
			continue
		}
		for j := i + 1; j < len(events); j++ {
			if !events[j].StartKnown {
				break
			}
			gap := events[j].Start.Sub(event.Start)
			if gap < 0 {
				gap = 0
			}
			event.DurationMS = gap.Milliseconds()
			event.DurationKnown = true
			event.WaitDerived = true
			break
		}
	}
}

func assignTurns(events []Event) {
	turn := 0
	for i := range events {
		if events[i].Reasoning {
			turn++
			events[i].Turn = turn
		}
	}
}

func isReasoningTask(event Event) bool {
	if event.Category != source.CategoryOrchestration || !event.Reasoning {
		return false
	}
	// Only the generic reasoning-step task is double-logged by the LLM
	// log table; named tasks are not.
	return strings.Contains(strings.ToLower(event.Label), reasoningStepLabel)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
