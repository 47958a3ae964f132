package timeline

import (
	"testing"
	"time"

	"github.com/nowlens/nowlens/internal/source"
)

func at(second int) time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC).Add(time.Duration(second) * time.Second)
}

func startedEvent(category source.Category, label string, start time.Time) Event {
	return Event{
		Category:   category,
		Label:      label,
		Start:      start,
		StartKnown: true,
	}
}

func TestAssembleOrdersChronologically(t *testing.T) {
	t.Parallel()

	events := []Event{
		startedEvent(source.CategoryTool, "third", at(10)),
		startedEvent(source.CategoryMessage, "first", at(0)),
		{Category: source.CategoryOther, Label: "no start"},
		startedEvent(source.CategoryLLM, "second", at(5)),
	}

	tl := Assemble(events)
	if len(tl.Events) != 4 {
		t.Fatalf("len(Events)=%d, want 4", len(tl.Events))
	}

	wantOrder := []string{"first", "second", "third", "no start"}
	for i, want := range wantOrder {
		if got := tl.Events[i].Label; got != want {
			t.Fatalf("Events[%d].Label=%q, want %q", i, got, want)
		}
	}

	for i := 1; i < len(tl.Events); i++ {
		prev, cur := tl.Events[i-1], tl.Events[i]
		if !cur.StartKnown {
			continue
		}
		if !prev.StartKnown {
			t.Fatalf("event with unknown start at %d sorted before known start at %d", i-1, i)
		}
		if cur.Start.Before(prev.Start) {
			t.Fatalf("Events[%d].Start=%v before Events[%d].Start=%v", i, cur.Start, i-1, prev.Start)
		}
	}
}

func TestAssembleBreaksTiesByCategoryPriority(t *testing.T) {
	t.Parallel()

	same := at(0)
	tl := Assemble([]Event{
		startedEvent(source.CategoryMessage, "message", same),
		startedEvent(source.CategoryOrchestration, "orchestration", same),
		startedEvent(source.CategoryLLM, "llm", same),
	})

	wantOrder := []string{"orchestration", "llm", "message"}
	for i, want := range wantOrder {
		if got := tl.Events[i].Label; got != want {
			t.Fatalf("Events[%d].Label=%q, want %q", i, got, want)
		}
	}
}

func TestAssembleCorrelatesReasoningTasksWithLLMLogs(t *testing.T) {
	t.Parallel()

	task := startedEvent(source.CategoryOrchestration, "Reasoning step", at(0))
	task.Reasoning = true
	task.SourceKind = "execution_task"

	near := startedEvent(source.CategoryLLM, "llm near", at(1))
	near.RecordID = "log-near"
	near.InputTokens = 900
	near.OutputTokens = 120
	near.TokensKnown = true

	far := startedEvent(source.CategoryLLM, "llm far", at(5))
	far.RecordID = "log-far"

	tl := Assemble([]Event{task, near, far})

	var gotTask, gotNear, gotFar Event
	for _, event := range tl.Events {
		switch event.Label {
		case "Reasoning step":
			gotTask = event
		case "llm near":
			gotNear = event
		case "llm far":
			gotFar = event
		}
	}

	if gotTask.CorrelatedWith != "log-near" {
		t.Fatalf("CorrelatedWith=%q, want %q", gotTask.CorrelatedWith, "log-near")
	}
	if !gotNear.Correlated {
		t.Fatal("nearest LLM log not marked correlated")
	}
	if gotFar.Correlated {
		t.Fatal("LLM log beyond the window marked correlated")
	}
	// Token usage moves onto the reasoning turn so growth tracking sees it.
	if !gotTask.TokensKnown || gotTask.InputTokens != 900 || gotTask.OutputTokens != 120 {
		t.Fatalf("task tokens=(%d,%d,%v), want (900,120,true)", gotTask.InputTokens, gotTask.OutputTokens, gotTask.TokensKnown)
	}
}

func TestAssembleCorrelationIsOneToOne(t *testing.T) {
	t.Parallel()

	taskA := startedEvent(source.CategoryOrchestration, "reasoning A", at(0))
	taskA.Reasoning = true
	taskB := startedEvent(source.CategoryOrchestration, "reasoning B", at(1))
	taskB.Reasoning = true

	log := startedEvent(source.CategoryLLM, "llm", at(0))
	log.RecordID = "log1"

	tl := Assemble([]Event{taskA, taskB, log})

	claims := 0
	for _, event := range tl.Events {
		if event.CorrelatedWith == "log1" {
			claims++
		}
	}
	if claims != 1 {
		t.Fatalf("log1 claimed by %d tasks, want exactly 1", claims)
	}
}

func TestAssembleDoesNotCorrelateNamedTasks(t *testing.T) {
	t.Parallel()

	task := startedEvent(source.CategoryOrchestration, "Create incident record", at(0))
	task.Reasoning = true

	log := startedEvent(source.CategoryLLM, "llm", at(0))
	log.RecordID = "log1"

	tl := Assemble([]Event{task, log})
	for _, event := range tl.Events {
		if event.CorrelatedWith != "" || event.Correlated {
			t.Fatalf("named task %q correlated, want standalone", event.Label)
		}
	}
}

func TestAssembleDerivesWaitDurations(t *testing.T) {
	t.Parallel()

	wait := startedEvent(source.CategoryMessage, "awaiting input", at(0))
	wait.Wait = true
	next := startedEvent(source.CategoryTool, "tool", at(4))

	trailing := startedEvent(source.CategoryMessage, "trailing wait", at(10))
	trailing.Wait = true

	tl := Assemble([]Event{wait, next, trailing})

	var gotWait, gotTrailing Event
	for _, event := range tl.Events {
		switch event.Label {
		case "awaiting input":
			gotWait = event
		case "trailing wait":
			gotTrailing = event
		}
	}

	if !gotWait.DurationKnown || !gotWait.WaitDerived || gotWait.DurationMS != 4000 {
		t.Fatalf("wait duration=(%d,known=%v,derived=%v), want (4000,true,true)",
			gotWait.DurationMS, gotWait.DurationKnown, gotWait.WaitDerived)
	}
	if gotTrailing.DurationKnown {
		t.Fatal("trailing wait has no successor; duration must stay unknown")
	}
}

func TestAssembleAssignsTurnIndices(t *testing.T) {
	t.Parallel()

	first := startedEvent(source.CategoryOrchestration, "turn one", at(0))
	first.Reasoning = true
	middle := startedEvent(source.CategoryTool, "tool", at(1))
	second := startedEvent(source.CategoryOrchestration, "turn two", at(2))
	second.Reasoning = true

	tl := Assemble([]Event{second, middle, first})

	wantTurns := map[string]int{"turn one": 1, "tool": 0, "turn two": 2}
	for _, event := range tl.Events {
		if want := wantTurns[event.Label]; event.Turn != want {
			t.Fatalf("Turn(%q)=%d, want %d", event.Label, event.Turn, want)
		}
	}
}

func TestTimelineSpan(t *testing.T) {
	t.Parallel()

	withDuration := startedEvent(source.CategoryLLM, "llm", at(2))
	withDuration.DurationMS = 5000
	withDuration.DurationKnown = true

	tl := Timeline{Events: []Event{
		startedEvent(source.CategoryMessage, "first", at(0)),
		withDuration,
	}}

	start, end, ok := tl.Span()
	if !ok {
		t.Fatal("Span() ok=false, want true")
	}
	if !start.Equal(at(0)) {
		t.Fatalf("start=%v, want %v", start, at(0))
	}
	if !end.Equal(at(7)) {
		t.Fatalf("end=%v, want %v", end, at(7))
	}

	empty := Timeline{Events: []Event{{Category: source.CategoryOther}}}
	if _, _, ok := empty.Span(); ok {
		t.Fatal("Span() ok=true for timeline with no known starts")
	}
}
