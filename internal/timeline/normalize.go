package timeline

import (
	"strings"

	"github.com/nowlens/nowlens/internal/servicenow"
	"github.com/nowlens/nowlens/internal/source"
)

// Normalize converts raw records from one source into events. It never
// fails: malformed timestamps, durations, and counters degrade to unknown
// fields so one bad row cannot sink an analysis.
func Normalize(spec source.Spec, records []servicenow.Record) []Event {
	events := make([]Event, 0, len(records))
	for _, record := range records {
		events = append(events, normalizeRecord(spec, record))
	}
	return events
}

func normalizeRecord(spec source.Spec, record servicenow.Record) Event {
	event := Event{
		Category:   spec.Category,
		SourceKind: spec.Kind,
		RecordID:   record.SysID(),
		Label:      eventLabel(spec, record),
		Reasoning:  spec.Reasoning,
		Wait:       spec.Wait,
		Raw:        record,
	}

	if spec.StartField != "" {
		event.Start, event.StartKnown = record.Time(spec.StartField)
	}
	if spec.EndField != "" {
		event.End, event.EndKnown = record.Time(spec.EndField)
	}
	if spec.StatusField != "" {
		event.Status = record.Display(spec.StatusField)
	}

	normalizeDuration(spec, record, &event)
	normalizeError(spec, record, &event)
	normalizeTokens(spec, record, &event)

	return event
}

func normalizeDuration(spec source.Spec, record servicenow.Record, event *Event) {
	// An explicit duration column wins over start/end subtraction; some
	// instances update the end column on unrelated writes.
	if spec.DurationField != "" {
		if ms, ok := record.Int64(spec.DurationField); ok && ms >= 0 {
			event.DurationMS = ms
			event.DurationKnown = true
			return
		}
	}
	if event.StartKnown && event.EndKnown {
		ms := event.End.Sub(event.Start).Milliseconds()
		if ms >= 0 {
			event.DurationMS = ms
			event.DurationKnown = true
		}
	}
}

func normalizeError(spec source.Spec, record servicenow.Record, event *Event) {
	switch spec.Errors {
	case source.ErrorRuleFlagAndMessage:
		flagged := false
		if spec.ErrorFlagField != "" {
			flagged = isTruthy(record.Value(spec.ErrorFlagField)) || isTruthy(record.Display(spec.ErrorFlagField))
		}
		message := firstNonEmptyField(record, spec.ErrorMessageFields)
		if flagged && message == "" {
			message = "error flagged without message"
		}
		// Either convention alone marks the event failed; instances differ
		// in which half they populate.
		if flagged || message != "" {
			event.Error = message
		}
	case source.ErrorRuleMessagePresence:
		event.Error = firstNonEmptyField(record, spec.ErrorMessageFields)
	}
}

func normalizeTokens(spec source.Spec, record servicenow.Record, event *Event) {
	if spec.InputTokenField == "" && spec.OutputTokenField == "" {
		return
	}
	known := false
	if spec.InputTokenField != "" {
		if value, ok := record.Int64(spec.InputTokenField); ok {
			event.InputTokens = value
			known = true
		}
	}
	if spec.OutputTokenField != "" {
		if value, ok := record.Int64(spec.OutputTokenField); ok {
			event.OutputTokens = value
			known = true
		}
	}
	event.TokensKnown = known
}

func eventLabel(spec source.Spec, record servicenow.Record) string {
	if spec.LabelField != "" {
		if value := strings.TrimSpace(record.Display(spec.LabelField)); value != "" {
			return spec.LabelPrefix + value
		}
	}
	return spec.Name
}

func firstNonEmptyField(record servicenow.Record, fields []string) string {
	for _, field := range fields {
		if value := strings.TrimSpace(record.Display(field)); value != "" && !isFalsy(value) {
			return value
		}
	}
	return ""
}

func isTruthy(raw string) bool {
	value := strings.ToLower(strings.TrimSpace(raw))
	return value == "true" || value == "1"
}

func isFalsy(raw string) bool {
	value := strings.ToLower(strings.TrimSpace(raw))
	return value == "false" || value == "0"
}
