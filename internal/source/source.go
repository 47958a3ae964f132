// Package source defines the fixed registry of instance tables that
// contribute records to a trace, and how each table's rows map onto
// normalized events.
package source

// Category classifies normalized events. The set is fixed; every source
// maps to exactly one category.
type Category string

const (
	CategoryLLM           Category = "LLM"
	CategoryTool          Category = "Tool"
	CategoryOrchestration Category = "Orchestration"
	CategoryMessage       Category = "Message"
	CategoryAccess        Category = "Access"
	CategoryOther         Category = "Other"
)

// Priority orders categories for timestamp tie-breaking. Orchestration
// records anchor the timeline, so they sort ahead of the records they
// correlate with.
func (c Category) Priority() int {
	switch c {
	case CategoryOrchestration:
		return 0
	case CategoryLLM:
		return 1
	case CategoryTool:
		return 2
	case CategoryMessage:
		return 3
	case CategoryAccess:
		return 4
	default:
		return 5
	}
}

// LinkKey selects which half of a resolved trace identifier a source's
// linking query keys on.
type LinkKey string

const (
	// LinkConversation filters on the conversation sys_id.
	LinkConversation LinkKey = "conversation"
	// LinkExecutionPlan filters on the execution plan sys_id.
	LinkExecutionPlan LinkKey = "execution_plan"
	// LinkEither matches the plan sys_id directly or its conversation
	// reference (the execution plan table itself).
	LinkEither LinkKey = "either"
)

// ErrorRule selects how a source encodes failures.
type ErrorRule string

const (
	// ErrorRuleFlagAndMessage reads an explicit error flag plus a message
	// or code column.
	ErrorRuleFlagAndMessage ErrorRule = "flag_and_message"
	// ErrorRuleMessagePresence treats a non-empty message column alone as
	// a failure.
	ErrorRuleMessagePresence ErrorRule = "message_presence"
	// ErrorRuleNone means the source never reports errors.
	ErrorRuleNone ErrorRule = "none"
)

// Spec describes one table that contributes records to a trace analysis.
type Spec struct {
	// Kind is the stable source identifier used in reports and snapshots.
	Kind string
	// Name is the human-readable source name.
	Name string
	// Table is the instance table backing the source.
	Table string
	// Link selects the identifier field the linking query filters on.
	Link LinkKey
	// LinkField is the column holding the linking identifier.
	LinkField string
	// Fields restricts the columns fetched.
	Fields []string
	// Category classifies every event from this source.
	Category Category
	// StartField and EndField bound the event in time. EndField may be
	// empty for point-in-time sources.
	StartField string
	EndField   string
	// DurationField, when set, holds an explicit duration in milliseconds
	// (possibly a thousands-separated string) that wins over EndField
	// subtraction.
	DurationField string
	// LabelField names the event; LabelPrefix is prepended to its display
	// value. When LabelField is empty the source name is the label.
	LabelField  string
	LabelPrefix string
	// StatusField holds the record state, when present.
	StatusField string
	// Errors selects the error-detection convention. ErrorFlagField and
	// ErrorMessageFields configure it.
	Errors             ErrorRule
	ErrorFlagField     string
	ErrorMessageFields []string
	// TokenFields name input/output token columns for sources that carry
	// model usage.
	InputTokenField  string
	OutputTokenField string
	// Reasoning marks sources whose events form the repeating reasoning
	// loop: they receive turn indices and token-growth tracking.
	Reasoning bool
	// Wait marks sources whose events represent waiting for external
	// input; their duration is derived from the gap to the next event.
	Wait bool
}

// Sources returns the full registry in fetch order. The order is part of
// the contract: normalized events keep it as the final tie-breaker.
func Sources() []Spec {
	return []Spec{
		{
			Kind:       "generative_ai_log",
			Name:       "Generative AI Logs",
			Table:      "sys_generative_ai_log",
			Link:       LinkConversation,
			LinkField:  "conversation",
			Fields:     []string{"sys_id", "definition", "started_at", "completed_at", "time_taken", "error", "error_code", "input_tokens", "output_tokens", "sys_created_on"},
			Category:   CategoryLLM,
			StartField: "started_at",
			EndField:   "completed_at",
			// time_taken arrives as a display string with thousands
			// separators on most instances.
			DurationField:      "time_taken",
			LabelField:         "definition",
			Errors:             ErrorRuleFlagAndMessage,
			ErrorFlagField:     "error",
			ErrorMessageFields: []string{"error_code", "error"},
			InputTokenField:    "input_tokens",
			OutputTokenField:   "output_tokens",
		},
		{
			Kind:        "conversation_task",
			Name:        "Conversation Tasks",
			Table:       "sys_cs_conversation_task",
			Link:        LinkConversation,
			LinkField:   "conversation",
			Fields:      []string{"sys_id", "state", "status", "conversation_type", "reason_phrase", "sys_created_on", "sys_updated_on"},
			Category:    CategoryMessage,
			StartField:  "sys_created_on",
			EndField:    "sys_updated_on",
			StatusField: "status",
			Errors:      ErrorRuleNone,
			Wait:        true,
		},
		{
			Kind:       "conversation_message",
			Name:       "Messages",
			Table:      "sys_cs_message",
			Link:       LinkConversation,
			LinkField:  "conversation",
			Fields:     []string{"sys_id", "role", "content", "sys_created_on"},
			Category:   CategoryMessage,
			StartField: "sys_created_on",
			LabelField: "role",
			Errors:     ErrorRuleNone,
		},
		{
			Kind:       "aia_step_log",
			Name:       "AIA Step Logs",
			Table:      "sys_cs_aia_step_log",
			Link:       LinkConversation,
			LinkField:  "conversation",
			Fields:     []string{"sys_id", "step_type", "step_description", "sys_created_on", "sys_updated_on"},
			Category:   CategoryOrchestration,
			StartField: "sys_created_on",
			EndField:   "sys_updated_on",
			LabelField: "step_description",
			Errors:     ErrorRuleNone,
		},
		{
			Kind:               "execution_plan",
			Name:               "Execution Plans",
			Table:              "sn_aia_execution_plan",
			Link:               LinkEither,
			LinkField:          "conversation",
			Fields:             []string{"sys_id", "usecase", "agent", "state", "objective", "error_message", "conversation", "sys_created_on", "sys_updated_on"},
			Category:           CategoryOrchestration,
			StartField:         "sys_created_on",
			EndField:           "sys_updated_on",
			LabelField:         "usecase",
			StatusField:        "state",
			Errors:             ErrorRuleMessagePresence,
			ErrorMessageFields: []string{"error_message"},
		},
		{
			Kind:               "execution_task",
			Name:               "Execution Tasks",
			Table:              "sn_aia_execution_task",
			Link:               LinkExecutionPlan,
			LinkField:          "execution_plan",
			Fields:             []string{"sys_id", "agent", "state", "short_description", "order", "error_message", "sys_created_on", "sys_updated_on"},
			Category:           CategoryOrchestration,
			StartField:         "sys_created_on",
			EndField:           "sys_updated_on",
			LabelField:         "short_description",
			StatusField:        "state",
			Errors:             ErrorRuleMessagePresence,
			ErrorMessageFields: []string{"error_message"},
			Reasoning:          true,
		},
		{
			Kind:               "tool_execution",
			Name:               "Tool Executions",
			Table:              "sn_aia_tools_execution",
			Link:               LinkExecutionPlan,
			LinkField:          "execution_plan",
			Fields:             []string{"sys_id", "tool", "agent", "state", "error_message", "sys_created_on", "sys_updated_on"},
			Category:           CategoryTool,
			StartField:         "sys_created_on",
			EndField:           "sys_updated_on",
			LabelField:         "tool",
			LabelPrefix:        "Tool: ",
			StatusField:        "state",
			Errors:             ErrorRuleMessagePresence,
			ErrorMessageFields: []string{"error_message"},
		},
		{
			Kind:       "aia_message",
			Name:       "AIA Messages",
			Table:      "sn_aia_message",
			Link:       LinkExecutionPlan,
			LinkField:  "execution_plan",
			Fields:     []string{"sys_id", "role", "content", "sys_created_on"},
			Category:   CategoryMessage,
			StartField: "sys_created_on",
			LabelField: "role",
			Errors:     ErrorRuleNone,
		},
		{
			Kind:       "skill_discovery",
			Name:       "Skill Discovery",
			Table:      "sys_cs_skill_discovery_tracking",
			Link:       LinkConversation,
			LinkField:  "conversation",
			Fields:     []string{"sys_id", "state", "available_skill_ids", "sys_created_on", "sys_updated_on"},
			Category:   CategoryAccess,
			StartField: "sys_created_on",
			EndField:   "sys_updated_on",
			Errors:     ErrorRuleNone,
		},
		{
			Kind:        "fdih_invocation",
			Name:        "FDIH Invocations",
			Table:       "sys_cs_fdih_invocation",
			Link:        LinkConversation,
			LinkField:   "calling_cs_conversation_task.conversation.sys_id",
			Fields:      []string{"sys_id", "name", "type", "response_state", "execution_mode", "sys_created_on", "sys_updated_on"},
			Category:    CategoryTool,
			StartField:  "sys_created_on",
			EndField:    "sys_updated_on",
			LabelField:  "name",
			LabelPrefix: "FDIH: ",
			StatusField: "response_state",
			Errors:      ErrorRuleNone,
		},
		{
			Kind:       "assist_search",
			Name:       "Now Assist Search",
			Table:      "sys_cs_now_assist_search",
			Link:       LinkConversation,
			LinkField:  "conversation",
			Fields:     []string{"sys_id", "query", "result_count", "sys_created_on", "sys_updated_on"},
			Category:   CategoryAccess,
			StartField: "sys_created_on",
			EndField:   "sys_updated_on",
			LabelField: "query",
			Errors:     ErrorRuleNone,
		},
		{
			Kind:        "api_invocation",
			Name:        "API Invocations",
			Table:       "one_api_service_plan_invocation",
			Link:        LinkConversation,
			LinkField:   "app_document",
			Fields:      []string{"sys_id", "service_name", "capability_id", "status", "sys_created_on", "sys_updated_on"},
			Category:    CategoryTool,
			StartField:  "sys_created_on",
			EndField:    "sys_updated_on",
			LabelField:  "service_name",
			LabelPrefix: "API: ",
			StatusField: "status",
			Errors:      ErrorRuleNone,
		},
	}
}

// ByKind returns the source with the given kind, or false.
func ByKind(kind string) (Spec, bool) {
	for _, spec := range Sources() {
		if spec.Kind == kind {
			return spec, true
		}
	}
	return Spec{}, false
}
