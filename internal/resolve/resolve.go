// Package resolve turns one ambiguous identifier into the canonical pair
// of linked identifiers the record sources key on.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nowlens/nowlens/internal/servicenow"
)

// ErrNotFound means the identifier matched neither an execution plan nor a
// conversation. It is terminal: the caller must not proceed with a
// partially resolved identifier because sources key on different halves.
var ErrNotFound = errors.New("resolve: no trace found for identifier")

// ErrInvalidIdentifier rejects empty or malformed input before any lookup.
var ErrInvalidIdentifier = errors.New("resolve: identifier is empty or malformed")

const maxIdentifierLen = 128

// TraceIdentifier is the canonical pair of linked run identifiers. At
// least one half is populated after a successful Resolve; when both are,
// they refer to the same logical run.
type TraceIdentifier struct {
	ConversationID  string
	ExecutionPlanID string
}

// Canonical returns the preferred storage/reporting key for the run.
func (t TraceIdentifier) Canonical() string {
	if t.ExecutionPlanID != "" {
		return t.ExecutionPlanID
	}
	return t.ConversationID
}

// Resolution carries the resolved identifier plus descriptive fields from
// the anchoring record.
type Resolution struct {
	Ident TraceIdentifier
	Label string
	State string
}

// Lister is the single read operation the resolver needs; implemented by
// *servicenow.Client and by test doubles.
type Lister interface {
	List(ctx context.Context, opts servicenow.ListOptions) ([]servicenow.Record, error)
}

type Resolver struct {
	client Lister
}

func NewResolver(client Lister) *Resolver {
	return &Resolver{client: client}
}

// Resolve tries, in order: the identifier as an execution plan sys_id
// (extracting its linked conversation), a reverse search for a plan
// referencing it as a conversation, and finally a bare conversation
// lookup. A failed resolution is ErrNotFound, never a half-filled
// identifier passed downstream.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Resolution, error) {
	id, err := NormalizeIdentifier(raw)
	if err != nil {
		return Resolution{}, err
	}

	plans, err := r.client.List(ctx, servicenow.ListOptions{
		Table:  "sn_aia_execution_plan",
		Query:  servicenow.NewQuery().Eq("sys_id", id).String(),
		Fields: []string{"sys_id", "conversation", "usecase", "state", "sys_created_on", "sys_updated_on"},
		Limit:  1,
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve: lookup execution plan: %w", err)
	}
	if len(plans) > 0 {
		plan := plans[0]
		return Resolution{
			Ident: TraceIdentifier{
				ExecutionPlanID: id,
				ConversationID:  plan.Value("conversation"),
			},
			Label: plan.Display("usecase"),
			State: plan.Display("state"),
		}, nil
	}

	plans, err = r.client.List(ctx, servicenow.ListOptions{
		Table:  "sn_aia_execution_plan",
		Query:  servicenow.NewQuery().Eq("conversation", id).OrderBy("sys_created_on").String(),
		Fields: []string{"sys_id", "conversation", "usecase", "state", "sys_created_on", "sys_updated_on"},
		Limit:  1,
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve: reverse-search execution plan: %w", err)
	}
	if len(plans) > 0 {
		plan := plans[0]
		return Resolution{
			Ident: TraceIdentifier{
				ExecutionPlanID: plan.SysID(),
				ConversationID:  id,
			},
			Label: plan.Display("usecase"),
			State: plan.Display("state"),
		}, nil
	}

	conversations, err := r.client.List(ctx, servicenow.ListOptions{
		Table:  "sys_cs_conversation",
		Query:  servicenow.NewQuery().Eq("sys_id", id).String(),
		Fields: []string{"sys_id", "state", "sys_created_on", "sys_updated_on"},
		Limit:  1,
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve: lookup conversation: %w", err)
	}
	if len(conversations) > 0 {
		return Resolution{
			Ident: TraceIdentifier{ConversationID: id},
			State: conversations[0].Display("state"),
		}, nil
	}

	return Resolution{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// FindReasoningTasks locates execution tasks discovered only indirectly:
// no foreign key exists, so they are matched by a fixed task description
// plus their sequence order within the plan's task list. All candidates
// are returned; disambiguation belongs to the caller, not a guess here.
func (r *Resolver) FindReasoningTasks(ctx context.Context, ident TraceIdentifier, description string, order int) ([]servicenow.Record, error) {
	if ident.ExecutionPlanID == "" {
		return nil, fmt.Errorf("%w: task search requires an execution plan id", ErrInvalidIdentifier)
	}
	query := servicenow.NewQuery().
		Eq("execution_plan", ident.ExecutionPlanID).
		Like("short_description", strings.TrimSpace(description))
	if order > 0 {
		query.Eq("order", strconv.Itoa(order))
	}
	query.OrderBy("sys_created_on")

	records, err := r.client.List(ctx, servicenow.ListOptions{
		Table:  "sn_aia_execution_task",
		Query:  query.String(),
		Fields: []string{"sys_id", "agent", "state", "short_description", "order", "sys_created_on", "sys_updated_on"},
		Limit:  servicenow.MaxRecordsPerQuery,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve: search reasoning tasks: %w", err)
	}
	return records, nil
}

// NormalizeIdentifier trims and validates a caller-supplied identifier.
// sys_ids are 32 hex characters, but related identifiers share the same
// safe charset, so only the charset and length are enforced here.
func NormalizeIdentifier(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" || len(value) > maxIdentifierLen {
		return "", ErrInvalidIdentifier
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
		}
	}
	return value, nil
}
