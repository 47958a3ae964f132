// Package fetch reads raw records for a trace from each registered source,
// either live from the instance or from a snapshot store.
package fetch

import (
	"context"
	"fmt"

	"github.com/nowlens/nowlens/internal/resolve"
	"github.com/nowlens/nowlens/internal/servicenow"
	"github.com/nowlens/nowlens/internal/snapshot"
	"github.com/nowlens/nowlens/internal/source"
)

// Fetcher reads every record from one source for one resolved trace.
type Fetcher interface {
	Fetch(ctx context.Context, spec source.Spec, ident resolve.TraceIdentifier) ([]servicenow.Record, error)
}

// Applicable reports whether the resolved identifier carries the half the
// source's linking query keys on. Skipped sources are reported, not
// errored: a conversation-only trace legitimately has no plan-keyed rows.
func Applicable(spec source.Spec, ident resolve.TraceIdentifier) bool {
	switch spec.Link {
	case source.LinkConversation:
		return ident.ConversationID != ""
	case source.LinkExecutionPlan:
		return ident.ExecutionPlanID != ""
	case source.LinkEither:
		return ident.ConversationID != "" || ident.ExecutionPlanID != ""
	default:
		return false
	}
}

// InstanceFetcher reads sources live over the Table API.
type InstanceFetcher struct {
	client *servicenow.Client
}

func NewInstanceFetcher(client *servicenow.Client) *InstanceFetcher {
	return &InstanceFetcher{client: client}
}

func (f *InstanceFetcher) Fetch(ctx context.Context, spec source.Spec, ident resolve.TraceIdentifier) ([]servicenow.Record, error) {
	if !Applicable(spec, ident) {
		return nil, nil
	}

	query := servicenow.NewQuery()
	switch spec.Link {
	case source.LinkConversation:
		query.Eq(spec.LinkField, ident.ConversationID)
	case source.LinkExecutionPlan:
		query.Eq(spec.LinkField, ident.ExecutionPlanID)
	case source.LinkEither:
		// The execution plan table is matched directly by sys_id or
		// through its conversation reference, whichever half resolved.
		switch {
		case ident.ExecutionPlanID != "" && ident.ConversationID != "":
			query.Eq("sys_id", ident.ExecutionPlanID).OrEq(spec.LinkField, ident.ConversationID)
		case ident.ExecutionPlanID != "":
			query.Eq("sys_id", ident.ExecutionPlanID)
		default:
			query.Eq(spec.LinkField, ident.ConversationID)
		}
	}
	query.OrderBy("sys_created_on")

	records, err := f.client.List(ctx, servicenow.ListOptions{
		Table:  spec.Table,
		Query:  query.String(),
		Fields: spec.Fields,
		Limit:  servicenow.MaxRecordsPerQuery,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", spec.Kind, err)
	}
	return records, nil
}

// SnapshotFetcher reads sources from previously captured snapshots. The
// trace key is derived from the identifier so one fetcher serves a whole
// batch of traces.
type SnapshotFetcher struct {
	store snapshot.Store
}

func NewSnapshotFetcher(store snapshot.Store) *SnapshotFetcher {
	return &SnapshotFetcher{store: store}
}

func (f *SnapshotFetcher) Fetch(ctx context.Context, spec source.Spec, ident resolve.TraceIdentifier) ([]servicenow.Record, error) {
	if !Applicable(spec, ident) {
		return nil, nil
	}
	records, err := f.store.ReadRecords(ctx, ident.Canonical(), spec.Kind)
	if err != nil {
		return nil, fmt.Errorf("fetch %s from snapshot: %w", spec.Kind, err)
	}
	return records, nil
}
