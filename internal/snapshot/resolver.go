package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/nowlens/nowlens/internal/resolve"
)

// Resolver resolves identifiers against captured traces instead of a live
// instance. It satisfies the same resolution contract: a miss is terminal,
// never a half-filled identifier.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) Resolve(ctx context.Context, raw string) (resolve.Resolution, error) {
	id, err := resolve.NormalizeIdentifier(raw)
	if err != nil {
		return resolve.Resolution{}, err
	}

	info, err := r.store.FindTrace(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return resolve.Resolution{}, fmt.Errorf("%w: %s (not captured)", resolve.ErrNotFound, id)
		}
		return resolve.Resolution{}, fmt.Errorf("snapshot: resolve %s: %w", id, err)
	}

	return resolve.Resolution{
		Ident: resolve.TraceIdentifier{
			ConversationID:  info.ConversationID,
			ExecutionPlanID: info.ExecutionPlanID,
		},
		Label: info.Label,
		State: info.State,
	}, nil
}
