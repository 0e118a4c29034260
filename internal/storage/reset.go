package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// collectionResetter is the subset of a store needed to reset it
type collectionResetter interface {
	ListIDs(ctx context.Context) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
	SwitchCollection(ctx context.Context, name string) error
}

// FallbackCollectionName returns a unique name derived from base
func FallbackCollectionName(base string, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", base, now.Unix(), uuid.NewString()[:8])
}

// resetCollection enumerates and deletes every id. If enumeration or deletion
// fails, a fresh uniquely named collection is made active instead so a half
// cleared collection is never left in use.
func resetCollection(ctx context.Context, r collectionResetter, base string, now func() time.Time) (*ResetResult, error) {
	ids, err := r.ListIDs(ctx)
	if err == nil && len(ids) > 0 {
		var deleted int
		deleted, err = r.DeleteByIDs(ctx, ids)
		if err == nil {
			return &ResetResult{Deleted: deleted}, nil
		}
	}
	if err == nil {
		return &ResetResult{}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	name := FallbackCollectionName(base, now())
	if switchErr := r.SwitchCollection(ctx, name); switchErr != nil {
		return nil, fmt.Errorf("reset failed (%v) and fallback collection %s could not be created: %w", err, name, switchErr)
	}
	return &ResetResult{Collection: name, FellBack: true, Cause: err}, nil
}
