package memory

import (
	"context"
	"time"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

// EntityStore is the engine's view of the external entity/relation store.
// The engine only issues writes through workflow actions and reads
// history for suggestion mining; everything else the store does is out
// of scope here.
type EntityStore interface {
	SaveEntity(ctx context.Context, e *schema.Entity) error
	GetEntity(ctx context.Context, id string) (*schema.Entity, error)
	// UpdateEntity applies a partial update. Keys matching top-level
	// fields (name, content, type) update those fields; everything else
	// merges into metadata.
	UpdateEntity(ctx context.Context, id string, updates map[string]any) (*schema.Entity, error)
	SaveRelation(ctx context.Context, r *schema.Relation) error
	// ListRecentEntities returns entities created at or after since,
	// newest first, capped at limit.
	ListRecentEntities(ctx context.Context, since time.Time, limit int) ([]*schema.Entity, error)
}

// ChangeListener receives post-write change notifications from the store.
// The dispatcher satisfies this; the store's write path must never wait
// on workflow completion, so implementations return immediately.
type ChangeListener interface {
	Dispatch(event schema.ChangeEvent)
}
