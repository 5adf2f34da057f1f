package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

// InMemoryStore is an embedded EntityStore used when no external store
// is wired, and by tests. It emits change notifications synchronously
// on every write, mirroring the external store's callback contract.
type InMemoryStore struct {
	mu        sync.RWMutex
	entities  map[string]*schema.Entity
	relations map[string]*schema.Relation
	listener  ChangeListener
	now       func() time.Time
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entities:  make(map[string]*schema.Entity),
		relations: make(map[string]*schema.Relation),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetListener attaches the change listener notified after each write.
func (s *InMemoryStore) SetListener(l ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// SetClock overrides the time source, for tests.
func (s *InMemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *InMemoryStore) SaveEntity(_ context.Context, e *schema.Entity) error {
	if e == nil {
		return schema.NewError(schema.ErrCodeValidation, "entity is nil")
	}
	s.mu.Lock()
	now := s.now()
	created := false
	if e.ID == "" {
		e.ID = uuid.New().String()
		created = true
	} else if _, exists := s.entities[e.ID]; !exists {
		created = true
	}
	if created {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	cp := cloneEntity(e)
	s.entities[e.ID] = cp
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		evType := schema.EventEntityUpdated
		if created {
			evType = schema.EventEntityCreated
		}
		listener.Dispatch(schema.ChangeEvent{
			ID:         uuid.New().String(),
			Type:       evType,
			Entities:   []schema.Entity{*cloneEntity(cp)},
			OccurredAt: now,
		})
	}
	return nil
}

func (s *InMemoryStore) GetEntity(_ context.Context, id string) (*schema.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "entity %q not found", id)
	}
	return cloneEntity(e), nil
}

func (s *InMemoryStore) UpdateEntity(ctx context.Context, id string, updates map[string]any) (*schema.Entity, error) {
	s.mu.Lock()
	e, ok := s.entities[id]
	if !ok {
		s.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "entity %q not found", id)
	}
	for k, v := range updates {
		switch k {
		case "name":
			if sv, ok := v.(string); ok {
				e.Name = sv
			}
		case "content":
			if sv, ok := v.(string); ok {
				e.Content = sv
			}
		case "type":
			if sv, ok := v.(string); ok {
				e.Type = sv
			}
		default:
			if e.Metadata == nil {
				e.Metadata = make(map[string]any)
			}
			e.Metadata[k] = v
		}
	}
	now := s.now()
	e.UpdatedAt = now
	cp := cloneEntity(e)
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener.Dispatch(schema.ChangeEvent{
			ID:         uuid.New().String(),
			Type:       schema.EventEntityUpdated,
			Entities:   []schema.Entity{*cloneEntity(cp)},
			OccurredAt: now,
		})
	}
	return cp, nil
}

func (s *InMemoryStore) SaveRelation(_ context.Context, r *schema.Relation) error {
	if r == nil {
		return schema.NewError(schema.ErrCodeValidation, "relation is nil")
	}
	s.mu.Lock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	cp := *r
	s.relations[r.ID] = &cp
	listener := s.listener
	now := s.now()

	// Snapshot both endpoints so relation triggers can match on them.
	var ends []schema.Entity
	if src, ok := s.entities[r.SourceID]; ok {
		ends = append(ends, *cloneEntity(src))
	}
	if tgt, ok := s.entities[r.TargetID]; ok {
		ends = append(ends, *cloneEntity(tgt))
	}
	s.mu.Unlock()

	if listener != nil {
		rel := cp
		listener.Dispatch(schema.ChangeEvent{
			ID:         uuid.New().String(),
			Type:       schema.EventRelationCreated,
			Entities:   ends,
			Relation:   &rel,
			OccurredAt: now,
		})
	}
	return nil
}

func (s *InMemoryStore) ListRecentEntities(_ context.Context, since time.Time, limit int) ([]*schema.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*schema.Entity
	for _, e := range s.entities {
		if e.CreatedAt.Before(since) {
			continue
		}
		result = append(result, cloneEntity(e))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cloneEntity(e *schema.Entity) *schema.Entity {
	cp := *e
	if e.Tags != nil {
		cp.Tags = append([]string(nil), e.Tags...)
	}
	if e.Metadata != nil {
		cp.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

var _ EntityStore = (*InMemoryStore)(nil)
