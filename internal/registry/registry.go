// Package registry owns the set of live workflow definitions. Every
// definition is validated and its trigger compiled before it becomes
// visible to the dispatcher; readers get immutable snapshots so
// matching never takes the registry lock per event.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/emilylaguna/memoryd/internal/store"
	"github.com/emilylaguna/memoryd/internal/trigger"
	"github.com/emilylaguna/memoryd/internal/validation"
	"github.com/emilylaguna/memoryd/pkg/schema"
)

// Entry pairs a definition with its compiled trigger.
type Entry struct {
	Definition *schema.WorkflowDefinition
	Trigger    *trigger.Compiled
}

// Registry is the validated, store-backed workflow set.
type Registry struct {
	validator *validation.WorkflowValidator
	store     store.Store
	logger    *slog.Logger

	mu       sync.RWMutex
	entries  map[string]*Entry
	snapshot []*Entry
}

// New creates an empty Registry.
func New(validator *validation.WorkflowValidator, st store.Store, logger *slog.Logger) *Registry {
	return &Registry{
		validator: validator,
		store:     st,
		logger:    logger,
		entries:   make(map[string]*Entry),
	}
}

// Load restores persisted workflows at startup. A definition that no
// longer compiles is skipped with a warning rather than blocking boot.
func (r *Registry) Load(ctx context.Context) error {
	defs, err := r.store.ListWorkflows(ctx)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "load workflows: %s", err.Error()).WithCause(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range defs {
		compiled, err := trigger.Compile(def.Trigger)
		if err != nil {
			r.logger.Warn("skipping workflow with invalid trigger",
				slog.String("workflow_id", def.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.entries[def.ID] = &Entry{Definition: def, Trigger: compiled}
	}
	r.rebuildSnapshot()

	r.logger.InfoContext(ctx, "registry loaded", slog.Int("workflows", len(r.entries)))
	return nil
}

// Register validates, persists, and installs a workflow. On any
// validation failure the registry is left unchanged. An empty ID gets
// a generated one; re-registering an existing ID replaces it.
func (r *Registry) Register(ctx context.Context, def *schema.WorkflowDefinition) (*schema.WorkflowDefinition, error) {
	if err := r.validator.ValidateDefinition(def); err != nil {
		return nil, err
	}
	compiled, err := trigger.Compile(def.Trigger)
	if err != nil {
		return nil, err
	}

	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	if err := r.store.PutWorkflow(ctx, def); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "persist workflow: %s", err.Error()).
			WithWorkflow(def.ID).WithCause(err)
	}

	r.mu.Lock()
	r.entries[def.ID] = &Entry{Definition: def, Trigger: compiled}
	r.rebuildSnapshot()
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "workflow registered",
		slog.String("workflow_id", def.ID),
		slog.String("name", def.Name),
		slog.Bool("enabled", def.Enabled),
	)
	return def, nil
}

// Get returns one workflow by ID.
func (r *Registry) Get(id string) (*schema.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
	}
	return entry.Definition, nil
}

// List returns all workflows, optionally only enabled ones.
func (r *Registry) List(enabledOnly bool) []*schema.WorkflowDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*schema.WorkflowDefinition, 0, len(r.snapshot))
	for _, entry := range r.snapshot {
		if enabledOnly && !entry.Definition.Enabled {
			continue
		}
		out = append(out, entry.Definition)
	}
	return out
}

// Snapshot returns the current immutable entry slice. Callers must not
// mutate it.
func (r *Registry) Snapshot() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Enabled reports whether a workflow exists and is enabled, for the
// dequeue-time re-check in the dispatcher.
func (r *Registry) Enabled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	return ok && entry.Definition.Enabled
}

// Delete removes a workflow. Deleting an unknown ID is a no-op.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.DeleteWorkflow(ctx, id); err != nil && schema.CodeOf(err) != schema.ErrCodeNotFound {
		return err
	}

	r.mu.Lock()
	_, existed := r.entries[id]
	delete(r.entries, id)
	r.rebuildSnapshot()
	r.mu.Unlock()

	if existed {
		r.logger.InfoContext(ctx, "workflow deleted", slog.String("workflow_id", id))
	}
	return nil
}

// Pause disables a workflow. Pausing an already-paused workflow is a
// no-op; pausing an unknown ID is an error.
func (r *Registry) Pause(ctx context.Context, id string) error {
	return r.setEnabled(ctx, id, false)
}

// Resume re-enables a workflow. Idempotent on already-enabled ones.
func (r *Registry) Resume(ctx context.Context, id string) error {
	return r.setEnabled(ctx, id, true)
}

func (r *Registry) setEnabled(ctx context.Context, id string, enabled bool) error {
	r.mu.Lock()
	entry, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
	}
	if entry.Definition.Enabled == enabled {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	// Persist first: a store failure must leave dispatch behavior
	// matching the stored state.
	if err := r.store.SetWorkflowEnabled(ctx, id, enabled); err != nil && schema.CodeOf(err) != schema.ErrCodeNotFound {
		return err
	}

	r.mu.Lock()
	entry, ok = r.entries[id]
	if !ok {
		// Deleted while persisting.
		r.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
	}
	// Replace the definition rather than mutating the shared snapshot.
	def := *entry.Definition
	def.Enabled = enabled
	r.entries[id] = &Entry{Definition: &def, Trigger: entry.Trigger}
	r.rebuildSnapshot()
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "workflow state changed",
		slog.String("workflow_id", id),
		slog.Bool("enabled", enabled),
	)
	return nil
}

// rebuildSnapshot recomputes the read-only slice. Caller holds mu.
func (r *Registry) rebuildSnapshot() {
	snap := make([]*Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		snap = append(snap, entry)
	}
	r.snapshot = snap
}
