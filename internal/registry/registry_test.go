package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilylaguna/memoryd/internal/store"
	"github.com/emilylaguna/memoryd/internal/validation"
	"github.com/emilylaguna/memoryd/pkg/schema"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) (*Registry, *store.MemoryStore) {
	t.Helper()
	validator, err := validation.NewWorkflowValidator(nil)
	require.NoError(t, err)
	st := store.NewMemoryStore()
	return New(validator, st, discardLogger()), st
}

func definition(name string) *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		Name:    name,
		Enabled: true,
		Trigger: schema.Trigger{EntityType: "note"},
		Actions: []schema.Action{
			{Type: schema.ActionNotify, Params: map[string]any{"message": "hi"}},
		},
	}
}

func TestRegisterAssignsIDAndPersists(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	def, err := r.Register(ctx, definition("first"))
	require.NoError(t, err)
	require.NotEmpty(t, def.ID)

	stored, err := st.GetWorkflow(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", stored.Name)

	got, err := r.Get(def.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)
	assert.True(t, r.Enabled(def.ID))
}

func TestRegisterInvalidLeavesRegistryUnchanged(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	bad := definition("bad")
	bad.Trigger = schema.Trigger{}
	_, err := r.Register(ctx, bad)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	assert.Empty(t, r.List(false))
	stored, err := st.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRegisterSameIDReplaces(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	def, err := r.Register(ctx, definition("original"))
	require.NoError(t, err)

	updated := definition("updated")
	updated.ID = def.ID
	_, err = r.Register(ctx, updated)
	require.NoError(t, err)

	got, err := r.Get(def.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Name)
	assert.Len(t, r.List(false), 1)
}

func TestGetUnknownWorkflow(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Get("missing")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestListEnabledOnly(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.Register(ctx, definition("a"))
	require.NoError(t, err)
	_, err = r.Register(ctx, definition("b"))
	require.NoError(t, err)

	require.NoError(t, r.Pause(ctx, a.ID))
	assert.Len(t, r.List(false), 2)

	enabled := r.List(true)
	require.Len(t, enabled, 1)
	assert.Equal(t, "b", enabled[0].Name)
}

func TestPauseResumeIdempotent(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	def, err := r.Register(ctx, definition("a"))
	require.NoError(t, err)

	require.NoError(t, r.Pause(ctx, def.ID))
	require.NoError(t, r.Pause(ctx, def.ID))
	assert.False(t, r.Enabled(def.ID))

	stored, err := st.GetWorkflow(ctx, def.ID)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)

	require.NoError(t, r.Resume(ctx, def.ID))
	require.NoError(t, r.Resume(ctx, def.ID))
	assert.True(t, r.Enabled(def.ID))

	err = r.Pause(ctx, "missing")
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

// enableFailStore rejects enabled-state writes, leaving the rest of
// the store working.
type enableFailStore struct {
	store.Store
}

func (s *enableFailStore) SetWorkflowEnabled(ctx context.Context, id string, enabled bool) error {
	return schema.NewError(schema.ErrCodeStore, "disk full")
}

func TestPauseStoreFailureLeavesWorkflowEnabled(t *testing.T) {
	validator, err := validation.NewWorkflowValidator(nil)
	require.NoError(t, err)
	st := &enableFailStore{Store: store.NewMemoryStore()}
	r := New(validator, st, discardLogger())
	ctx := context.Background()

	def, err := r.Register(ctx, definition("a"))
	require.NoError(t, err)

	err = r.Pause(ctx, def.ID)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeStore, schema.CodeOf(err))

	// The in-memory state still agrees with the store: enabled.
	assert.True(t, r.Enabled(def.ID))
	got, err := r.Get(def.ID)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.True(t, r.Snapshot()[0].Definition.Enabled)
}

func TestPauseDoesNotMutateSharedSnapshot(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	def, err := r.Register(ctx, definition("a"))
	require.NoError(t, err)

	before := r.Snapshot()
	require.Len(t, before, 1)
	require.NoError(t, r.Pause(ctx, def.ID))

	// The pre-pause snapshot still shows the workflow enabled.
	assert.True(t, before[0].Definition.Enabled)
	after := r.Snapshot()
	assert.False(t, after[0].Definition.Enabled)
}

func TestDeleteIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	def, err := r.Register(ctx, definition("a"))
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, def.ID))
	_, err = r.Get(def.ID)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))

	// Second delete and unknown IDs are no-ops.
	assert.NoError(t, r.Delete(ctx, def.ID))
	assert.NoError(t, r.Delete(ctx, "never-existed"))
}

func TestLoadSkipsUncompilableTriggers(t *testing.T) {
	validator, err := validation.NewWorkflowValidator(nil)
	require.NoError(t, err)
	st := store.NewMemoryStore()
	ctx := context.Background()

	good := definition("good")
	good.ID = "wf-good"
	require.NoError(t, st.PutWorkflow(ctx, good))

	// Stored before trigger validation tightened; must not block boot.
	bad := definition("bad")
	bad.ID = "wf-bad"
	bad.Trigger = schema.Trigger{EntityType: "note", EventType: "entity_created"}
	require.NoError(t, st.PutWorkflow(ctx, bad))

	r := New(validator, st, discardLogger())
	require.NoError(t, r.Load(ctx))

	assert.Len(t, r.List(false), 1)
	_, err = r.Get("wf-good")
	assert.NoError(t, err)
	_, err = r.Get("wf-bad")
	assert.Error(t, err)
}

func TestSnapshotReflectsRegistrations(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	assert.Empty(t, r.Snapshot())

	def, err := r.Register(ctx, definition("a"))
	require.NoError(t, err)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, def.ID, snap[0].Definition.ID)
	require.NotNil(t, snap[0].Trigger)
	assert.False(t, snap[0].Trigger.Scheduled())
}
