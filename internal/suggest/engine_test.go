package suggest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilylaguna/memoryd/internal/memory"
	"github.com/emilylaguna/memoryd/internal/registry"
	"github.com/emilylaguna/memoryd/internal/store"
	"github.com/emilylaguna/memoryd/internal/validation"
	"github.com/emilylaguna/memoryd/pkg/schema"
)

type fixture struct {
	engine   *Engine
	entities *memory.InMemoryStore
	store    *store.MemoryStore
	registry *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validator, err := validation.NewWorkflowValidator(nil)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	reg := registry.New(validator, st, logger)
	entities := memory.NewInMemoryStore()

	return &fixture{
		engine:   NewEngine(entities, st, reg, logger),
		entities: entities,
		store:    st,
		registry: reg,
	}
}

func (f *fixture) seedEntities(t *testing.T, entityType string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.entities.SaveEntity(context.Background(), &schema.Entity{
			Type: entityType,
			Name: "entry",
		}))
	}
}

func names(suggestions []*schema.WorkflowSuggestion) []string {
	out := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, s.Proposed.Name)
	}
	return out
}

func TestGenerateOnEmptyStoreYieldsSeeds(t *testing.T) {
	f := newFixture(t)

	suggestions, err := f.engine.Generate(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	assert.Contains(t, names(suggestions), "Meeting follow-up tasks")
	assert.Contains(t, names(suggestions), "Weekly review reminder")

	for _, s := range suggestions {
		assert.Equal(t, schema.SuggestionProposed, s.Status)
		assert.NotEmpty(t, s.ID)
		assert.Greater(t, s.Confidence, 0.0)
		assert.LessOrEqual(t, s.Confidence, 1.0)
	}
}

func TestGenerateMinesCreationFrequency(t *testing.T) {
	f := newFixture(t)
	f.seedEntities(t, "meeting", 5)

	suggestions, err := f.engine.Generate(context.Background(), "", 0)
	require.NoError(t, err)

	// The mined meeting pattern wins the name over the seed; either way
	// exactly one meeting-related proposal exists.
	assert.Contains(t, names(suggestions), "Follow up on new meeting entities")
}

func TestGenerateIsIdempotentAcrossRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Generate(ctx, "", 0)
	require.NoError(t, err)
	second, err := f.engine.Generate(ctx, "", 0)
	require.NoError(t, err)

	assert.ElementsMatch(t, names(first), names(second))

	all, err := f.store.ListSuggestions(ctx, store.SuggestionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, len(first))
}

func TestGenerateSkipsRegisteredWorkflowNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.Register(ctx, &schema.WorkflowDefinition{
		Name:    "Weekly review reminder",
		Enabled: true,
		Trigger: schema.Trigger{Schedule: "0 16 * * 5"},
		Actions: []schema.Action{
			{Type: schema.ActionNotify, Params: map[string]any{"message": "review"}},
		},
	})
	require.NoError(t, err)

	suggestions, err := f.engine.Generate(ctx, "", 0)
	require.NoError(t, err)
	assert.NotContains(t, names(suggestions), "Weekly review reminder")
}

func TestGenerateQueryAndLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	filtered, err := f.engine.Generate(ctx, "weekly", 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Weekly review reminder", filtered[0].Proposed.Name)

	limited, err := f.engine.List(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestListOrdersByConfidence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Generate(ctx, "", 0)
	require.NoError(t, err)

	listed, err := f.engine.List(ctx, "", 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(listed), 2)
	for i := 1; i < len(listed); i++ {
		assert.GreaterOrEqual(t, listed[i-1].Confidence, listed[i].Confidence)
	}
}

func TestApproveRegistersWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	suggestions, err := f.engine.Generate(ctx, "meeting", 0)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	target := suggestions[0]

	def, err := f.engine.Approve(ctx, target.ID)
	require.NoError(t, err)
	require.NotEmpty(t, def.ID)
	assert.Equal(t, target.Proposed.Name, def.Name)

	registered, err := f.registry.Get(def.ID)
	require.NoError(t, err)
	assert.True(t, registered.Enabled)

	sug, err := f.store.GetSuggestion(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.SuggestionApproved, sug.Status)

	// Approved suggestions drop out of the proposed listing.
	remaining, err := f.engine.List(ctx, "", 0)
	require.NoError(t, err)
	assert.NotContains(t, names(remaining), target.Proposed.Name)
}

func TestApproveNonProposedConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	suggestions, err := f.engine.Generate(ctx, "weekly", 0)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	target := suggestions[0]

	require.NoError(t, f.engine.Dismiss(ctx, target.ID))

	_, err = f.engine.Approve(ctx, target.ID)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))
}

func TestDismissLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	suggestions, err := f.engine.Generate(ctx, "weekly", 0)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	target := suggestions[0]

	require.NoError(t, f.engine.Dismiss(ctx, target.ID))

	sug, err := f.store.GetSuggestion(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.SuggestionDismissed, sug.Status)

	// Double dismiss is a conflict, unknown ID is not found.
	err = f.engine.Dismiss(ctx, target.ID)
	assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))
	err = f.engine.Dismiss(ctx, "missing")
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestDismissedSuggestionNotRegenerated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	suggestions, err := f.engine.Generate(ctx, "weekly", 0)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	require.NoError(t, f.engine.Dismiss(ctx, suggestions[0].ID))

	again, err := f.engine.Generate(ctx, "weekly", 0)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestMetricsCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	f.engine.SetClock(func() time.Time { return at })

	suggestions, err := f.engine.Generate(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	require.NoError(t, f.engine.Dismiss(ctx, suggestions[0].ID))

	m, err := f.engine.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Total)
	assert.Equal(t, 2, m.Generated)
	assert.Equal(t, 1, m.ByStatus["proposed"])
	assert.Equal(t, 1, m.ByStatus["dismissed"])
	require.NotNil(t, m.LastRunAt)
	assert.True(t, m.LastRunAt.Equal(at))
}

func TestConfidenceScalesWithSampleSize(t *testing.T) {
	strong := pattern{Strength: 0.8, SampleSize: 20}
	assert.InDelta(t, 0.8, strong.confidence(), 0.001)

	rare := pattern{Strength: 0.8, SampleSize: 2}
	assert.InDelta(t, 0.16, rare.confidence(), 0.001)
}
