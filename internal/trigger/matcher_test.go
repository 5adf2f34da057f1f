package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

func entityEvent(evType schema.EventType, entity schema.Entity) schema.ChangeEvent {
	return schema.ChangeEvent{
		ID:         "ev-1",
		Type:       evType,
		Entities:   []schema.Entity{entity},
		OccurredAt: time.Now().UTC(),
	}
}

func TestCompileRejectsMixedForms(t *testing.T) {
	_, err := Compile(schema.Trigger{
		EntityType: "note",
		EventType:  "entity_created",
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestCompileRejectsEmptyTrigger(t *testing.T) {
	_, err := Compile(schema.Trigger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never fire")
}

func TestCompileRejectsBadCron(t *testing.T) {
	_, err := Compile(schema.Trigger{Schedule: "not a cron"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestCompileAcceptsScheduleOnly(t *testing.T) {
	c, err := Compile(schema.Trigger{Schedule: "0 9 * * 1-5"})
	require.NoError(t, err)
	assert.True(t, c.Scheduled())
	assert.Equal(t, "0 9 * * 1-5", c.ScheduleExpr())
}

func TestDirectMatchAllFieldsAND(t *testing.T) {
	c, err := Compile(schema.Trigger{
		EntityType: "note",
		Content:    "standup",
		Tags:       []string{"work"},
		Metadata:   map[string]any{"priority": "high"},
	})
	require.NoError(t, err)

	entity := schema.Entity{
		ID:       "e1",
		Type:     "note",
		Content:  "notes from standup today",
		Tags:     []string{"work", "meeting"},
		Metadata: map[string]any{"priority": "high"},
	}
	ev := entityEvent(schema.EventEntityCreated, entity)
	assert.True(t, c.Matches(ev, &ev.Entities[0]))

	// One field off fails the whole conjunction.
	miss := entity
	miss.Tags = []string{"personal"}
	evMiss := entityEvent(schema.EventEntityCreated, miss)
	assert.False(t, c.Matches(evMiss, &evMiss.Entities[0]))
}

func TestDirectContentIsSubstring(t *testing.T) {
	c, err := Compile(schema.Trigger{Content: "meeting"})
	require.NoError(t, err)

	ev := entityEvent(schema.EventEntityCreated, schema.Entity{ID: "e1", Type: "note", Content: "pre-meeting notes"})
	assert.True(t, c.Matches(ev, &ev.Entities[0]))

	evMiss := entityEvent(schema.EventEntityCreated, schema.Entity{ID: "e2", Type: "note", Content: "groceries"})
	assert.False(t, c.Matches(evMiss, &evMiss.Entities[0]))
}

func TestLegacyEventTypeAndFilter(t *testing.T) {
	c, err := Compile(schema.Trigger{
		EventType: "entity_created",
		Filter: map[string]any{
			"entity.type":              "note",
			"entity.metadata.priority": "high",
		},
	})
	require.NoError(t, err)

	entity := schema.Entity{ID: "e1", Type: "note", Metadata: map[string]any{"priority": "high"}}
	ev := entityEvent(schema.EventEntityCreated, entity)
	assert.True(t, c.Matches(ev, &ev.Entities[0]))

	// Wrong event type.
	evUpd := entityEvent(schema.EventEntityUpdated, entity)
	assert.False(t, c.Matches(evUpd, &evUpd.Entities[0]))

	// Unresolvable path is a non-match, not an error.
	bare := schema.Entity{ID: "e2", Type: "note"}
	evBare := entityEvent(schema.EventEntityCreated, bare)
	assert.False(t, c.Matches(evBare, &evBare.Entities[0]))
}

func TestLegacyListFilterIntersects(t *testing.T) {
	c, err := Compile(schema.Trigger{
		EventType: "entity_created",
		Filter:    map[string]any{"entity.tags": []any{"work", "urgent"}},
	})
	require.NoError(t, err)

	ev := entityEvent(schema.EventEntityCreated, schema.Entity{ID: "e1", Type: "note", Tags: []string{"urgent"}})
	assert.True(t, c.Matches(ev, &ev.Entities[0]))

	evMiss := entityEvent(schema.EventEntityCreated, schema.Entity{ID: "e2", Type: "note", Tags: []string{"personal"}})
	assert.False(t, c.Matches(evMiss, &evMiss.Entities[0]))
}

func TestLegacyNumericCoercion(t *testing.T) {
	// Decoded JSON filters carry float64; metadata may hold ints.
	c, err := Compile(schema.Trigger{
		EventType: "entity_created",
		Filter:    map[string]any{"entity.metadata.count": float64(3)},
	})
	require.NoError(t, err)

	ev := entityEvent(schema.EventEntityCreated, schema.Entity{
		ID: "e1", Type: "note", Metadata: map[string]any{"count": 3},
	})
	assert.True(t, c.Matches(ev, &ev.Entities[0]))
}

func TestMetadataObjectValuesCompareDeeply(t *testing.T) {
	// Metadata values are unconstrained JSON; object and array values
	// must compare by content, not identity.
	c, err := Compile(schema.Trigger{
		Metadata: map[string]any{"pos": map[string]any{"x": float64(1)}},
	})
	require.NoError(t, err)

	ev := entityEvent(schema.EventEntityCreated, schema.Entity{
		ID: "e1", Type: "note",
		Metadata: map[string]any{"pos": map[string]any{"x": float64(1)}},
	})
	assert.True(t, c.Matches(ev, &ev.Entities[0]))

	evMiss := entityEvent(schema.EventEntityCreated, schema.Entity{
		ID: "e2", Type: "note",
		Metadata: map[string]any{"pos": map[string]any{"x": float64(2)}},
	})
	assert.False(t, c.Matches(evMiss, &evMiss.Entities[0]))

	evArr := entityEvent(schema.EventEntityCreated, schema.Entity{
		ID: "e3", Type: "note",
		Metadata: map[string]any{"pos": []any{"a", "b"}},
	})
	assert.False(t, c.Matches(evArr, &evArr.Entities[0]))
}

func TestLegacyFilterObjectValuesCompareDeeply(t *testing.T) {
	c, err := Compile(schema.Trigger{
		EventType: "entity_created",
		Filter:    map[string]any{"entity.metadata.origin": map[string]any{"source": "import"}},
	})
	require.NoError(t, err)

	ev := entityEvent(schema.EventEntityCreated, schema.Entity{
		ID: "e1", Type: "note",
		Metadata: map[string]any{"origin": map[string]any{"source": "import"}},
	})
	assert.True(t, c.Matches(ev, &ev.Entities[0]))

	evMiss := entityEvent(schema.EventEntityCreated, schema.Entity{
		ID: "e2", Type: "note",
		Metadata: map[string]any{"origin": map[string]any{"source": "manual"}},
	})
	assert.False(t, c.Matches(evMiss, &evMiss.Entities[0]))
}

func TestDirectAndLegacyEquivalence(t *testing.T) {
	// The same predicate expressed in both forms must agree on every input.
	direct, err := Compile(schema.Trigger{EntityType: "task", Metadata: map[string]any{"status": "pending"}})
	require.NoError(t, err)
	legacy, err := Compile(schema.Trigger{
		EventType: "entity_created",
		Filter: map[string]any{
			"entity.type":            "task",
			"entity.metadata.status": "pending",
		},
	})
	require.NoError(t, err)

	cases := []schema.Entity{
		{ID: "a", Type: "task", Metadata: map[string]any{"status": "pending"}},
		{ID: "b", Type: "task", Metadata: map[string]any{"status": "done"}},
		{ID: "c", Type: "note", Metadata: map[string]any{"status": "pending"}},
		{ID: "d", Type: "task"},
	}
	for _, entity := range cases {
		ev := entityEvent(schema.EventEntityCreated, entity)
		assert.Equal(t,
			direct.Matches(ev, &ev.Entities[0]),
			legacy.Matches(ev, &ev.Entities[0]),
			"entity %s", entity.ID,
		)
	}
}

func TestManualAlwaysMatches(t *testing.T) {
	c, err := Compile(schema.Trigger{EntityType: "note"})
	require.NoError(t, err)

	ev := schema.ChangeEvent{Type: schema.EventManual, TargetWorkflowID: "wf-1"}
	assert.True(t, c.Matches(ev, nil))
}

func TestScheduledOnlyFiresScheduledTriggers(t *testing.T) {
	scheduled, err := Compile(schema.Trigger{Schedule: "0 9 * * *"})
	require.NoError(t, err)
	unscheduled, err := Compile(schema.Trigger{EntityType: "note"})
	require.NoError(t, err)

	ev := schema.ChangeEvent{Type: schema.EventScheduled}
	assert.True(t, scheduled.Matches(ev, nil))
	assert.False(t, unscheduled.Matches(ev, nil))

	// Entity events never fire a schedule-only trigger.
	evEntity := entityEvent(schema.EventEntityCreated, schema.Entity{ID: "e1", Type: "note"})
	assert.False(t, scheduled.Matches(evEntity, &evEntity.Entities[0]))
}
