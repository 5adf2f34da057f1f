package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

func newTestLibSQLStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestLibSQLMigrateIsIdempotent(t *testing.T) {
	s := newTestLibSQLStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestLibSQLWorkflowRoundTrip(t *testing.T) {
	s := newTestLibSQLStore(t)
	ctx := context.Background()

	def := sampleDefinition("wf-1", "round trip")
	def.Description = "persists across decode"
	require.NoError(t, s.PutWorkflow(ctx, def))

	got, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "round trip", got.Name)
	assert.Equal(t, "persists across decode", got.Description)
	assert.True(t, got.Enabled)
	require.Len(t, got.Actions, 1)
	assert.Equal(t, schema.ActionNotify, got.Actions[0].Type)

	// The enabled column is authoritative over the definition blob.
	require.NoError(t, s.SetWorkflowEnabled(ctx, "wf-1", false))
	got, err = s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	all, err := s.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteWorkflow(ctx, "wf-1"))
	_, err = s.GetWorkflow(ctx, "wf-1")
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestLibSQLRunPersistence(t *testing.T) {
	s := newTestLibSQLStore(t)
	ctx := context.Background()

	run := &schema.WorkflowRun{
		ID:         "run-1",
		WorkflowID: "wf-1",
		Status:     schema.RunStatusPending,
		Event: schema.ChangeEvent{
			ID:   "ev-1",
			Type: schema.EventEntityCreated,
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateRun(ctx, run))

	started := time.Now().UTC()
	running := schema.RunStatusRunning
	require.NoError(t, s.UpdateRun(ctx, "run-1", RunUpdate{Status: &running, StartedAt: &started}))

	succeeded := schema.RunStatusSucceeded
	finished := time.Now().UTC()
	require.NoError(t, s.UpdateRun(ctx, "run-1", RunUpdate{
		Status:     &succeeded,
		FinishedAt: &finished,
		ActionLogs: []schema.ActionLog{
			{Index: 0, Type: schema.ActionNotify, Status: schema.ActionStatusSucceeded, Output: map[string]any{"channel": "console"}},
		},
	}))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusSucceeded, got.Status)
	assert.Equal(t, "ev-1", got.Event.ID)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	require.Len(t, got.ActionLogs, 1)
	assert.Equal(t, "console", got.ActionLogs[0].Output["channel"])

	runs, err := s.ListRuns(ctx, RunFilter{WorkflowID: "wf-1", Status: &succeeded})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestLibSQLSuggestionAndScheduleState(t *testing.T) {
	s := newTestLibSQLStore(t)
	ctx := context.Background()

	sug := &schema.WorkflowSuggestion{
		ID:          "sug-1",
		Status:      schema.SuggestionProposed,
		PatternType: schema.PatternTemporal,
		Confidence:  0.7,
		Rationale:   "fires around the same hour",
		Proposed:    *sampleDefinition("", "proposed workflow"),
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.PutSuggestion(ctx, sug))
	require.NoError(t, s.UpdateSuggestionStatus(ctx, "sug-1", schema.SuggestionDismissed))

	got, err := s.GetSuggestion(ctx, "sug-1")
	require.NoError(t, err)
	assert.Equal(t, schema.SuggestionDismissed, got.Status)
	assert.Equal(t, "proposed workflow", got.Proposed.Name)

	// Re-putting a mined duplicate must not resurrect its status.
	require.NoError(t, s.PutSuggestion(ctx, sug))
	got, err = s.GetSuggestion(ctx, "sug-1")
	require.NoError(t, err)
	assert.Equal(t, schema.SuggestionDismissed, got.Status)

	none, err := s.GetLastFired(ctx, "wf-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetLastFired(ctx, "wf-1", at))
	fired, err := s.GetLastFired(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, fired)
	assert.True(t, fired.Equal(at))
}
