package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, WorkflowID(ctx))
	assert.Empty(t, RunID(ctx))
	assert.Empty(t, EventID(ctx))

	ctx = WithIDs(ctx, "wf-1", "run-1", "ev-1")
	assert.Equal(t, "wf-1", WorkflowID(ctx))
	assert.Equal(t, "run-1", RunID(ctx))
	assert.Equal(t, "ev-1", EventID(ctx))
}

func TestCorrelationHandlerInjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithIDs(context.Background(), "wf-1", "run-1", "ev-1")
	logger.InfoContext(ctx, "action started")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "wf-1", record["workflow_id"])
	assert.Equal(t, "run-1", record["run_id"])
	assert.Equal(t, "ev-1", record["event_id"])
	assert.Equal(t, "action started", record["msg"])
}

func TestCorrelationHandlerOmitsAbsentIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(WithRunID(context.Background(), "run-1"), "run finished")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "run-1", record["run_id"])
	_, hasWorkflow := record["workflow_id"]
	assert.False(t, hasWorkflow)
}

func TestCorrelationHandlerPreservesAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))
	logger := base.With(slog.String("component", "dispatcher"))

	logger.InfoContext(WithWorkflowID(context.Background(), "wf-1"), "event routed")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "dispatcher", record["component"])
	assert.Equal(t, "wf-1", record["workflow_id"])
}
