// Package ledger records every workflow run and its per-action
// outcomes. Entries are written incrementally so a crash mid-run still
// leaves a usable trace.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/emilylaguna/memoryd/internal/logging"
	"github.com/emilylaguna/memoryd/internal/store"
	"github.com/emilylaguna/memoryd/pkg/schema"
)

// RunLedger is the append-mostly log of workflow runs.
type RunLedger struct {
	store  store.Store
	logger *slog.Logger
	clock  func() time.Time
}

// NewRunLedger creates a ledger over the given store.
func NewRunLedger(st store.Store, logger *slog.Logger) *RunLedger {
	return &RunLedger{
		store:  st,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, for tests.
func (l *RunLedger) SetClock(clock func() time.Time) { l.clock = clock }

// Begin creates a pending run entry before any action executes, so the
// ledger shows the run even if the process dies mid-flight.
func (l *RunLedger) Begin(ctx context.Context, workflowID string, event schema.ChangeEvent) (*schema.WorkflowRun, error) {
	run := &schema.WorkflowRun{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Event:      event,
		Status:     schema.RunStatusPending,
		CreatedAt:  l.clock(),
	}
	if err := l.store.CreateRun(ctx, run); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "create run: %s", err.Error()).
			WithWorkflow(workflowID).WithCause(err)
	}
	return run, nil
}

// Start marks the run as running and stamps its start time.
func (l *RunLedger) Start(ctx context.Context, run *schema.WorkflowRun) error {
	now := l.clock()
	run.Status = schema.RunStatusRunning
	run.StartedAt = &now
	status := schema.RunStatusRunning
	return l.update(ctx, run.ID, store.RunUpdate{Status: &status, StartedAt: &now})
}

// Log appends one action outcome and persists the updated log slice.
func (l *RunLedger) Log(ctx context.Context, run *schema.WorkflowRun, entry schema.ActionLog) error {
	run.ActionLogs = append(run.ActionLogs, entry)
	return l.update(ctx, run.ID, store.RunUpdate{ActionLogs: run.ActionLogs})
}

// Finish records the terminal status. runErr may be empty for success.
func (l *RunLedger) Finish(ctx context.Context, run *schema.WorkflowRun, status schema.RunStatus, runErr string) error {
	now := l.clock()
	run.Status = status
	run.FinishedAt = &now
	run.Error = runErr

	l.logger.InfoContext(logging.WithRunID(ctx, run.ID), "run finished",
		slog.String("workflow_id", run.WorkflowID),
		slog.String("status", string(status)),
		slog.Int("actions", len(run.ActionLogs)),
	)
	return l.update(ctx, run.ID, store.RunUpdate{
		Status:     &status,
		FinishedAt: &now,
		ActionLogs: run.ActionLogs,
		Error:      &runErr,
	})
}

// Get returns one run by ID.
func (l *RunLedger) Get(ctx context.Context, id string) (*schema.WorkflowRun, error) {
	return l.store.GetRun(ctx, id)
}

// List returns runs matching the filter, newest first.
func (l *RunLedger) List(ctx context.Context, filter store.RunFilter) ([]*schema.WorkflowRun, error) {
	return l.store.ListRuns(ctx, filter)
}

func (l *RunLedger) update(ctx context.Context, id string, update store.RunUpdate) error {
	if err := l.store.UpdateRun(ctx, id, update); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "update run %q: %s", id, err.Error()).WithCause(err)
	}
	return nil
}
