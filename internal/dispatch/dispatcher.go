// Package dispatch connects change events to workflow runs: a
// non-blocking intake queue, trigger matching against the registry
// snapshot, and per-workflow FIFO execution on a shared worker pool.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/emilylaguna/memoryd/internal/actions"
	"github.com/emilylaguna/memoryd/internal/ledger"
	"github.com/emilylaguna/memoryd/internal/logging"
	"github.com/emilylaguna/memoryd/internal/registry"
	"github.com/emilylaguna/memoryd/internal/template"
	"github.com/emilylaguna/memoryd/pkg/schema"
)

// WorkflowSource is the registry surface the dispatcher needs.
type WorkflowSource interface {
	Snapshot() []*registry.Entry
	Enabled(id string) bool
	Get(id string) (*schema.WorkflowDefinition, error)
}

// runItem is one matched (workflow, event, entity) triple awaiting
// execution.
type runItem struct {
	workflowID string
	event      schema.ChangeEvent
	entity     *schema.Entity
}

// Dispatcher routes change events to matching workflows. Intake never
// blocks the store write path and no event is dropped; runs for the
// same workflow execute in arrival order, keyed on the pool by
// workflow ID.
type Dispatcher struct {
	source   WorkflowSource
	ledger   *ledger.RunLedger
	executor *actions.Executor
	pool     *WorkerPool
	logger   *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	intake []schema.ChangeEvent
	closed bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Dispatcher. Call Start before dispatching.
func New(source WorkflowSource, runLedger *ledger.RunLedger, executor *actions.Executor, pool *WorkerPool, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		source:   source,
		ledger:   runLedger,
		executor: executor,
		pool:     pool,
		logger:   logger,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Start launches the matching loop. The context bounds the lifetime of
// all run execution.
func (d *Dispatcher) Start(ctx context.Context) {
	d.baseCtx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.matchLoop()
}

// Dispatch enqueues one event. Never blocks; safe from the store's
// write path. Events arriving after Stop are dropped with a warning.
func (d *Dispatcher) Dispatch(event schema.ChangeEvent) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("event dropped after shutdown", slog.String("event_type", string(event.Type)))
		return
	}
	d.intake = append(d.intake, event)
	d.mu.Unlock()
	d.cond.Signal()
}

// Stop drains the intake queue, lets every scheduled run finish, and
// shuts the pool down.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()

	d.wg.Wait()
	d.pool.Shutdown()
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Dispatcher) matchLoop() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		for len(d.intake) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.intake) == 0 && d.closed {
			d.mu.Unlock()
			return
		}
		event := d.intake[0]
		d.intake = d.intake[1:]
		d.mu.Unlock()

		d.route(event)
	}
}

// route matches one event against the registry snapshot and schedules
// a run per match.
func (d *Dispatcher) route(event schema.ChangeEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	// Targeted events (manual triggers, scheduler firings) bypass
	// matching entirely. Pause state is checked at dequeue time so the
	// attempt is still recorded on the ledger.
	if event.TargetWorkflowID != "" {
		d.schedule(runItem{
			workflowID: event.TargetWorkflowID,
			event:      event,
			entity:     firstEntity(event),
		})
		return
	}

	entities := candidateEntities(event)
	matched := 0
	for _, entry := range d.source.Snapshot() {
		if !entry.Definition.Enabled {
			continue
		}
		for _, entity := range entities {
			if entry.Trigger.Matches(event, entity) {
				d.schedule(runItem{workflowID: entry.Definition.ID, event: event, entity: entity})
				matched++
			}
		}
	}

	d.logger.Debug("event routed",
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.Int("matched", matched),
	)
}

// schedule hands one run to the pool, keyed by workflow ID so runs of
// the same workflow stay in arrival order.
func (d *Dispatcher) schedule(item runItem) {
	err := d.pool.Run(d.baseCtx, item.workflowID, func(ctx context.Context) {
		d.runOne(ctx, item)
	})
	if err != nil {
		d.logger.Warn("run not scheduled",
			slog.String("workflow_id", item.workflowID),
			slog.String("error", err.Error()),
		)
	}
}

// candidateEntities yields the entity snapshots a trigger is checked
// against. Relation events are evaluated once, against the source
// entity, so a single relation write cannot double-fire a workflow.
func candidateEntities(event schema.ChangeEvent) []*schema.Entity {
	if len(event.Entities) == 0 {
		return []*schema.Entity{nil}
	}
	n := len(event.Entities)
	if event.Type == schema.EventRelationCreated {
		n = 1
	}
	out := make([]*schema.Entity, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &event.Entities[i])
	}
	return out
}

func firstEntity(event schema.ChangeEvent) *schema.Entity {
	if len(event.Entities) == 0 {
		return nil
	}
	return &event.Entities[0]
}

// runOne executes one workflow run end to end, recording everything on
// the ledger. Disabled or deleted workflows still get a failed run so
// the attempt is visible.
func (d *Dispatcher) runOne(ctx context.Context, item runItem) {
	ctx = logging.WithIDs(ctx, item.workflowID, "", item.event.ID)

	run, err := d.ledger.Begin(ctx, item.workflowID, item.event)
	if err != nil {
		d.logger.ErrorContext(ctx, "cannot begin run", slog.String("error", err.Error()))
		return
	}
	ctx = logging.WithRunID(ctx, run.ID)

	// Re-check at dequeue time: the workflow may have been paused or
	// deleted while the item sat in the queue.
	def, getErr := d.source.Get(item.workflowID)
	if getErr != nil || !d.source.Enabled(item.workflowID) {
		d.logger.WarnContext(ctx, "run cancelled before start",
			slog.String("code", schema.ErrCodeDisabled),
		)
		d.finish(ctx, run, schema.RunStatusFailed, "workflow disabled")
		return
	}

	if err := d.ledger.Start(ctx, run); err != nil {
		d.logger.ErrorContext(ctx, "cannot start run", slog.String("error", err.Error()))
	}

	rc := actions.RunContext{
		WorkflowID: item.workflowID,
		RunID:      run.ID,
		EventID:    item.event.ID,
		Template:   template.FromEvent(item.event, item.entity),
	}

	for i, action := range def.Actions {
		entry := d.executor.Execute(ctx, i, action, rc)
		if err := d.ledger.Log(ctx, run, entry); err != nil {
			d.logger.ErrorContext(ctx, "cannot persist action log", slog.String("error", err.Error()))
		}
		if entry.Status == schema.ActionStatusFailed {
			d.finish(ctx, run, schema.RunStatusFailed,
				fmt.Sprintf("action %d (%s) failed: %s", i, action.Type, entry.Error))
			return
		}
	}

	d.finish(ctx, run, schema.RunStatusSucceeded, "")
}

func (d *Dispatcher) finish(ctx context.Context, run *schema.WorkflowRun, status schema.RunStatus, msg string) {
	if err := d.ledger.Finish(ctx, run, status, msg); err != nil {
		d.logger.ErrorContext(ctx, "cannot finish run", slog.String("error", err.Error()))
	}
}
