// Package scheduler fires cron-triggered workflows. It polls the
// registry snapshot on a fixed tick and synthesizes scheduled change
// events for workflows whose cron expression has come due since the
// last firing.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emilylaguna/memoryd/internal/registry"
	"github.com/emilylaguna/memoryd/internal/store"
	"github.com/emilylaguna/memoryd/pkg/schema"
)

const defaultTickInterval = 30 * time.Second

// EventSink receives the synthetic scheduled events. Satisfied by the
// dispatcher.
type EventSink interface {
	Dispatch(event schema.ChangeEvent)
}

// Scheduler drives cron triggers. Dedup is persisted: the last-fired
// instant per workflow survives restarts, so a due schedule fires once
// per instant no matter how ticks align.
type Scheduler struct {
	registry *registry.Registry
	store    store.Store
	sink     EventSink
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Scheduler. interval <= 0 uses the default.
func New(reg *registry.Registry, st store.Store, sink EventSink, logger *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	return &Scheduler{
		registry: reg,
		store:    st,
		sink:     sink,
		logger:   logger,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, for tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Start launches the background tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
	return nil
}

// Stop shuts the tick loop down and waits for it to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick scans all enabled scheduled workflows and fires the due ones.
// Exported so tests can drive the scheduler without real time.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	for _, entry := range s.registry.Snapshot() {
		if !entry.Definition.Enabled || !entry.Trigger.Scheduled() {
			continue
		}
		s.checkWorkflow(ctx, entry, now)
	}
}

func (s *Scheduler) checkWorkflow(ctx context.Context, entry *registry.Entry, now time.Time) {
	workflowID := entry.Definition.ID
	sched := entry.Trigger.Schedule()

	lastFired, err := s.store.GetLastFired(ctx, workflowID)
	if err != nil {
		s.logger.Error("cannot read schedule state",
			slog.String("workflow_id", workflowID),
			slog.String("error", err.Error()),
		)
		return
	}

	// First sighting: baseline to now so old instants are not replayed.
	if lastFired == nil {
		if err := s.store.SetLastFired(ctx, workflowID, now); err != nil {
			s.logger.Error("cannot baseline schedule state",
				slog.String("workflow_id", workflowID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	due := sched.Next(*lastFired)
	if due.After(now) {
		return
	}

	// Report instants that went by without firing (long downtime or a
	// stalled tick loop). They are logged, not backfilled: only the most
	// recent due instant produces a run.
	missed := 0
	fireAt := due
	for next := sched.Next(fireAt); !next.After(now); next = sched.Next(fireAt) {
		fireAt = next
		missed++
	}
	if missed > 0 {
		s.logger.Warn("missed schedule instants",
			slog.String("code", schema.ErrCodeMissedTick),
			slog.String("workflow_id", workflowID),
			slog.String("schedule", entry.Trigger.ScheduleExpr()),
			slog.Int("missed", missed),
		)
	}

	// Advance last-fired to the due instant before dispatching so a
	// second tick in the same window cannot double-fire.
	if err := s.store.SetLastFired(ctx, workflowID, fireAt); err != nil {
		s.logger.Error("cannot advance schedule state",
			slog.String("workflow_id", workflowID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("schedule fired",
		slog.String("workflow_id", workflowID),
		slog.String("schedule", entry.Trigger.ScheduleExpr()),
		slog.Time("due", fireAt),
	)

	s.sink.Dispatch(schema.ChangeEvent{
		Type:             schema.EventScheduled,
		OccurredAt:       fireAt,
		TargetWorkflowID: workflowID,
		Payload: map[string]any{
			"schedule": entry.Trigger.ScheduleExpr(),
			"due":      fireAt.Format(time.RFC3339),
		},
	})
}
