// memoryd is the workflow automation daemon for a personal memory
// store. It watches entity and relation writes, runs matching
// workflows, fires cron schedules, and serves the whole surface as MCP
// tools over stdio.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/emilylaguna/memoryd/internal/actions"
	"github.com/emilylaguna/memoryd/internal/dispatch"
	"github.com/emilylaguna/memoryd/internal/ledger"
	"github.com/emilylaguna/memoryd/internal/logging"
	"github.com/emilylaguna/memoryd/internal/memory"
	"github.com/emilylaguna/memoryd/internal/registry"
	"github.com/emilylaguna/memoryd/internal/scheduler"
	"github.com/emilylaguna/memoryd/internal/store"
	"github.com/emilylaguna/memoryd/internal/suggest"
	"github.com/emilylaguna/memoryd/internal/template"
	"github.com/emilylaguna/memoryd/internal/validation"
	"github.com/emilylaguna/memoryd/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "memoryd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(memorydDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Persistence.
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	// Memory store; the embedded one unless an external store is wired.
	entities := memory.NewInMemoryStore()

	// Template and condition machinery.
	resolver := template.NewResolver()
	conditions, err := template.NewConditionEvaluator(resolver)
	if err != nil {
		return fmt.Errorf("condition evaluator: %w", err)
	}

	// Action handlers.
	executor := actions.NewExecutor(resolver, conditions, logger)
	notifier := actions.NewNotifier(logger)
	handlers := actions.StoreActions(entities)
	handlers = append(handlers,
		actions.NewNotifyAction(notifier),
		actions.NewRunShellAction(actions.ShellConfig{}),
		actions.NewHTTPRequestAction(actions.HTTPConfig{}),
	)
	for _, h := range handlers {
		if err := executor.Register(h); err != nil {
			return fmt.Errorf("register action %q: %w", h.Type(), err)
		}
	}

	// Registry with its validation pipeline.
	validator, err := validation.NewWorkflowValidator(executor)
	if err != nil {
		return fmt.Errorf("validator: %w", err)
	}
	reg := registry.New(validator, st, logger)
	if err := reg.Load(ctx); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	// Dispatch pipeline.
	runLedger := ledger.NewRunLedger(st, logger)
	pool := dispatch.NewWorkerPool(cfg.PoolSize, logger)
	dispatcher := dispatch.New(reg, runLedger, executor, pool, logger)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()
	entities.SetListener(dispatcher)

	// Cron schedules.
	sched := scheduler.New(reg, st, dispatcher, logger, cfg.tickInterval())
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	// Suggestions.
	suggestions := suggest.NewEngine(entities, st, reg, logger)

	srv := mcp.NewServer(mcp.ServerDeps{
		Registry:    reg,
		Ledger:      runLedger,
		Events:      dispatcher,
		Suggestions: suggestions,
		Logger:      logger,
	})

	logger.Info("memoryd started",
		slog.String("db_path", cfg.DBPath),
		slog.Int("pool_size", cfg.PoolSize),
		slog.Int("workflows", len(reg.List(false))),
	)

	return srv.Serve(ctx)
}

// newLogger builds the process logger: JSON on stderr (stdout carries
// the MCP transport) with correlation IDs injected from context.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
