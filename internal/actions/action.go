// Package actions executes the side-effecting steps of a workflow run.
// Each action type is an independent handler registered on the
// Executor; parameter resolution and condition gating happen here so
// handlers only ever see fully resolved params.
package actions

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/emilylaguna/memoryd/internal/template"
	"github.com/emilylaguna/memoryd/pkg/schema"
)

// RunContext carries run-scoped identifiers and the template context
// for one action execution.
type RunContext struct {
	WorkflowID string
	RunID      string
	EventID    string
	Template   *template.Context
}

// Handler executes one action type.
type Handler interface {
	Type() schema.ActionType
	// Validate checks raw (unresolved) params at registration time so
	// malformed workflows never reach execution.
	Validate(params map[string]any) error
	Execute(ctx context.Context, params map[string]any, rc RunContext) (map[string]any, error)
}

// Executor dispatches actions to their handlers, resolving templated
// params and evaluating the gating condition first.
type Executor struct {
	mu         sync.RWMutex
	handlers   map[schema.ActionType]Handler
	resolver   *template.Resolver
	conditions *template.ConditionEvaluator
	logger     *slog.Logger
}

// NewExecutor creates an Executor with no handlers registered.
func NewExecutor(resolver *template.Resolver, conditions *template.ConditionEvaluator, logger *slog.Logger) *Executor {
	return &Executor{
		handlers:   make(map[schema.ActionType]Handler),
		resolver:   resolver,
		conditions: conditions,
		logger:     logger,
	}
}

// Register adds a handler. Returns an error on duplicate type.
func (e *Executor) Register(h Handler) error {
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.handlers[h.Type()]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "handler %q already registered", h.Type())
	}
	e.handlers[h.Type()] = h
	return nil
}

// Has reports whether a handler exists for the action type.
func (e *Executor) Has(t schema.ActionType) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.handlers[t]
	return ok
}

// Validate checks an action at registration time: known type, valid
// params per the handler, and a compilable condition.
func (e *Executor) Validate(action schema.Action) error {
	e.mu.RLock()
	h, ok := e.handlers[action.Type]
	e.mu.RUnlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown action type %q", action.Type)
	}
	if err := h.Validate(action.Params); err != nil {
		return err
	}
	if action.Condition != "" {
		return e.conditions.Compile(action.Condition)
	}
	return nil
}

// Execute runs one action and returns its log entry. It never returns
// an error: failures are captured on the log so the caller can apply
// the fail-fast policy and record the outcome.
func (e *Executor) Execute(ctx context.Context, index int, action schema.Action, rc RunContext) schema.ActionLog {
	log := schema.ActionLog{Index: index, Type: action.Type}

	if action.Condition != "" {
		pass, err := e.conditions.Evaluate(action.Condition, rc.Template)
		if err != nil {
			log.Status = schema.ActionStatusFailed
			log.Error = err.Error()
			return log
		}
		if !pass {
			log.Status = schema.ActionStatusSkipped
			return log
		}
	}

	resolved, err := e.resolver.ResolveParams(action.Params, rc.Template)
	if err != nil {
		log.Status = schema.ActionStatusFailed
		log.Error = err.Error()
		return log
	}
	log.ResolvedParams = resolved

	e.mu.RLock()
	h, ok := e.handlers[action.Type]
	e.mu.RUnlock()
	if !ok {
		// Unknown types are rejected at registration; reaching here means
		// a handler was unregistered under a live definition.
		log.Status = schema.ActionStatusFailed
		log.Error = schema.NewErrorf(schema.ErrCodeExecution, "no handler for action type %q", action.Type).Error()
		return log
	}

	start := time.Now()
	output, execErr := h.Execute(ctx, resolved, rc)
	log.DurationMs = time.Since(start).Milliseconds()
	log.Output = output

	if execErr != nil {
		log.Status = schema.ActionStatusFailed
		log.Error = execErr.Error()
		e.logger.ErrorContext(ctx, "action failed",
			slog.Int("index", index),
			slog.String("type", string(action.Type)),
			slog.String("error", execErr.Error()),
		)
		return log
	}

	log.Status = schema.ActionStatusSucceeded
	return log
}

// --- Param helpers used by all handler files ---

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func mapParam(m map[string]any, key string) map[string]any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	mm, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return mm
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

func floatParam(m map[string]any, key string, defaultVal float64) float64 {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return defaultVal
		}
		return f
	default:
		return defaultVal
	}
}

func stringMapParam(m map[string]any, key string) map[string]string {
	raw := mapParam(m, key)
	if raw == nil {
		return nil
	}
	result := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			result[k] = s
		}
	}
	return result
}

func requireString(t schema.ActionType, m map[string]any, key string) error {
	v, ok := m[key]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s: missing required param %q", t, key)
	}
	if s, isStr := v.(string); !isStr || s == "" {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s: param %q must be a non-empty string", t, key)
	}
	return nil
}
