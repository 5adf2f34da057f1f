package template

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

// ConditionEvaluator evaluates the boolean expression gating an action.
// Expressions are CEL over the same namespaces the resolver exposes;
// {{ ... }} placeholders inside the expression are interpolated first.
// Thread-safe: compiled programs are cached and reused across goroutines.
type ConditionEvaluator struct {
	env      *cel.Env
	resolver *Resolver

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewConditionEvaluator creates a ConditionEvaluator with a sandboxed
// environment exposing four top-level map variables: entity, relation,
// payload, datetime.
func NewConditionEvaluator(resolver *Resolver) (*ConditionEvaluator, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	env, err := cel.NewEnv(
		cel.Variable("entity", mapType),
		cel.Variable("relation", mapType),
		cel.Variable("payload", mapType),
		cel.Variable("datetime", mapType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &ConditionEvaluator{
		env:      env,
		resolver: resolver,
		cache:    make(map[string]cel.Program),
	}, nil
}

// Evaluate resolves placeholders in the condition, evaluates the result
// as CEL against the context, and reports truthiness. Evaluation errors
// are returned (the action is marked failed, not retried).
func (e *ConditionEvaluator) Evaluate(condition string, c *Context) (bool, error) {
	expr := condition
	if strings.Contains(expr, "{{") {
		resolved, err := e.resolver.Resolve(expr, c)
		if err != nil {
			return false, err
		}
		expr = resolved
	}
	if strings.TrimSpace(expr) == "" {
		return false, schema.NewError(schema.ErrCodeTemplate, "empty condition expression")
	}

	prg, err := e.getOrCompile(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(activation(c))
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeTemplate,
			"condition evaluation failed for %q: %s", condition, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": condition})
	}

	return truthy(out.Value()), nil
}

// Compile checks a condition expression for syntax errors without
// evaluating it. Used at registration time; expressions containing
// placeholders are only checked at run time, after interpolation.
func (e *ConditionEvaluator) Compile(condition string) error {
	if strings.Contains(condition, "{{") {
		return nil
	}
	_, err := e.getOrCompile(condition)
	return err
}

func (e *ConditionEvaluator) getOrCompile(expr string) (cel.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expr]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expr]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"condition compile error in %q: %s", expr, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expr})
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"condition program error for %q: %s", expr, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expr})
	}

	e.cache[expr] = prg
	return prg, nil
}

// activation builds the CEL evaluation input. Missing namespaces
// default to empty maps to prevent runtime nil-ref errors.
func activation(c *Context) map[string]any {
	data := c.Data()
	act := make(map[string]any, 4)
	for _, key := range []string{"entity", "relation", "payload", "datetime"} {
		if v, ok := data[key]; ok && v != nil {
			act[key] = v
		} else {
			act[key] = map[string]any{}
		}
	}
	return act
}

// truthy converts a CEL result to a boolean: bools as-is, non-zero
// numbers and non-empty/non-"false" strings are true.
func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != "" && val != "false"
	case int64:
		return val != 0
	case uint64:
		return val != 0
	case float64:
		return val != 0
	case nil:
		return false
	default:
		return true
	}
}
