package validation

import (
	"fmt"

	"github.com/emilylaguna/memoryd/internal/trigger"
	"github.com/emilylaguna/memoryd/pkg/schema"
)

// ActionChecker validates one action's type, params, and condition.
// Satisfied by the actions Executor.
type ActionChecker interface {
	Validate(action schema.Action) error
}

// WorkflowValidator runs the two-stage validation pipeline:
//  1. Structural (JSON Schema)
//  2. Semantic (trigger compiles, action params and conditions check out)
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	actions    ActionChecker
}

// NewWorkflowValidator creates a WorkflowValidator. checker may be nil
// to skip per-action checks.
func NewWorkflowValidator(checker ActionChecker) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{jsonSchema: jsv, actions: checker}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit: semantic checks assume a
// well-shaped definition.
func (wv *WorkflowValidator) Validate(def *schema.WorkflowDefinition) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.Add("/", schema.ErrCodeValidation, "workflow definition is nil")
		return r
	}

	result := wv.validateStructural(def)
	if !result.Valid() {
		return result
	}

	result.Merge(wv.validateSemantic(def))
	return result
}

// ValidateDefinition returns the pipeline outcome as a single error.
func (wv *WorkflowValidator) ValidateDefinition(def *schema.WorkflowDefinition) error {
	return wv.Validate(def).ToError()
}

func (wv *WorkflowValidator) validateStructural(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := wv.jsonSchema.ValidateDefinition(def)
	if err == nil {
		return result
	}

	autoErr, ok := err.(*schema.AutomationError)
	if !ok {
		result.Add("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if autoErr.Details != nil {
		if violations, ok := autoErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.Add("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.Add("/", schema.ErrCodeValidation, autoErr.Message)
	return result
}

// validateSemantic checks what the JSON Schema cannot: the trigger must
// normalize (no mixed forms, parseable cron and filter keys) and every
// action must pass its handler's param check.
func (wv *WorkflowValidator) validateSemantic(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if _, err := trigger.Compile(def.Trigger); err != nil {
		result.Add("/trigger", schema.ErrCodeValidation, err.Error())
	}

	if wv.actions != nil {
		for i, action := range def.Actions {
			if err := wv.actions.Validate(action); err != nil {
				result.Add(fmt.Sprintf("/actions/%d", i), schema.ErrCodeValidation, err.Error())
			}
		}
	}

	return result
}
