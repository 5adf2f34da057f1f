package actions

import (
	"context"

	"github.com/emilylaguna/memoryd/internal/memory"
	"github.com/emilylaguna/memoryd/pkg/schema"
)

// StoreActions returns the handlers that write back into the memory
// store: create_task, update_entity, save_relation.
func StoreActions(store memory.EntityStore) []Handler {
	return []Handler{
		&createTaskAction{store: store},
		&updateEntityAction{store: store},
		&saveRelationAction{store: store},
	}
}

// --- create_task ---

type createTaskAction struct {
	store memory.EntityStore
}

func (a *createTaskAction) Type() schema.ActionType { return schema.ActionCreateTask }

func (a *createTaskAction) Validate(params map[string]any) error {
	if err := requireString(a.Type(), params, "title"); err != nil {
		return err
	}
	if _, ok := params["content"]; !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s: missing required param %q", a.Type(), "content")
	}
	return nil
}

// Execute persists a new task entity. Provenance metadata is stamped so
// a task created by automation is distinguishable from a manual one.
func (a *createTaskAction) Execute(ctx context.Context, params map[string]any, rc RunContext) (map[string]any, error) {
	title := stringParam(params, "title", "")
	if title == "" {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: resolved title is empty", a.Type())
	}
	content := stringParam(params, "content", "")
	priority := stringParam(params, "priority", "medium")

	metadata := map[string]any{
		"priority":            priority,
		"status":              "pending",
		"created_by_workflow": rc.WorkflowID,
		"triggered_by_event":  rc.EventID,
	}
	for k, v := range mapParam(params, "metadata") {
		metadata[k] = v
	}

	task := &schema.Entity{
		Type:     "task",
		Name:     title,
		Content:  content,
		Tags:     []string{"automated"},
		Metadata: metadata,
	}
	if err := a.store.SaveEntity(ctx, task); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: save failed: %s", a.Type(), err.Error()).WithCause(err)
	}

	return map[string]any{
		"task_id":  task.ID,
		"title":    task.Name,
		"priority": priority,
	}, nil
}

// --- update_entity ---

type updateEntityAction struct {
	store memory.EntityStore
}

func (a *updateEntityAction) Type() schema.ActionType { return schema.ActionUpdateEntity }

func (a *updateEntityAction) Validate(params map[string]any) error {
	if err := requireString(a.Type(), params, "entity_id"); err != nil {
		return err
	}
	updates := mapParam(params, "updates")
	if len(updates) == 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s: param %q must be a non-empty object", a.Type(), "updates")
	}
	return nil
}

func (a *updateEntityAction) Execute(ctx context.Context, params map[string]any, rc RunContext) (map[string]any, error) {
	entityID := stringParam(params, "entity_id", "")
	updates := mapParam(params, "updates")

	updated, err := a.store.UpdateEntity(ctx, entityID, updates)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: update of %q failed: %s", a.Type(), entityID, err.Error()).WithCause(err)
	}

	fields := make([]any, 0, len(updates))
	for k := range updates {
		fields = append(fields, k)
	}
	return map[string]any{
		"entity_id":      updated.ID,
		"updated_fields": fields,
	}, nil
}

// --- save_relation ---

type saveRelationAction struct {
	store memory.EntityStore
}

func (a *saveRelationAction) Type() schema.ActionType { return schema.ActionSaveRelation }

func (a *saveRelationAction) Validate(params map[string]any) error {
	for _, key := range []string{"source_id", "target_id", "relation_type"} {
		if err := requireString(a.Type(), params, key); err != nil {
			return err
		}
	}
	return nil
}

func (a *saveRelationAction) Execute(ctx context.Context, params map[string]any, rc RunContext) (map[string]any, error) {
	rel := &schema.Relation{
		SourceID:     stringParam(params, "source_id", ""),
		TargetID:     stringParam(params, "target_id", ""),
		RelationType: stringParam(params, "relation_type", ""),
		Strength:     floatParam(params, "strength", 1.0),
		Metadata:     mapParam(params, "metadata"),
	}
	if err := a.store.SaveRelation(ctx, rel); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: save failed: %s", a.Type(), err.Error()).WithCause(err)
	}

	return map[string]any{
		"relation_id":   rel.ID,
		"source_id":     rel.SourceID,
		"target_id":     rel.TargetID,
		"relation_type": rel.RelationType,
	}, nil
}
