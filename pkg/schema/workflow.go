package schema

import "encoding/json"

// WorkflowDefinition is the JSON-serializable automation rule format.
// Agents provide this via workflow.register; the suggestion engine embeds
// drafts of it in proposals.
type WorkflowDefinition struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Trigger     Trigger  `json:"trigger"`
	Actions     []Action `json:"actions"`
	Enabled     bool     `json:"enabled"`
}

// UnmarshalJSON defaults Enabled to true when the field is omitted.
func (d *WorkflowDefinition) UnmarshalJSON(b []byte) error {
	type alias WorkflowDefinition
	tmp := alias{Enabled: true}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*d = WorkflowDefinition(tmp)
	return nil
}

// Trigger describes the condition under which a workflow fires.
//
// Three shapes share this struct: the direct entity-matching form
// (entityType/content/name/tags/metadata), the legacy form
// (eventType + dotted filter keys), and the scheduled form (cron
// expression). A trigger may combine a schedule with either matching
// form, but mixing direct and legacy fields is rejected at
// registration time.
type Trigger struct {
	// Direct form.
	EntityType string         `json:"entityType,omitempty"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// Legacy form, kept for backward compatibility with stored rules.
	EventType string         `json:"eventType,omitempty"`
	Filter    map[string]any `json:"filter,omitempty"`

	// Scheduled form.
	Schedule string `json:"schedule,omitempty"`
}

// HasDirect reports whether any direct-form field is set.
func (t Trigger) HasDirect() bool {
	return t.EntityType != "" || t.Content != "" || t.Name != "" ||
		len(t.Tags) > 0 || len(t.Metadata) > 0
}

// HasLegacy reports whether any legacy-form field is set.
func (t Trigger) HasLegacy() bool {
	return t.EventType != "" || len(t.Filter) > 0
}

// ActionType enumerates the closed set of side-effecting action kinds.
type ActionType string

const (
	ActionCreateTask   ActionType = "create_task"
	ActionUpdateEntity ActionType = "update_entity"
	ActionSaveRelation ActionType = "save_relation"
	ActionNotify       ActionType = "notify"
	ActionRunShell     ActionType = "run_shell"
	ActionHTTPRequest  ActionType = "http_request"
)

// ActionTypes lists every valid action type, in taxonomy order.
func ActionTypes() []ActionType {
	return []ActionType{
		ActionCreateTask, ActionUpdateEntity, ActionSaveRelation,
		ActionNotify, ActionRunShell, ActionHTTPRequest,
	}
}

// Action is one step a workflow performs when triggered.
type Action struct {
	Type      ActionType     `json:"type"`
	Params    map[string]any `json:"params,omitempty"`
	Condition string         `json:"condition,omitempty"` // gating expression, evaluated before execution
}
