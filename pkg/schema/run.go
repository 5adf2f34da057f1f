package schema

import "time"

// RunStatus tracks a workflow run through its lifecycle.
// Transitions: pending -> running -> succeeded | failed.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// ActionStatus is the per-action outcome recorded in a run's log.
type ActionStatus string

const (
	ActionStatusSucceeded ActionStatus = "succeeded"
	ActionStatusFailed    ActionStatus = "failed"
	ActionStatusSkipped   ActionStatus = "skipped"
)

// ActionLog records the outcome of one action within a run.
type ActionLog struct {
	Index          int            `json:"index"`
	Type           ActionType     `json:"type"`
	Status         ActionStatus   `json:"status"`
	ResolvedParams map[string]any `json:"resolvedParams,omitempty"`
	Output         map[string]any `json:"output,omitempty"`
	Error          string         `json:"error,omitempty"`
	DurationMs     int64          `json:"durationMs,omitempty"`
}

// WorkflowRun is one execution instance of a workflow in response to an
// event. Created pending before any action executes so every scheduled
// run is auditable even if the process dies mid-flight; callers should
// treat non-terminal runs older than a grace period as failed/unknown.
type WorkflowRun struct {
	ID         string      `json:"runId"`
	WorkflowID string      `json:"workflowId"`
	Event      ChangeEvent `json:"triggeringEvent"`
	Status     RunStatus   `json:"status"`
	StartedAt  *time.Time  `json:"startedAt,omitempty"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
	ActionLogs []ActionLog `json:"actionLogs,omitempty"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}
