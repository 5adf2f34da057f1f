// Package store persists workflow definitions, the run ledger,
// suggestions, and scheduler state in an embedded libSQL database.
package store

import (
	"context"
	"time"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

// RunFilter narrows ListRuns.
type RunFilter struct {
	WorkflowID string
	Status     *schema.RunStatus
	Since      *time.Time
	Limit      int
	Offset     int
}

// RunUpdate is a partial update applied to a run record. Nil fields are
// left untouched.
type RunUpdate struct {
	Status     *schema.RunStatus
	StartedAt  *time.Time
	FinishedAt *time.Time
	ActionLogs []schema.ActionLog
	Error      *string
}

// SuggestionFilter narrows ListSuggestions.
type SuggestionFilter struct {
	Status      schema.SuggestionStatus
	PatternType schema.PatternType
	Limit       int
}

// Store is the persistence boundary. One implementation backed by
// libSQL; tests use the in-memory mock.
type Store interface {
	// Workflows.
	PutWorkflow(ctx context.Context, def *schema.WorkflowDefinition) error
	GetWorkflow(ctx context.Context, id string) (*schema.WorkflowDefinition, error)
	ListWorkflows(ctx context.Context) ([]*schema.WorkflowDefinition, error)
	SetWorkflowEnabled(ctx context.Context, id string, enabled bool) error
	DeleteWorkflow(ctx context.Context, id string) error

	// Run ledger.
	CreateRun(ctx context.Context, run *schema.WorkflowRun) error
	UpdateRun(ctx context.Context, id string, update RunUpdate) error
	GetRun(ctx context.Context, id string) (*schema.WorkflowRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*schema.WorkflowRun, error)

	// Suggestions.
	PutSuggestion(ctx context.Context, s *schema.WorkflowSuggestion) error
	GetSuggestion(ctx context.Context, id string) (*schema.WorkflowSuggestion, error)
	ListSuggestions(ctx context.Context, filter SuggestionFilter) ([]*schema.WorkflowSuggestion, error)
	UpdateSuggestionStatus(ctx context.Context, id string, status schema.SuggestionStatus) error

	// Scheduler state.
	GetLastFired(ctx context.Context, workflowID string) (*time.Time, error)
	SetLastFired(ctx context.Context, workflowID string, at time.Time) error

	Migrate(ctx context.Context) error
	Close() error
}
