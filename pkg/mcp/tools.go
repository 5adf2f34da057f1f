package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/emilylaguna/memoryd/internal/store"
	"github.com/emilylaguna/memoryd/pkg/schema"
)

const defaultRunListLimit = 50

// handleRegister validates and installs a workflow definition.
func (s *Server) handleRegister(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defRaw := mcp.ParseStringMap(req, "definition", nil)
	if defRaw == nil {
		return mcp.NewToolResultError("definition is required"), nil
	}

	// Round-trip through JSON so the definition goes through the same
	// decoding path (and defaults) as one read from disk.
	raw, err := json.Marshal(defRaw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err)), nil
	}
	def := &schema.WorkflowDefinition{}
	if err := json.Unmarshal(raw, def); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err)), nil
	}

	registered, err := s.registry.Register(ctx, def)
	if err != nil {
		return errorResult(err), nil
	}
	return marshalResult(registered)
}

// handleListWorkflows lists registered workflows.
func (s *Server) handleListWorkflows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	enabledOnly := req.GetBool("enabled_only", false)
	defs := s.registry.List(enabledOnly)
	return marshalResult(map[string]any{
		"workflows": defs,
		"count":     len(defs),
	})
}

// handleGetWorkflow returns one workflow definition.
func (s *Server) handleGetWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	def, err := s.registry.Get(workflowID)
	if err != nil {
		return errorResult(err), nil
	}
	return marshalResult(def)
}

// handleDeleteWorkflow removes a workflow; unknown IDs are a no-op.
func (s *Server) handleDeleteWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	if err := s.registry.Delete(ctx, workflowID); err != nil {
		return errorResult(err), nil
	}
	return marshalResult(map[string]any{"ok": true, "workflow_id": workflowID})
}

// handlePauseWorkflow disables a workflow.
func (s *Server) handlePauseWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.setEnabled(ctx, req, false)
}

// handleResumeWorkflow re-enables a workflow.
func (s *Server) handleResumeWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.setEnabled(ctx, req, true)
}

func (s *Server) setEnabled(ctx context.Context, req mcp.CallToolRequest, enabled bool) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	if enabled {
		err = s.registry.Resume(ctx, workflowID)
	} else {
		err = s.registry.Pause(ctx, workflowID)
	}
	if err != nil {
		return errorResult(err), nil
	}
	return marshalResult(map[string]any{"ok": true, "workflow_id": workflowID, "enabled": enabled})
}

// handleTriggerWorkflow fires a workflow manually. The run is recorded
// even if the workflow is paused, where it fails with "workflow
// disabled".
func (s *Server) handleTriggerWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	if _, err := s.registry.Get(workflowID); err != nil {
		return errorResult(err), nil
	}

	payload := mcp.ParseStringMap(req, "payload", nil)
	event := schema.ChangeEvent{
		ID:               uuid.NewString(),
		Type:             schema.EventManual,
		Payload:          payload,
		OccurredAt:       time.Now().UTC(),
		TargetWorkflowID: workflowID,
	}
	s.events.Dispatch(event)

	return marshalResult(map[string]any{
		"ok":          true,
		"workflow_id": workflowID,
		"event_id":    event.ID,
	})
}

// handleListRuns queries the execution ledger.
func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.RunFilter{
		WorkflowID: req.GetString("workflow_id", ""),
		Limit:      req.GetInt("limit", defaultRunListLimit),
		Offset:     req.GetInt("offset", 0),
	}
	if statusStr := req.GetString("status", ""); statusStr != "" {
		status := schema.RunStatus(statusStr)
		filter.Status = &status
	}

	runs, err := s.ledger.List(ctx, filter)
	if err != nil {
		return errorResult(err), nil
	}
	return marshalResult(map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleGetRun returns one run with full action logs.
func (s *Server) handleGetRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}
	run, err := s.ledger.Get(ctx, runID)
	if err != nil {
		return errorResult(err), nil
	}
	return marshalResult(run)
}

// handleGenerateSuggestions runs the pattern miners.
func (s *Server) handleGenerateSuggestions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	limit := req.GetInt("limit", 0)

	suggestions, err := s.suggestions.Generate(ctx, query, limit)
	if err != nil {
		return errorResult(err), nil
	}
	return marshalResult(map[string]any{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

// handleApproveSuggestion promotes a suggestion into the registry.
func (s *Server) handleApproveSuggestion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	suggestionID, err := req.RequireString("suggestion_id")
	if err != nil {
		return mcp.NewToolResultError("suggestion_id is required"), nil
	}
	def, err := s.suggestions.Approve(ctx, suggestionID)
	if err != nil {
		return errorResult(err), nil
	}
	return marshalResult(map[string]any{
		"ok":            true,
		"suggestion_id": suggestionID,
		"workflow":      def,
	})
}

// handleDismissSuggestion rejects a proposed suggestion.
func (s *Server) handleDismissSuggestion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	suggestionID, err := req.RequireString("suggestion_id")
	if err != nil {
		return mcp.NewToolResultError("suggestion_id is required"), nil
	}
	if err := s.suggestions.Dismiss(ctx, suggestionID); err != nil {
		return errorResult(err), nil
	}
	return marshalResult(map[string]any{"ok": true, "suggestion_id": suggestionID})
}

// handleSuggestionMetrics summarizes the suggestion corpus.
func (s *Server) handleSuggestionMetrics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metrics, err := s.suggestions.Metrics(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return marshalResult(metrics)
}

// --- Helpers ---

// errorResult renders an error as a tool error, surfacing the machine
// code and details when it is an AutomationError.
func errorResult(err error) *mcp.CallToolResult {
	autoErr, ok := err.(*schema.AutomationError)
	if !ok {
		return mcp.NewToolResultError(err.Error())
	}
	payload := map[string]any{
		"code":    autoErr.Code,
		"message": autoErr.Message,
	}
	if len(autoErr.Details) > 0 {
		payload["details"] = autoErr.Details
	}
	data, jsonErr := json.Marshal(payload)
	if jsonErr != nil {
		return mcp.NewToolResultError(autoErr.Error())
	}
	return mcp.NewToolResultError(string(data))
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
