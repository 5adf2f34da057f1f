// Package mcp exposes the automation engine as MCP tools over stdio.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/emilylaguna/memoryd/internal/ledger"
	"github.com/emilylaguna/memoryd/internal/registry"
	"github.com/emilylaguna/memoryd/internal/suggest"
	"github.com/emilylaguna/memoryd/pkg/schema"
)

// EventSink accepts change events for dispatch. Satisfied by the
// dispatcher; manual triggers go through it.
type EventSink interface {
	Dispatch(event schema.ChangeEvent)
}

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Registry    *registry.Registry
	Ledger      *ledger.RunLedger
	Events      EventSink
	Suggestions *suggest.Engine
	Logger      *slog.Logger
}

// Server wraps an MCP server with the automation tool handlers.
type Server struct {
	registry    *registry.Registry
	ledger      *ledger.RunLedger
	events      EventSink
	suggestions *suggest.Engine
	logger      *slog.Logger
	mcpServer   *server.MCPServer
}

// NewServer creates a Server with all tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Server{
		registry:    deps.Registry,
		ledger:      deps.Ledger,
		events:      deps.Events,
		suggestions: deps.Suggestions,
		logger:      logger,
	}

	mcpSrv := server.NewMCPServer(
		"memoryd",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("memoryd automates a personal memory store with declarative workflows. Use workflow.register to install automations, workflow.trigger to fire one manually, runs.list to inspect the execution ledger, and suggestions.generate to mine your activity for new automations."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled
// or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom
// transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: registerTool(), Handler: s.handleRegister},
		{Tool: listWorkflowsTool(), Handler: s.handleListWorkflows},
		{Tool: getWorkflowTool(), Handler: s.handleGetWorkflow},
		{Tool: deleteWorkflowTool(), Handler: s.handleDeleteWorkflow},
		{Tool: pauseWorkflowTool(), Handler: s.handlePauseWorkflow},
		{Tool: resumeWorkflowTool(), Handler: s.handleResumeWorkflow},
		{Tool: triggerWorkflowTool(), Handler: s.handleTriggerWorkflow},
		{Tool: listRunsTool(), Handler: s.handleListRuns},
		{Tool: getRunTool(), Handler: s.handleGetRun},
		{Tool: generateSuggestionsTool(), Handler: s.handleGenerateSuggestions},
		{Tool: approveSuggestionTool(), Handler: s.handleApproveSuggestion},
		{Tool: dismissSuggestionTool(), Handler: s.handleDismissSuggestion},
		{Tool: suggestionMetricsTool(), Handler: s.handleSuggestionMetrics},
	}
}

// --- Tool definitions ---

func registerTool() mcp.Tool {
	return mcp.NewTool("workflow.register",
		mcp.WithDescription("Register a workflow: a trigger plus an ordered list of actions. Returns the stored definition with its assigned ID."),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition: name, trigger, actions, optional description/enabled")),
	)
}

func listWorkflowsTool() mcp.Tool {
	return mcp.NewTool("workflow.list",
		mcp.WithDescription("List registered workflows"),
		mcp.WithBoolean("enabled_only", mcp.Description("Only return enabled workflows")),
	)
}

func getWorkflowTool() mcp.Tool {
	return mcp.NewTool("workflow.get",
		mcp.WithDescription("Get one workflow definition by ID"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow ID")),
	)
}

func deleteWorkflowTool() mcp.Tool {
	return mcp.NewTool("workflow.delete",
		mcp.WithDescription("Delete a workflow. Deleting an unknown ID is a no-op."),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow ID")),
	)
}

func pauseWorkflowTool() mcp.Tool {
	return mcp.NewTool("workflow.pause",
		mcp.WithDescription("Disable a workflow without deleting it. Paused workflows never match events."),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow ID")),
	)
}

func resumeWorkflowTool() mcp.Tool {
	return mcp.NewTool("workflow.resume",
		mcp.WithDescription("Re-enable a paused workflow. Idempotent on enabled workflows."),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow ID")),
	)
}

func triggerWorkflowTool() mcp.Tool {
	return mcp.NewTool("workflow.trigger",
		mcp.WithDescription("Fire a workflow manually, bypassing trigger matching. The payload is available to templates as payload.*"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithObject("payload", mcp.Description("Caller-supplied context for template resolution")),
	)
}

func listRunsTool() mcp.Tool {
	return mcp.NewTool("runs.list",
		mcp.WithDescription("List workflow runs from the execution ledger, newest first"),
		mcp.WithString("workflow_id", mcp.Description("Filter by workflow ID")),
		mcp.WithString("status", mcp.Enum("pending", "running", "succeeded", "failed"), mcp.Description("Filter by run status")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Skip this many results")),
	)
}

func getRunTool() mcp.Tool {
	return mcp.NewTool("runs.get",
		mcp.WithDescription("Get one run with its full per-action log"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run ID")),
	)
}

func generateSuggestionsTool() mcp.Tool {
	return mcp.NewTool("suggestions.generate",
		mcp.WithDescription("Mine recent memory activity for automatable patterns and return proposed workflow suggestions ranked by confidence"),
		mcp.WithString("query", mcp.Description("Filter suggestions by substring match on name or rationale")),
		mcp.WithNumber("limit", mcp.Description("Max suggestions to return")),
	)
}

func approveSuggestionTool() mcp.Tool {
	return mcp.NewTool("suggestions.approve",
		mcp.WithDescription("Approve a proposed suggestion, registering its workflow. Fails on already approved or dismissed suggestions."),
		mcp.WithString("suggestion_id", mcp.Required(), mcp.Description("Suggestion ID")),
	)
}

func dismissSuggestionTool() mcp.Tool {
	return mcp.NewTool("suggestions.dismiss",
		mcp.WithDescription("Dismiss a proposed suggestion so it is not offered again"),
		mcp.WithString("suggestion_id", mcp.Required(), mcp.Description("Suggestion ID")),
	)
}

func suggestionMetricsTool() mcp.Tool {
	return mcp.NewTool("suggestions.metrics",
		mcp.WithDescription("Summarize the suggestion corpus: counts by status and pattern type"),
	)
}
