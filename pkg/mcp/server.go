package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/adaptflow/internal/expressions"
	"github.com/rendis/adaptflow/internal/store"
	"github.com/rendis/adaptflow/pkg/schema"
)

// Service is the engine surface the tools call. Satisfied by *engine.Engine.
type Service interface {
	CreateWorkflow(ctx context.Context, description string, userContext map[string]any) (string, error)
	Collapse(ctx context.Context, id string, execCtx schema.ExecutionContext) (schema.ExecutionPlan, error)
	RecordOutcome(ctx context.Context, id string, outcome schema.ExecutionOutcome) (schema.FitnessRecord, error)
	BuildSimulation(ctx context.Context, id, scenario string) (schema.SimulationEnvironment, error)
	GetSimulation(ctx context.Context, simID string) (schema.SimulationEnvironment, error)
	ListSimulations(ctx context.Context, id string) ([]schema.SimulationEnvironment, error)
	GetPatterns(ctx context.Context, id string) (schema.PatternSet, error)
	GetFitness(ctx context.Context, id string) (schema.FitnessRecord, error)
	GetWorkflow(ctx context.Context, id string) (*schema.WorkflowRecord, error)
	ListWorkflows(ctx context.Context) []*schema.WorkflowRecord
	Events(ctx context.Context, id string, since int64) ([]*store.Event, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Service Service
	Version string
	Logger  *slog.Logger
}

// Server wraps an MCP server with adaptflow tool handlers.
type Server struct {
	service   Service
	jq        *expressions.GoJQEngine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with every tool registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		service: deps.Service,
		jq:      expressions.NewGoJQEngine(),
		logger:  logger,
	}

	mcpSrv := server.NewMCPServer(
		"adaptflow",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("adaptflow picks the execution strategy best suited to the current context and learns from outcomes. "+
			"Use adaptflow.create to describe work, adaptflow.collapse to select a variant and get its plan, "+
			"adaptflow.record_outcome after each execution, adaptflow.simulate to build a test environment, "+
			"adaptflow.patterns for learned patterns, adaptflow.query to inspect workflows, fitness and events, "+
			"adaptflow.diagram to draw a plan, and adaptflow.delete to discard a workflow."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: createTool(), Handler: s.handleCreate},
		{Tool: collapseTool(), Handler: s.handleCollapse},
		{Tool: recordOutcomeTool(), Handler: s.handleRecordOutcome},
		{Tool: simulateTool(), Handler: s.handleSimulate},
		{Tool: patternsTool(), Handler: s.handlePatterns},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: deleteTool(), Handler: s.handleDelete},
	}
}

// --- Tool definitions ---

func createTool() mcp.Tool {
	return mcp.NewTool("adaptflow.create",
		mcp.WithDescription("Create a workflow from a free-text description of the work"),
		mcp.WithString("description", mcp.Required(), mcp.Description("What the workflow should accomplish")),
		mcp.WithObject("user_context", mcp.Description("Arbitrary caller context retained on the workflow")),
	)
}

func collapseTool() mcp.Tool {
	return mcp.NewTool("adaptflow.collapse",
		mcp.WithDescription("Select the variant best suited to the runtime context and return its execution plan"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to collapse")),
		mcp.WithObject("context", mcp.Description(
			"Runtime context: urgency, resources, user_skill_level, current_load, error_tolerance (each 0..1, optional)")),
	)
}

func recordOutcomeTool() mcp.Tool {
	return mcp.NewTool("adaptflow.record_outcome",
		mcp.WithDescription("Report the outcome of an execution and get the updated fitness"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the executed workflow")),
		mcp.WithBoolean("success", mcp.Required(), mcp.Description("Whether the execution succeeded")),
		mcp.WithNumber("user_satisfaction", mcp.Required(), mcp.Description("Satisfaction in 0..1")),
		mcp.WithNumber("resource_efficiency", mcp.Required(), mcp.Description("Efficiency in 0..1")),
		mcp.WithNumber("error_count", mcp.Description("Errors observed (default 0)")),
		mcp.WithNumber("duration_ms", mcp.Description("Execution time in milliseconds")),
		mcp.WithArray("ai_suggestions", mcp.WithStringItems(), mcp.Description("Free-form improvement notes")),
	)
}

func simulateTool() mcp.Tool {
	return mcp.NewTool("adaptflow.simulate",
		mcp.WithDescription("Build a simulation environment for a workflow, or fetch one by sim_id"),
		mcp.WithString("workflow_id", mcp.Description("Workflow to simulate")),
		mcp.WithString("scenario", mcp.Description("Scenario tag (default: standard)")),
		mcp.WithString("sim_id", mcp.Description("Fetch a previously built environment instead of building one")),
	)
}

func patternsTool() mcp.Tool {
	return mcp.NewTool("adaptflow.patterns",
		mcp.WithDescription("Get the learned temporal, trigger and user patterns of a workflow"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow")),
		mcp.WithString("query", mcp.Description("Optional jq expression applied to the pattern set, e.g. .trigger.candidates[].tag")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("adaptflow.query",
		mcp.WithDescription("Query workflows, a single workflow, fitness, events, or simulations"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("workflows", "workflow", "fitness", "events", "simulations"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (workflow_id, state, since, limit)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("adaptflow.diagram",
		mcp.WithDescription("Draw the execution plan of a collapsed workflow or of a simulation environment"),
		mcp.WithString("workflow_id", mcp.Description("Collapsed workflow whose plan to draw")),
		mcp.WithString("sim_id", mcp.Description("Simulation environment whose plan to draw instead")),
		mcp.WithString("format",
			mcp.Enum("mermaid", "ascii", "png", "svg"),
			mcp.Description("Output format (default: mermaid)"),
		),
	)
}

func deleteTool() mcp.Tool {
	return mcp.NewTool("adaptflow.delete",
		mcp.WithDescription("Delete a workflow and stop its background learning"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to delete")),
	)
}
