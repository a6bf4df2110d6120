package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/adaptflow/internal/diagram"
	"github.com/rendis/adaptflow/internal/store"
	"github.com/rendis/adaptflow/pkg/schema"
)

// handleCreate extracts the intent of a description and stores a new workflow.
func (s *Server) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description, err := req.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError("description is required"), nil
	}
	userCtx := mcp.ParseStringMap(req, "user_context", nil)

	id, createErr := s.service.CreateWorkflow(ctx, description, userCtx)
	if createErr != nil {
		return toolError("create failed", createErr), nil
	}
	rec, getErr := s.service.GetWorkflow(ctx, id)
	if getErr != nil {
		return toolError("workflow lookup failed", getErr), nil
	}
	return marshalResult(rec)
}

// handleCollapse selects a variant for the given runtime context.
func (s *Server) handleCollapse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	execCtx, parseErr := parseContext(mcp.ParseStringMap(req, "context", nil))
	if parseErr != nil {
		return toolError("invalid context", parseErr), nil
	}

	plan, collapseErr := s.service.Collapse(ctx, workflowID, execCtx)
	if collapseErr != nil {
		return toolError("collapse failed", collapseErr), nil
	}
	return marshalResult(plan)
}

// handleRecordOutcome reports one execution outcome.
func (s *Server) handleRecordOutcome(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	outcome, parseErr := parseOutcome(req.GetArguments())
	if parseErr != nil {
		return toolError("invalid outcome", parseErr), nil
	}

	fitness, recErr := s.service.RecordOutcome(ctx, workflowID, outcome)
	if recErr != nil {
		return toolError("record outcome failed", recErr), nil
	}
	return marshalResult(fitness)
}

// handleSimulate builds a simulation environment, or returns a retained one
// when sim_id is given.
func (s *Server) handleSimulate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if simID := req.GetString("sim_id", ""); simID != "" {
		env, err := s.service.GetSimulation(ctx, simID)
		if err != nil {
			return toolError("simulation lookup failed", err), nil
		}
		return marshalResult(env)
	}

	workflowID := req.GetString("workflow_id", "")
	if workflowID == "" {
		return mcp.NewToolResultError("workflow_id or sim_id is required"), nil
	}
	env, err := s.service.BuildSimulation(ctx, workflowID, req.GetString("scenario", ""))
	if err != nil {
		return toolError("simulation failed", err), nil
	}
	return marshalResult(env)
}

// handlePatterns returns the learned patterns, optionally projected through jq.
func (s *Server) handlePatterns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	set, getErr := s.service.GetPatterns(ctx, workflowID)
	if getErr != nil {
		return toolError("patterns lookup failed", getErr), nil
	}

	query := req.GetString("query", "")
	if query == "" {
		return marshalResult(set)
	}
	projected, jqErr := s.jq.Project(ctx, query, set)
	if jqErr != nil {
		return toolError("query failed", jqErr), nil
	}
	return marshalResult(map[string]any{
		"workflow_id": workflowID,
		"query":       query,
		"result":      projected,
	})
}

// handleQuery lists workflows or reads per-workflow state.
func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	filter := mcp.ParseStringMap(req, "filter", nil)

	if resource == "workflows" {
		return s.queryWorkflows(ctx, filter)
	}

	workflowID, _ := filter["workflow_id"].(string)
	if workflowID == "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s query requires 'workflow_id' in filter", resource)), nil
	}

	switch resource {
	case "workflow":
		rec, getErr := s.service.GetWorkflow(ctx, workflowID)
		if getErr != nil {
			return toolError("query failed", getErr), nil
		}
		return marshalResult(rec)
	case "fitness":
		fitness, getErr := s.service.GetFitness(ctx, workflowID)
		if getErr != nil {
			return toolError("query failed", getErr), nil
		}
		return marshalResult(fitness)
	case "events":
		return s.queryEvents(ctx, workflowID, filter)
	case "simulations":
		sims, listErr := s.service.ListSimulations(ctx, workflowID)
		if listErr != nil {
			return toolError("query failed", listErr), nil
		}
		return marshalResult(map[string]any{"simulations": sims})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// handleDiagram renders the plan of a collapsed workflow or a simulation.
func (s *Server) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var model *diagram.DiagramModel
	if simID := req.GetString("sim_id", ""); simID != "" {
		env, err := s.service.GetSimulation(ctx, simID)
		if err != nil {
			return toolError("simulation lookup failed", err), nil
		}
		model = diagram.FromSimulation(env)
	} else {
		workflowID := req.GetString("workflow_id", "")
		if workflowID == "" {
			return mcp.NewToolResultError("workflow_id or sim_id is required"), nil
		}
		rec, err := s.service.GetWorkflow(ctx, workflowID)
		if err != nil {
			return toolError("workflow lookup failed", err), nil
		}
		if rec.ExecutionPlan == nil {
			return toolError("diagram failed", schema.NewError(schema.ErrCodeNotFound, "workflow has not been collapsed").
				WithWorkflow(workflowID)), nil
		}
		model = diagram.FromPlan(*rec.ExecutionPlan)
	}

	switch format := req.GetString("format", "mermaid"); format {
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "svg":
		img, err := diagram.RenderImage(ctx, model, diagram.FormatSVG)
		if err != nil {
			return toolError("render failed", err), nil
		}
		return mcp.NewToolResultText(string(img)), nil
	case "png":
		img, err := diagram.RenderImage(ctx, model, diagram.FormatPNG)
		if err != nil {
			return toolError("render failed", err), nil
		}
		return mcp.NewToolResultImage(model.Title, base64.StdEncoding.EncodeToString(img), diagram.FormatPNG.MIMEType()), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown diagram format: %s", format)), nil
	}
}

// handleDelete removes a workflow.
func (s *Server) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	if delErr := s.service.DeleteWorkflow(ctx, workflowID); delErr != nil {
		return toolError("delete failed", delErr), nil
	}
	return marshalResult(map[string]any{"ok": true, "workflow_id": workflowID})
}

// --- Query helpers ---

func (s *Server) queryWorkflows(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	limit := extractInt(filter, "limit", 50)
	state, _ := filter["state"].(string)
	var since *time.Time
	if raw, ok := filter["since"].(string); ok && raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			since = &t
		}
	}

	result := make([]*schema.WorkflowRecord, 0)
	for _, rec := range s.service.ListWorkflows(ctx) {
		if state != "" && string(rec.State) != state {
			continue
		}
		if since != nil && rec.CreatedAt.Before(*since) {
			continue
		}
		result = append(result, rec)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return marshalResult(map[string]any{"workflows": result})
}

func (s *Server) queryEvents(ctx context.Context, workflowID string, filter map[string]any) (*mcp.CallToolResult, error) {
	since := int64(extractInt(filter, "since", 0))
	eventType, _ := filter["event_type"].(string)
	limit := extractInt(filter, "limit", 100)

	events, err := s.service.Events(ctx, workflowID, since)
	if err != nil {
		return toolError("query failed", err), nil
	}
	result := make([]*store.Event, 0, len(events))
	for _, ev := range events {
		if eventType != "" && ev.Type != eventType {
			continue
		}
		result = append(result, ev)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return marshalResult(map[string]any{"events": result})
}

// --- Argument parsing ---

// parseContext reads the optional runtime context fields. Unknown keys are
// kept in Extra; range checks are left to the scorer so errors name the field
// the same way for every caller.
func parseContext(raw map[string]any) (schema.ExecutionContext, error) {
	var c schema.ExecutionContext
	fields := map[string]**float64{
		schema.FieldUrgency:        &c.Urgency,
		schema.FieldResources:      &c.Resources,
		schema.FieldUserSkillLevel: &c.UserSkillLevel,
		schema.FieldCurrentLoad:    &c.CurrentLoad,
		schema.FieldErrorTolerance: &c.ErrorTolerance,
	}
	for key, v := range raw {
		dst, known := fields[key]
		if !known {
			if c.Extra == nil {
				c.Extra = make(map[string]any)
			}
			c.Extra[key] = v
			continue
		}
		f, err := toFloat(v)
		if err != nil {
			return schema.ExecutionContext{}, schema.NewError(schema.ErrCodeInvalidContext, err.Error()).WithField(key)
		}
		*dst = schema.Float(f)
	}
	return c, nil
}

func parseOutcome(args map[string]any) (schema.ExecutionOutcome, error) {
	var o schema.ExecutionOutcome

	success, ok := args["success"].(bool)
	if !ok {
		return o, schema.NewError(schema.ErrCodeValidation, "must be a boolean").WithField("success")
	}
	o.Success = success

	for key, dst := range map[string]*float64{
		"user_satisfaction":   &o.UserSatisfaction,
		"resource_efficiency": &o.ResourceEfficiency,
	} {
		v, present := args[key]
		if !present {
			return o, schema.NewError(schema.ErrCodeValidation, "is required").WithField(key)
		}
		n, err := toFloat(v)
		if err != nil {
			return o, schema.NewError(schema.ErrCodeValidation, err.Error()).WithField(key)
		}
		*dst = n
	}

	if v, present := args["error_count"]; present {
		n, err := toFloat(v)
		if err != nil {
			return o, schema.NewError(schema.ErrCodeValidation, err.Error()).WithField("error_count")
		}
		if math.IsNaN(n) || n < 0 || n > math.MaxInt32 || n != math.Trunc(n) {
			return o, schema.NewError(schema.ErrCodeValidation, "must be a non-negative integer").WithField("error_count")
		}
		o.ErrorCount = int(n)
	}
	if v, present := args["duration_ms"]; present {
		n, err := toFloat(v)
		if err != nil {
			return o, schema.NewError(schema.ErrCodeValidation, err.Error()).WithField("duration_ms")
		}
		o.Duration = time.Duration(n * float64(time.Millisecond))
	}
	if items, ok := args["ai_suggestions"].([]any); ok {
		for _, item := range items {
			if str, ok := item.(string); ok {
				o.AISuggestions = append(o.AISuggestions, str)
			}
		}
	}
	return o, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// toolError renders err as a tool error result. FlowErrors keep their code
// prefix so callers can branch on it.
func toolError(prefix string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
