package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rendis/adaptflow/internal/diagram"
	"github.com/rendis/adaptflow/internal/logging"
	"github.com/rendis/adaptflow/internal/tuning"
	"github.com/rendis/adaptflow/pkg/schema"
)

var (
	simScenario string
	simCollapse bool
	simFormat   string
	simContext  contextFlags
)

// contextFlags are the runtime context values accepted on the command line.
type contextFlags struct {
	urgency        float64
	resources      float64
	userSkillLevel float64
	currentLoad    float64
	errorTolerance float64
}

var simulateCmd = &cobra.Command{
	Use:   "simulate [description]",
	Short: "Create a workflow from a description and print a simulation environment for it",
	Long: "simulate runs a one-off in-memory pass: it creates a workflow, optionally collapses it " +
		"with the given context, and prints the simulation environment as JSON.",
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simScenario, "scenario", tuning.ScenarioStandard, "scenario tag")
	f.BoolVar(&simCollapse, "collapse", false, "collapse the workflow before simulating")
	f.StringVar(&simFormat, "format", "json", "output format: json, ascii, mermaid")
	f.Float64Var(&simContext.urgency, schema.FieldUrgency, 0, "urgency in 0..1")
	f.Float64Var(&simContext.resources, schema.FieldResources, 0, "available resources in 0..1")
	f.Float64Var(&simContext.userSkillLevel, schema.FieldUserSkillLevel, 0, "user skill level in 0..1")
	f.Float64Var(&simContext.currentLoad, schema.FieldCurrentLoad, 0, "current system load in 0..1")
	f.Float64Var(&simContext.errorTolerance, schema.FieldErrorTolerance, 0, "error tolerance in 0..1")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	// One-off runs never touch the database.
	cfg.Persist = false
	logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel)

	rt, err := buildRuntime(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	id, err := rt.engine.CreateWorkflow(ctx, args[0], nil)
	if err != nil {
		return err
	}
	if simCollapse {
		if _, err := rt.engine.Collapse(ctx, id, changedContext(cmd)); err != nil {
			return err
		}
	}
	env, err := rt.engine.BuildSimulation(ctx, id, simScenario)
	if err != nil {
		return err
	}
	return writeSimulation(cmd.OutOrStdout(), env, simFormat)
}

// changedContext returns only the context fields set on the command line so
// the rest take their documented fallbacks.
func changedContext(cmd *cobra.Command) schema.ExecutionContext {
	var c schema.ExecutionContext
	flags := cmd.Flags()
	for name, pair := range map[string]struct {
		dst **float64
		v   float64
	}{
		schema.FieldUrgency:        {&c.Urgency, simContext.urgency},
		schema.FieldResources:      {&c.Resources, simContext.resources},
		schema.FieldUserSkillLevel: {&c.UserSkillLevel, simContext.userSkillLevel},
		schema.FieldCurrentLoad:    {&c.CurrentLoad, simContext.currentLoad},
		schema.FieldErrorTolerance: {&c.ErrorTolerance, simContext.errorTolerance},
	} {
		if flags.Changed(name) {
			*pair.dst = schema.Float(pair.v)
		}
	}
	return c
}

func writeSimulation(w io.Writer, env schema.SimulationEnvironment, format string) error {
	var err error
	switch format {
	case "json":
		err = writeJSON(w, env)
	case "ascii":
		_, err = io.WriteString(w, diagram.RenderASCII(diagram.FromSimulation(env)))
	case "mermaid":
		_, err = io.WriteString(w, diagram.RenderMermaid(diagram.FromSimulation(env)))
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return fmt.Errorf("write simulation: %w", err)
	}
	return nil
}
