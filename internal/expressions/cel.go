package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/rendis/adaptflow/pkg/schema"
)

// Variables visible to mutation tier conditions.
const (
	VarFitness      = "fitness"
	VarSuccessRate  = "success_rate"
	VarSatisfaction = "satisfaction"
	VarEfficiency   = "efficiency"
	VarWindow       = "window"
)

// FitnessVars is the evaluation input for a mutation tier condition.
type FitnessVars struct {
	Fitness      float64
	SuccessRate  float64
	Satisfaction float64
	Efficiency   float64
	Window       int
}

func (v FitnessVars) activation() map[string]any {
	return map[string]any{
		VarFitness:      v.Fitness,
		VarSuccessRate:  v.SuccessRate,
		VarSatisfaction: v.Satisfaction,
		VarEfficiency:   v.Efficiency,
		VarWindow:       int64(v.Window),
	}
}

// CELEngine evaluates fitness mutation tier conditions with Google's Common
// Expression Language. Compiled programs are cached and shared across goroutines.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a CEL engine whose environment exposes:
//   - fitness, success_rate, satisfaction, efficiency: double, windowed averages
//   - window: int, number of outcomes in the window
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarFitness, cel.DoubleType),
		cel.Variable(VarSuccessRate, cel.DoubleType),
		cel.Variable(VarSatisfaction, cel.DoubleType),
		cel.Variable(VarEfficiency, cel.DoubleType),
		cel.Variable(VarWindow, cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Evaluate compiles (or retrieves from cache) a CEL expression and evaluates
// it. Missing variables default to zero.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(buildActivation(data))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out.Value(), nil
}

// Holds evaluates a boolean tier condition.
func (e *CELEngine) Holds(ctx context.Context, expression string, vars FitnessVars) (bool, error) {
	out, err := e.Evaluate(ctx, expression, vars.activation())
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"tier condition %q returned %T, want bool", expression, out).
			WithDetails(map[string]any{"expression": expression})
	}
	return b, nil
}

// Check compiles expression and requires a boolean result type.
func (e *CELEngine) Check(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}
	if _, err := e.getOrCompile(expression); err != nil {
		return err
	}
	ast, _ := e.env.Compile(expression)
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"CEL expression %q has type %s, want bool", expression, ast.OutputType())
	}
	return nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (e *CELEngine) getOrCompile(expression string) (cel.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}

// buildActivation fills missing variables with zero values so CEL never
// fails on an absent binding.
func buildActivation(data map[string]any) map[string]any {
	activation := FitnessVars{}.activation()
	for k, v := range data {
		if _, known := activation[k]; known && v != nil {
			activation[k] = v
		}
	}
	return activation
}

var (
	_ Engine  = (*CELEngine)(nil)
	_ Checker = (*CELEngine)(nil)
)
