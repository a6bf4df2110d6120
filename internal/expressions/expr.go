package expressions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rendis/adaptflow/pkg/schema"
)

// ExprEngine evaluates variant alignment rules with expr-lang/expr. Rules see
// two top-level variables, variant and intent, built by AlignmentEnv.
// Compiled programs are cached and shared across goroutines.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine creates a new Expr expression engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{
		cache: make(map[string]*vm.Program),
	}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// AlignmentEnv flattens a variant and an intent into the rule environment.
// Enum values are plain strings so rules can compare against literals.
func AlignmentEnv(v schema.Variant, intent schema.IntentRecord) map[string]any {
	chars := make([]any, len(v.Characteristics))
	for i, c := range v.Characteristics {
		chars[i] = string(c)
	}
	emotional := make(map[string]any, len(intent.EmotionalContext))
	for k, val := range intent.EmotionalContext {
		emotional[k] = val
	}
	return map[string]any{
		"variant": map[string]any{
			"type":            string(v.Type),
			"characteristics": chars,
			"trade_offs": map[string]any{
				"speed":          v.TradeOffs.Speed,
				"reliability":    v.TradeOffs.Reliability,
				"resource_usage": v.TradeOffs.ResourceUsage,
			},
		},
		"intent": map[string]any{
			"primary_goal":               string(intent.PrimaryGoal),
			"emotional_context":          emotional,
			"hidden_requirements":        toAnySlice(intent.HiddenRequirements),
			"optimization_opportunities": toAnySlice(intent.OptimizationOpportunities),
			"pain_points":                toAnySlice(intent.PainPoints),
		},
	}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// Evaluate compiles (or retrieves from cache) an Expr expression and evaluates it
// against the provided data. The data map is injected as the expression environment,
// making all keys available as top-level variables.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}

	prg, err := e.getOrCompile(expression, data)
	if err != nil {
		return nil, err
	}

	env := data
	if env == nil {
		env = map[string]any{}
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out, nil
}

// Match evaluates a boolean alignment rule for the given variant and intent.
func (e *ExprEngine) Match(ctx context.Context, expression string, v schema.Variant, intent schema.IntentRecord) (bool, error) {
	out, err := e.Evaluate(ctx, expression, AlignmentEnv(v, intent))
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"alignment rule %q returned %T, want bool", expression, out).
			WithDetails(map[string]any{"expression": expression})
	}
	return b, nil
}

// Check compiles expression against an empty alignment environment.
func (e *ExprEngine) Check(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}
	_, err := e.getOrCompile(expression, AlignmentEnv(schema.Variant{}, schema.IntentRecord{}))
	return err
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
// The data map is used to infer the environment type for compilation.
func (e *ExprEngine) getOrCompile(expression string, data map[string]any) (*vm.Program, error) {
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

	env := data
	if env == nil {
		env = map[string]any{}
	}

	prg, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}

var (
	_ Engine  = (*ExprEngine)(nil)
	_ Checker = (*ExprEngine)(nil)
)
