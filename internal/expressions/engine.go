package expressions

import "context"

// Engine evaluates a rule or query expression against a data map.
// Three implementations: Expr (variant alignment rules), CEL (fitness
// mutation tiers), GoJQ (pattern projections).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Checker compiles an expression without evaluating it. Tuning tables use it
// to reject malformed rules at load time.
type Checker interface {
	Check(expression string) error
}
