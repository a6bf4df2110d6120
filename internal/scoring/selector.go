package scoring

import (
	"context"
	"log/slog"

	"github.com/rendis/adaptflow/internal/expressions"
	"github.com/rendis/adaptflow/internal/tuning"
	"github.com/rendis/adaptflow/pkg/schema"
)

// tieEpsilon is the score distance under which two variants count as tied.
const tieEpsilon = 1e-9

// RuleMatcher evaluates a boolean alignment rule for a variant and intent.
type RuleMatcher interface {
	Match(ctx context.Context, expression string, v schema.Variant, intent schema.IntentRecord) (bool, error)
}

// Breakdown is the per-variant scoring detail.
type Breakdown struct {
	Variant schema.VariantType `json:"variant"`
	Base    float64            `json:"base"`
	Bonus   float64            `json:"bonus"`
	Rules   []string           `json:"matched_rules,omitempty"`
	Total   float64            `json:"total"`
}

// Selector scores variants against a weight vector and picks the winner.
type Selector struct {
	rules   []tuning.AlignmentRule
	matcher RuleMatcher
	logger  *slog.Logger
}

// NewSelector creates a selector with the given alignment rules. A nil
// matcher uses a fresh ExprEngine.
func NewSelector(rules []tuning.AlignmentRule, matcher RuleMatcher, logger *slog.Logger) *Selector {
	if matcher == nil {
		matcher = expressions.NewExprEngine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		rules:   append([]tuning.AlignmentRule(nil), rules...),
		matcher: matcher,
		logger:  logger,
	}
}

// BaseScore is the unweighted fit of a variant to the weights:
// the mean of speed·time_pressure, reliability·(1−error_tolerance) and
// resource_usage·resource_availability.
func BaseScore(v schema.Variant, w schema.Weights) float64 {
	return (v.TradeOffs.Speed*w.TimePressure +
		v.TradeOffs.Reliability*(1-w.ErrorTolerance) +
		v.TradeOffs.ResourceUsage*w.ResourceAvailability) / 3
}

// Score returns a breakdown for every variant, in input order.
func (s *Selector) Score(ctx context.Context, variants []schema.Variant, w schema.Weights, intent schema.IntentRecord) ([]Breakdown, error) {
	out := make([]Breakdown, 0, len(variants))
	for _, v := range variants {
		b := Breakdown{Variant: v.Type, Base: BaseScore(v, w)}
		for _, rule := range s.rules {
			ok, err := s.matcher.Match(ctx, rule.When, v, intent)
			if err != nil {
				return nil, err
			}
			if ok {
				b.Bonus += rule.Bonus
				b.Rules = append(b.Rules, rule.Name)
			}
		}
		b.Total = b.Base + b.Bonus
		out = append(out, b)
	}
	return out, nil
}

// Select returns the highest-scoring variant. Every variant within
// tieEpsilon of the top score counts as tied, and ties go to the
// lexicographically smallest type, so the result does not depend on input
// order.
func (s *Selector) Select(ctx context.Context, variants []schema.Variant, w schema.Weights, intent schema.IntentRecord) (schema.Variant, error) {
	if len(variants) == 0 {
		return schema.Variant{}, schema.NewError(schema.ErrCodeNoVariants, "no candidate variants to select from")
	}

	scores, err := s.Score(ctx, variants, w, intent)
	if err != nil {
		return schema.Variant{}, err
	}

	top := scores[0].Total
	for _, b := range scores[1:] {
		top = max(top, b.Total)
	}
	best := -1
	for i := range variants {
		if top-scores[i].Total > tieEpsilon {
			continue
		}
		if best < 0 || variants[i].Type < variants[best].Type {
			best = i
		}
	}

	s.logger.DebugContext(ctx, "variant selected",
		slog.String("variant", string(variants[best].Type)),
		slog.Float64("score", scores[best].Total),
	)
	return variants[best].Clone(), nil
}
