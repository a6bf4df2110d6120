// Package scoring turns an execution context into a weight vector and picks
// the best-suited variant for it.
package scoring

import (
	"math"

	"github.com/rendis/adaptflow/internal/tuning"
	"github.com/rendis/adaptflow/pkg/schema"
)

// Scorer maps an ExecutionContext onto a Weights vector.
type Scorer struct {
	defaults tuning.ContextDefaults
}

// NewScorer returns a scorer that falls back to defaults for absent fields,
// or rejects them when defaults.Strict is set.
func NewScorer(defaults tuning.ContextDefaults) *Scorer {
	return &Scorer{defaults: defaults}
}

// Weights validates ctx and returns its weight vector. A present field must
// lie in [0,1]; the first offending field is named in the INVALID_CONTEXT error.
func (s *Scorer) Weights(ctx schema.ExecutionContext) (schema.Weights, error) {
	var w schema.Weights
	fields := []struct {
		name     string
		value    *float64
		fallback float64
		dst      *float64
	}{
		{schema.FieldUrgency, ctx.Urgency, s.defaults.Urgency, &w.TimePressure},
		{schema.FieldResources, ctx.Resources, s.defaults.Resources, &w.ResourceAvailability},
		{schema.FieldUserSkillLevel, ctx.UserSkillLevel, s.defaults.UserSkillLevel, &w.UserExpertise},
		{schema.FieldCurrentLoad, ctx.CurrentLoad, s.defaults.CurrentLoad, &w.SystemLoad},
		{schema.FieldErrorTolerance, ctx.ErrorTolerance, s.defaults.ErrorTolerance, &w.ErrorTolerance},
	}

	for _, f := range fields {
		if f.value == nil {
			if s.defaults.Strict {
				return schema.Weights{}, schema.NewError(schema.ErrCodeInvalidContext, "required field missing").
					WithField(f.name)
			}
			*f.dst = f.fallback
			continue
		}
		v := *f.value
		if math.IsNaN(v) || v < 0 || v > 1 {
			return schema.Weights{}, schema.NewErrorf(schema.ErrCodeInvalidContext, "value %v outside [0,1]", v).
				WithField(f.name).
				WithDetails(map[string]any{"value": v})
		}
		*f.dst = v
	}
	return w, nil
}
