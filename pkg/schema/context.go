package schema

// ExecutionContext is the runtime snapshot supplied by the caller at collapse
// time. Fields are optional; a nil field takes the scorer's documented
// fallback. A present field must lie in [0,1].
type ExecutionContext struct {
	Urgency        *float64       `json:"urgency,omitempty"`
	Resources      *float64       `json:"resources,omitempty"`
	UserSkillLevel *float64       `json:"user_skill_level,omitempty"`
	CurrentLoad    *float64       `json:"current_load,omitempty"`
	ErrorTolerance *float64       `json:"error_tolerance,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Context field names used in error reports.
const (
	FieldUrgency        = "urgency"
	FieldResources      = "resources"
	FieldUserSkillLevel = "user_skill_level"
	FieldCurrentLoad    = "current_load"
	FieldErrorTolerance = "error_tolerance"
)

// Clone returns a deep copy of the context.
func (c ExecutionContext) Clone() ExecutionContext {
	out := ExecutionContext{
		Urgency:        cloneFloat(c.Urgency),
		Resources:      cloneFloat(c.Resources),
		UserSkillLevel: cloneFloat(c.UserSkillLevel),
		CurrentLoad:    cloneFloat(c.CurrentLoad),
		ErrorTolerance: cloneFloat(c.ErrorTolerance),
	}
	if c.Extra != nil {
		out.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Weights is the normalized weight vector derived from an ExecutionContext.
type Weights struct {
	TimePressure         float64 `json:"time_pressure"`
	ResourceAvailability float64 `json:"resource_availability"`
	UserExpertise        float64 `json:"user_expertise"`
	SystemLoad           float64 `json:"system_load"`
	ErrorTolerance       float64 `json:"error_tolerance"`
}

// Float returns a pointer to v, for building ExecutionContext literals.
func Float(v float64) *float64 {
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
