package schema

import "time"

// ExecutionOutcome is reported once per execution by the external executor.
// It is never mutated after it is appended to a workflow's history.
type ExecutionOutcome struct {
	Duration           time.Duration `json:"duration"`
	Success            bool          `json:"success"`
	UserSatisfaction   float64       `json:"user_satisfaction"`
	ResourceEfficiency float64       `json:"resource_efficiency"`
	ErrorCount         int           `json:"error_count"`
	AISuggestions      []string      `json:"ai_suggestions,omitempty"`
	RecordedAt         time.Time     `json:"recorded_at"`
}

// Clone returns a deep copy of the outcome.
func (o ExecutionOutcome) Clone() ExecutionOutcome {
	out := o
	out.AISuggestions = cloneStrings(o.AISuggestions)
	return out
}

// FitnessRecord is the rolling quality metric for a workflow.
type FitnessRecord struct {
	WorkflowID          string    `json:"workflow_id"`
	FitnessScore        float64   `json:"fitness_score"`
	MutationSuggestions []string  `json:"mutation_suggestions"`
	WindowSize          int       `json:"window_size"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (f FitnessRecord) Clone() FitnessRecord {
	out := f
	out.MutationSuggestions = cloneStrings(f.MutationSuggestions)
	return out
}
