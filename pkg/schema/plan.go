package schema

import "time"

// StepKind classifies a plan step.
type StepKind string

const (
	StepKindSetup         StepKind = "setup"
	StepKindValidation    StepKind = "validation"
	StepKindExecution     StepKind = "execution"
	StepKindProcessing    StepKind = "processing"
	StepKindCommunication StepKind = "communication"
)

// Step names of the base plan skeleton.
const (
	StepInitialize       = "initialize"
	StepValidateInputs   = "validate_inputs"
	StepExecuteCoreLogic = "execute_core_logic"
	StepHandleResults    = "handle_results"
	StepNotifyCompletion = "notify_completion"
)

// Parallelism is the execution-step hint added by the parallel_execution overlay.
type Parallelism struct {
	Enabled bool `json:"enabled"`
	Threads int  `json:"threads"`
}

// ValidationOverlay is added to the validation step by comprehensive_validation.
type ValidationOverlay struct {
	Depth  string   `json:"depth"`
	Layers []string `json:"layers"`
}

// Observability is added to every step by extensive_logging.
type Observability struct {
	Logging    string `json:"logging"`
	Monitoring string `json:"monitoring"`
}

// Step is one entry of an execution plan.
type Step struct {
	Name              string             `json:"step"`
	Kind              StepKind           `json:"type"`
	RequiresOversight bool               `json:"oversight_required"`
	Criticality       *float64           `json:"criticality,omitempty"`
	Parallelism       *Parallelism       `json:"parallelism,omitempty"`
	Validation        *ValidationOverlay `json:"validation,omitempty"`
	Observability     *Observability     `json:"observability,omitempty"`
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	out := s
	out.Criticality = cloneFloat(s.Criticality)
	if s.Parallelism != nil {
		p := *s.Parallelism
		out.Parallelism = &p
	}
	if s.Validation != nil {
		v := *s.Validation
		v.Layers = cloneStrings(s.Validation.Layers)
		out.Validation = &v
	}
	if s.Observability != nil {
		o := *s.Observability
		out.Observability = &o
	}
	return out
}

// ExecutionPlan is the expanded, ordered step sequence for a selected variant.
type ExecutionPlan struct {
	WorkflowID  string      `json:"workflow_id"`
	Variant     VariantType `json:"variant"`
	Criticality float64     `json:"criticality"`
	Steps       []Step      `json:"steps"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Clone returns a deep copy of the plan.
func (p ExecutionPlan) Clone() ExecutionPlan {
	out := p
	if p.Steps != nil {
		out.Steps = make([]Step, len(p.Steps))
		for i, s := range p.Steps {
			out.Steps[i] = s.Clone()
		}
	}
	return out
}
