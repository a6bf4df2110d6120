package schema

// GoalCategory is the closed set of primary goals an intent can carry.
type GoalCategory string

const (
	GoalCustomerCommunication GoalCategory = "customer_communication_optimization"
	GoalDataPreservation      GoalCategory = "data_preservation_and_security"
	GoalNotification          GoalCategory = "intelligent_notification_system"
	GoalAutomation            GoalCategory = "workflow_automation_enhancement"
)

// GoalCategories lists every known goal in declaration order.
var GoalCategories = []GoalCategory{
	GoalCustomerCommunication,
	GoalDataPreservation,
	GoalNotification,
	GoalAutomation,
}

// Valid reports whether g is a known goal category.
func (g GoalCategory) Valid() bool {
	switch g {
	case GoalCustomerCommunication, GoalDataPreservation, GoalNotification, GoalAutomation:
		return true
	default:
		return false
	}
}

// Well-known emotional context signals.
const (
	SignalUrgency               = "urgency"
	SignalStressLevel           = "stress_level"
	SignalSatisfactionPotential = "satisfaction_potential"
	SignalCollaborationNeed     = "collaboration_need"
)

// IntentRecord is the structured output of intent extraction. It is
// immutable once produced; consumers must use Clone before retaining it.
type IntentRecord struct {
	PrimaryGoal               GoalCategory       `json:"primary_goal" yaml:"primary_goal"`
	EmotionalContext          map[string]float64 `json:"emotional_context,omitempty" yaml:"emotional_context,omitempty"`
	HiddenRequirements        []string           `json:"hidden_requirements,omitempty" yaml:"hidden_requirements,omitempty"`
	OptimizationOpportunities []string           `json:"optimization_opportunities,omitempty" yaml:"optimization_opportunities,omitempty"`
	PainPoints                []string           `json:"pain_points,omitempty" yaml:"pain_points,omitempty"`
}

// Clone returns a deep copy of the intent.
func (r IntentRecord) Clone() IntentRecord {
	out := IntentRecord{
		PrimaryGoal:               r.PrimaryGoal,
		HiddenRequirements:        cloneStrings(r.HiddenRequirements),
		OptimizationOpportunities: cloneStrings(r.OptimizationOpportunities),
		PainPoints:                cloneStrings(r.PainPoints),
	}
	if r.EmotionalContext != nil {
		out.EmotionalContext = make(map[string]float64, len(r.EmotionalContext))
		for k, v := range r.EmotionalContext {
			out.EmotionalContext[k] = v
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
