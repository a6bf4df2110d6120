package schema

// Event type constants for the workflow event log.
const (
	EventWorkflowCreated   = "workflow_created"
	EventWorkflowCollapsed = "workflow_collapsed"
	EventWorkflowEvolved   = "workflow_evolved"
	EventOutcomeRecorded   = "outcome_recorded"
	EventWorkflowDeleted   = "workflow_deleted"

	EventPatternLearned    = "pattern_learned"
	EventPatternFailed     = "pattern_failed"
	EventSimulationBuilt   = "simulation_built"
	EventSimulationEvicted = "simulation_evicted"
)

// LifecycleState represents the lifecycle phase of a workflow.
type LifecycleState string

const (
	// StateCreated means variants exist but none has been chosen yet.
	StateCreated LifecycleState = "created"
	// StateCollapsed means a variant was selected and a plan generated.
	StateCollapsed LifecycleState = "collapsed"
	// StateEvolving means at least one outcome was recorded.
	StateEvolving LifecycleState = "evolving"
)

// Valid reports whether s is one of the known lifecycle states.
func (s LifecycleState) Valid() bool {
	switch s {
	case StateCreated, StateCollapsed, StateEvolving:
		return true
	default:
		return false
	}
}
