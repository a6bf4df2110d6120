package intent

import (
	"github.com/rendis/adaptflow/internal/tuning"
	"github.com/rendis/adaptflow/pkg/schema"
)

// Criticality scores how much human oversight a workflow needs, in [0,1].
func Criticality(r schema.IntentRecord, t tuning.CriticalityTable) float64 {
	c := t.Base
	if r.EmotionalContext[schema.SignalStressLevel] > t.StressThreshold {
		c += t.StressBonus
	}
	if len(r.HiddenRequirements) > t.RequirementsThreshold {
		c += t.RequirementsBonus
	}
	if r.PrimaryGoal == schema.GoalCustomerCommunication {
		c += t.CustomerBonus
	}
	switch {
	case c > 1:
		return 1
	case c < 0:
		return 0
	}
	return c
}
