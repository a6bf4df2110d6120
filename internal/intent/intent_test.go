package intent

import (
	"context"
	"math"
	"testing"

	"github.com/rendis/adaptflow/internal/tuning"
	"github.com/rendis/adaptflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordExtractor_Goals(t *testing.T) {
	x := NewKeywordExtractor()
	tests := []struct {
		desc string
		want schema.GoalCategory
	}{
		{"Send a follow-up email to every new customer", schema.GoalCustomerCommunication},
		{"Customer onboarding checklist", schema.GoalAutomation},
		{"Nightly backup of the reports folder", schema.GoalDataPreservation},
		{"Save invoices to the archive", schema.GoalDataPreservation},
		{"Alert on-call when the queue grows", schema.GoalNotification},
		{"Rotate logs weekly", schema.GoalAutomation},
	}
	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			r, err := x.Extract(context.Background(), tc.desc, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, r.PrimaryGoal)
			assert.NoError(t, Validate(r))
		})
	}
}

func TestKeywordExtractor_EmotionalContext(t *testing.T) {
	x := NewKeywordExtractor()

	r, err := x.Extract(context.Background(), "URGENT: team needs help with a billing problem", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{
		schema.SignalUrgency:               0.7,
		schema.SignalStressLevel:           0.8,
		schema.SignalSatisfactionPotential: 0.9,
		schema.SignalCollaborationNeed:     0.6,
	}, r.EmotionalContext)

	calm, err := x.Extract(context.Background(), "tidy the wiki", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.3, calm.EmotionalContext[schema.SignalUrgency])
	assert.Equal(t, 0.2, calm.EmotionalContext[schema.SignalStressLevel])
	assert.Len(t, calm.HiddenRequirements, 5)
	assert.Len(t, calm.OptimizationOpportunities, 5)
	assert.Len(t, calm.PainPoints, 5)
}

func TestKeywordExtractor_EmptyDescription(t *testing.T) {
	_, err := NewKeywordExtractor().Extract(context.Background(), "   ", nil)
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
	assert.Equal(t, "description", fe.Field)
}

func TestKeywordExtractor_ListsAreCopies(t *testing.T) {
	x := NewKeywordExtractor()
	a, _ := x.Extract(context.Background(), "x", nil)
	a.HiddenRequirements[0] = "tampered"

	b, _ := x.Extract(context.Background(), "x", nil)
	assert.Equal(t, "error_handling_with_human_escalation", b.HiddenRequirements[0])
}

func TestValidate(t *testing.T) {
	err := Validate(schema.IntentRecord{PrimaryGoal: "world_domination"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = Validate(schema.IntentRecord{
		PrimaryGoal:      schema.GoalAutomation,
		EmotionalContext: map[string]float64{"urgency": math.NaN()},
	})
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "emotional_context.urgency", fe.Field)
}

func TestCriticality(t *testing.T) {
	table := tuning.Defaults().Criticality
	five := []string{"a", "b", "c", "d", "e"}

	tests := []struct {
		name   string
		intent schema.IntentRecord
		want   float64
	}{
		{"base", schema.IntentRecord{PrimaryGoal: schema.GoalAutomation}, 0.5},
		{"stress", schema.IntentRecord{PrimaryGoal: schema.GoalAutomation, EmotionalContext: map[string]float64{"stress_level": 0.8}}, 0.7},
		{"stress at threshold", schema.IntentRecord{PrimaryGoal: schema.GoalAutomation, EmotionalContext: map[string]float64{"stress_level": 0.5}}, 0.5},
		{"requirements", schema.IntentRecord{PrimaryGoal: schema.GoalAutomation, HiddenRequirements: five}, 0.65},
		{"customer", schema.IntentRecord{PrimaryGoal: schema.GoalCustomerCommunication, HiddenRequirements: five}, 0.85},
		{"capped", schema.IntentRecord{
			PrimaryGoal:        schema.GoalCustomerCommunication,
			EmotionalContext:   map[string]float64{"stress_level": 0.8},
			HiddenRequirements: five,
		}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Criticality(tc.intent, table), 1e-9)
		})
	}
}
