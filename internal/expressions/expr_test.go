package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/rendis/adaptflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uxVariant() schema.Variant {
	return schema.Variant{
		Type: schema.VariantUX,
		Characteristics: []schema.Characteristic{
			schema.CharIntuitiveFeedback, schema.CharProactiveCommunication, schema.CharGracefulDegradation,
		},
		TradeOffs: schema.TradeOffs{Speed: 0.85, Reliability: 0.9, ResourceUsage: 0.8},
	}
}

func customerIntent() schema.IntentRecord {
	return schema.IntentRecord{
		PrimaryGoal:      schema.GoalCustomerCommunication,
		EmotionalContext: map[string]float64{schema.SignalUrgency: 0.7},
	}
}

func TestNewExprEngine(t *testing.T) {
	e := NewExprEngine()
	assert.NotNil(t, e)
	assert.Equal(t, "expr", e.Name())
}

func TestExpr_Evaluate(t *testing.T) {
	e := NewExprEngine()

	out, err := e.Evaluate(context.Background(), "a + b", map[string]any{"a": 10, "b": 3})
	require.NoError(t, err)
	assert.Equal(t, 13, out)
}

func TestExpr_EmptyExpression(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	assert.True(t, schema.IsCode(e.Check(""), schema.ErrCodeValidation))
}

func TestExpr_MatchAlignmentRule(t *testing.T) {
	e := NewExprEngine()
	rule := `variant.type == "ux_optimized" && intent.primary_goal == "customer_communication_optimization"`

	ok, err := e.Match(context.Background(), rule, uxVariant(), customerIntent())
	require.NoError(t, err)
	assert.True(t, ok)

	other := customerIntent()
	other.PrimaryGoal = schema.GoalDataPreservation
	ok, err = e.Match(context.Background(), rule, uxVariant(), other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpr_MatchCharacteristicsAndSignals(t *testing.T) {
	e := NewExprEngine()

	ok, err := e.Match(context.Background(),
		`"proactive_communication" in variant.characteristics && intent.emotional_context.urgency > 0.5`,
		uxVariant(), customerIntent())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpr_MatchNonBool(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Match(context.Background(), `variant.trade_offs.speed * 2`, uxVariant(), customerIntent())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestExpr_CheckRejectsSyntaxError(t *testing.T) {
	e := NewExprEngine()

	err := e.Check(`variant.type ==`)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	assert.NoError(t, e.Check(`variant.type == "speed_optimized"`))
}

func TestExpr_ConcurrentMatch(t *testing.T) {
	e := NewExprEngine()
	rule := `variant.trade_offs.reliability >= 0.9`

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := e.Match(context.Background(), rule, uxVariant(), customerIntent())
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()
}
