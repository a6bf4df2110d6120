package evolution

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/adaptflow/internal/expressions"
	"github.com/rendis/adaptflow/internal/tuning"
	"github.com/rendis/adaptflow/pkg/schema"
)

var moderate = []string{
	"optimize_execution_order",
	"add_parallel_processing",
	"implement_caching",
	"reduce_validation_overhead",
	"improve_error_handling",
}

var severe = []string{
	"complete_architecture_redesign",
	"alternative_implementation_strategy",
	"user_experience_overhaul",
	"integration_method_change",
}

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	tr := NewTracker(tuning.Defaults().Fitness, cel, nil)
	tr.Track("wf-1")
	return tr
}

func outcome(sat, eff float64, success bool) schema.ExecutionOutcome {
	return schema.ExecutionOutcome{
		Duration:           time.Second,
		Success:            success,
		UserSatisfaction:   sat,
		ResourceEfficiency: eff,
	}
}

func TestRecordOutcome_HealthyHasNoSuggestions(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	var rec schema.FitnessRecord
	var err error
	for _, o := range []schema.ExecutionOutcome{
		outcome(0.9, 0.7, true),
		outcome(0.8, 0.75, true),
		outcome(0.85, 0.8, true),
	} {
		rec, err = tr.RecordOutcome(ctx, "wf-1", o)
		require.NoError(t, err)
	}

	assert.InDelta(t, 0.865, rec.FitnessScore, 1e-9)
	assert.Empty(t, rec.MutationSuggestions)
	assert.NotNil(t, rec.MutationSuggestions)
	assert.Equal(t, 3, rec.WindowSize)
	assert.Equal(t, "wf-1", rec.WorkflowID)
}

func TestRecordOutcome_PoorFitnessGetsBothTiers(t *testing.T) {
	tr := newTestTracker(t)

	rec, err := tr.RecordOutcome(context.Background(), "wf-1", outcome(0.75, 0.5, false))
	require.NoError(t, err)

	assert.InDelta(t, 0.45, rec.FitnessScore, 1e-9)
	assert.Equal(t, append(append([]string{}, moderate...), severe...), rec.MutationSuggestions)
}

func TestRecordOutcome_ModerateOnly(t *testing.T) {
	tr := newTestTracker(t)

	// 0.4*0.5 + 0.3*0.5 + 0.3*1 = 0.65
	rec, err := tr.RecordOutcome(context.Background(), "wf-1", outcome(0.5, 0.5, true))
	require.NoError(t, err)
	assert.InDelta(t, 0.65, rec.FitnessScore, 1e-9)
	assert.Equal(t, moderate, rec.MutationSuggestions)
}

func TestRecordOutcome_WindowIsLastTen(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := tr.RecordOutcome(ctx, "wf-1", outcome(0, 0, false))
		require.NoError(t, err)
	}
	var rec schema.FitnessRecord
	for i := 0; i < 10; i++ {
		var err error
		rec, err = tr.RecordOutcome(ctx, "wf-1", outcome(1, 1, true))
		require.NoError(t, err)
	}

	assert.Equal(t, 10, rec.WindowSize)
	assert.InDelta(t, 1.0, rec.FitnessScore, 1e-9)

	hist, err := tr.History("wf-1")
	require.NoError(t, err)
	assert.Len(t, hist, 15)
}

func TestRecordOutcome_FitnessBounds(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	for _, o := range []schema.ExecutionOutcome{
		outcome(0, 0, false), outcome(1, 1, true), outcome(0.3, 0.9, false),
		outcome(1, 0, true), outcome(0, 1, false), outcome(0.5, 0.5, true),
	} {
		rec, err := tr.RecordOutcome(ctx, "wf-1", o)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rec.FitnessScore, 0.0)
		assert.LessOrEqual(t, rec.FitnessScore, 1.0)
	}
}

// Fitness is monotone in each input: improving one outcome never lowers it.
func TestComputeFitness_Monotone(t *testing.T) {
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	tr := NewTracker(tuning.Defaults().Fitness, cel, nil)
	ctx := context.Background()

	base := []schema.ExecutionOutcome{outcome(0.4, 0.6, false), outcome(0.7, 0.2, true)}
	baseRec, err := tr.compute(ctx, "wf", base)
	require.NoError(t, err)

	improvements := map[string]func(o *schema.ExecutionOutcome){
		"satisfaction": func(o *schema.ExecutionOutcome) { o.UserSatisfaction += 0.2 },
		"efficiency":   func(o *schema.ExecutionOutcome) { o.ResourceEfficiency += 0.3 },
		"success":      func(o *schema.ExecutionOutcome) { o.Success = true },
	}
	for name, improve := range improvements {
		t.Run(name, func(t *testing.T) {
			better := append([]schema.ExecutionOutcome(nil), base...)
			improve(&better[0])
			rec, err := tr.compute(ctx, "wf", better)
			require.NoError(t, err)
			assert.Greater(t, rec.FitnessScore, baseRec.FitnessScore)
		})
	}
}

func TestRecordOutcome_Validation(t *testing.T) {
	tests := []struct {
		name  string
		o     schema.ExecutionOutcome
		field string
	}{
		{"satisfaction high", outcome(1.1, 0.5, true), "user_satisfaction"},
		{"satisfaction NaN", outcome(math.NaN(), 0.5, true), "user_satisfaction"},
		{"efficiency negative", outcome(0.5, -0.1, true), "resource_efficiency"},
		{"error count", schema.ExecutionOutcome{ErrorCount: -1}, "error_count"},
		{"duration", schema.ExecutionOutcome{Duration: -time.Second}, "duration"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := newTestTracker(t)
			_, err := tr.RecordOutcome(context.Background(), "wf-1", tc.o)
			var fe *schema.FlowError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, schema.ErrCodeValidation, fe.Code)
			assert.Equal(t, tc.field, fe.Field)
			assert.Equal(t, "wf-1", fe.WorkflowID)

			hist, _ := tr.History("wf-1")
			assert.Empty(t, hist)
		})
	}
}

func TestRecordOutcome_UnknownWorkflow(t *testing.T) {
	tr := newTestTracker(t)
	_, err := tr.RecordOutcome(context.Background(), "nope", outcome(0.5, 0.5, true))
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnknownWorkflow))

	_, err = tr.Fitness("nope")
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnknownWorkflow))
	_, err = tr.History("nope")
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnknownWorkflow))
}

type failingTiers struct{}

func (failingTiers) Holds(context.Context, string, expressions.FitnessVars) (bool, error) {
	return false, errors.New("no such variable")
}

func TestRecordOutcome_TierErrorLeavesHistory(t *testing.T) {
	tr := NewTracker(tuning.Defaults().Fitness, failingTiers{}, nil)
	tr.Track("wf-1")

	_, err := tr.RecordOutcome(context.Background(), "wf-1", outcome(0.5, 0.5, true))
	assert.True(t, schema.IsCode(err, schema.ErrCodeConfig))
	hist, _ := tr.History("wf-1")
	assert.Empty(t, hist)
}

func TestFitnessBeforeFirstOutcome(t *testing.T) {
	tr := newTestTracker(t)
	_, err := tr.Fitness("wf-1")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestSeedAndForget(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Seed(ctx, "wf-2", []schema.ExecutionOutcome{outcome(0.75, 0.5, false)}))
	rec, err := tr.Fitness("wf-2")
	require.NoError(t, err)
	assert.InDelta(t, 0.45, rec.FitnessScore, 1e-9)

	tr.Forget("wf-2")
	_, err = tr.Fitness("wf-2")
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnknownWorkflow))
}

func TestHistoryIsCopy(t *testing.T) {
	tr := newTestTracker(t)
	o := outcome(0.5, 0.5, true)
	o.AISuggestions = []string{"cache"}
	_, err := tr.RecordOutcome(context.Background(), "wf-1", o)
	require.NoError(t, err)

	hist, _ := tr.History("wf-1")
	hist[0].AISuggestions[0] = "mutated"
	again, _ := tr.History("wf-1")
	assert.Equal(t, "cache", again[0].AISuggestions[0])
	assert.False(t, again[0].RecordedAt.IsZero())
}
