package learning

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rendis/adaptflow/internal/randsrc"
	"github.com/rendis/adaptflow/internal/tuning"
	"github.com/rendis/adaptflow/pkg/schema"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// monday0830 is a Monday.
var monday0830 = time.Date(2026, 10, 12, 8, 30, 0, 0, time.UTC)

func fastTimings() tuning.LearningTimings {
	return tuning.LearningTimings{
		WarmUp:   0,
		PoolSize: 4,
		Retry: tuning.RetryPolicy{
			MaxAttempts: 3,
			Backoff:     "constant",
			Delay:       tuning.Duration(time.Millisecond),
		},
	}
}

func testRecord(goal schema.GoalCategory) *schema.WorkflowRecord {
	return &schema.WorkflowRecord{
		ID:          "wf-" + string(goal),
		Description: "test",
		Intent:      schema.IntentRecord{PrimaryGoal: goal},
		State:       schema.StateCreated,
		UserContext: map[string]any{"team": "support", "region": "eu"},
	}
}

func newTestLearner(t *testing.T, opts Options) *Learner {
	t.Helper()
	if opts.Timings.PoolSize == 0 {
		opts.Timings = fastTimings()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return monday0830 }
	}
	l := New(opts)
	t.Cleanup(l.Close)
	return l
}

func waitDone(t *testing.T, l *Learner, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Wait(ctx, id))
}

func TestLearner_DerivesAllPatterns(t *testing.T) {
	l := newTestLearner(t, Options{Random: randsrc.NewSequence(0, 0.5)})
	rec := testRecord(schema.GoalCustomerCommunication)

	require.NoError(t, l.Start(context.Background(), rec))
	waitDone(t, l, rec.ID)

	set, ok := l.Patterns(rec.ID)
	require.True(t, ok)
	assert.True(t, set.Complete())
	for _, k := range schema.PatternKinds {
		assert.Equal(t, schema.PatternReady, set.Status[k], "kind %s", k)
		assert.Equal(t, 1, set.Attempts[k], "kind %s", k)
	}

	require.NotNil(t, set.Temporal)
	assert.Equal(t, []int{9, 10, 14, 16}, set.Temporal.PeakHours)
	assert.Equal(t, []string{"monday", "tuesday", "wednesday"}, set.Temporal.PeakDays)
	assert.Equal(t, 0.9, set.Temporal.Seasonal["end_of_quarter"])
	assert.Equal(t, "0 9,10,14,16 * * 1-3", set.Temporal.CronSpec)
	assert.Equal(t, time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC), set.Temporal.NextPredicted)

	require.NotNil(t, set.Trigger)
	require.Len(t, set.Trigger.Candidates, 4)
	assert.Equal(t, "new_customer_signup", set.Trigger.Candidates[0].Tag)
	for _, c := range set.Trigger.Candidates {
		assert.GreaterOrEqual(t, c.Confidence, 0.7)
		assert.Less(t, c.Confidence, 1.0)
	}
	assert.InDelta(t, 0.7, set.Trigger.Candidates[0].Confidence, 1e-9)
	assert.InDelta(t, 0.85, set.Trigger.Candidates[1].Confidence, 1e-9)

	require.NotNil(t, set.User)
	assert.Equal(t, 9, set.User.Schedule.StartHour)
	assert.Equal(t, 17, set.User.Schedule.EndHour)
	assert.True(t, set.User.Collaboration.PrefersAsync)
	assert.Equal(t, 30, set.User.Collaboration.ResponseTimeMinutes)
	assert.Equal(t, []string{"region", "team"}, set.User.ObservedContextKeys)

	_, writes := l.Stats()
	assert.Equal(t, int64(3), writes)
}

func TestDeriveTrigger_ByGoal(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		goal  schema.GoalCategory
		count int
		first string
	}{
		{schema.GoalCustomerCommunication, 4, "new_customer_signup"},
		{schema.GoalDataPreservation, 4, "file_modification_detected"},
		{schema.GoalNotification, 3, "threshold_breach_detected"},
		{schema.GoalAutomation, 0, ""},
	}
	for _, tc := range tests {
		t.Run(string(tc.goal), func(t *testing.T) {
			v, err := DeriveTrigger(randsrc.NewSequence(0.99))(ctx, testRecord(tc.goal))
			require.NoError(t, err)
			p := v.(*schema.TriggerPattern)
			require.Len(t, p.Candidates, tc.count)
			if tc.count > 0 {
				assert.Equal(t, tc.first, p.Candidates[0].Tag)
			}
		})
	}
}

func TestDeriveTemporal_NextPredictedSkipsToNextWeek(t *testing.T) {
	wednesdayEvening := time.Date(2026, 10, 14, 17, 0, 0, 0, time.UTC)
	v, err := DeriveTemporal(func() time.Time { return wednesdayEvening })(context.Background(), testRecord(schema.GoalAutomation))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), v.(*schema.TemporalPattern).NextPredicted)
}

func TestLearner_FailureIsIsolated(t *testing.T) {
	var updates sync.Map
	l := newTestLearner(t, Options{
		Derivers: map[schema.PatternKind]DeriveFunc{
			schema.PatternTrigger: func(context.Context, *schema.WorkflowRecord) (any, error) {
				return nil, errors.New("model unavailable")
			},
		},
		OnUpdate: func(_ context.Context, kind schema.PatternKind, set schema.PatternSet) {
			updates.Store(kind, set.Status[kind])
		},
	})
	rec := testRecord(schema.GoalNotification)

	require.NoError(t, l.Start(context.Background(), rec))
	waitDone(t, l, rec.ID)

	set, ok := l.Patterns(rec.ID)
	require.True(t, ok)
	assert.Equal(t, schema.PatternFailed, set.Status[schema.PatternTrigger])
	assert.Equal(t, 3, set.Attempts[schema.PatternTrigger])
	assert.Nil(t, set.Trigger)
	assert.Equal(t, schema.PatternReady, set.Status[schema.PatternTemporal])
	assert.Equal(t, schema.PatternReady, set.Status[schema.PatternUser])
	assert.True(t, set.Complete())

	status, ok := updates.Load(schema.PatternTrigger)
	require.True(t, ok)
	assert.Equal(t, schema.PatternFailed, status)
}

func TestLearner_RetrySucceeds(t *testing.T) {
	var calls atomic.Int32
	l := newTestLearner(t, Options{
		Derivers: map[schema.PatternKind]DeriveFunc{
			schema.PatternUser: func(ctx context.Context, rec *schema.WorkflowRecord) (any, error) {
				if calls.Add(1) == 1 {
					return nil, errors.New("transient")
				}
				return DeriveUser()(ctx, rec)
			},
		},
	})
	rec := testRecord(schema.GoalAutomation)

	require.NoError(t, l.Start(context.Background(), rec))
	waitDone(t, l, rec.ID)

	set, _ := l.Patterns(rec.ID)
	assert.Equal(t, schema.PatternReady, set.Status[schema.PatternUser])
	assert.Equal(t, 2, set.Attempts[schema.PatternUser])
	assert.NotNil(t, set.User)
}

func TestLearner_PanicCountsAsFailure(t *testing.T) {
	l := newTestLearner(t, Options{
		Derivers: map[schema.PatternKind]DeriveFunc{
			schema.PatternTemporal: func(context.Context, *schema.WorkflowRecord) (any, error) {
				panic("corrupt model")
			},
		},
	})
	rec := testRecord(schema.GoalAutomation)

	require.NoError(t, l.Start(context.Background(), rec))
	waitDone(t, l, rec.ID)

	set, _ := l.Patterns(rec.ID)
	assert.Equal(t, schema.PatternFailed, set.Status[schema.PatternTemporal])
	pm, _ := l.Stats()
	assert.Equal(t, int64(3), pm.Panics)
}

func TestLearner_WrongResultTypeFails(t *testing.T) {
	l := newTestLearner(t, Options{
		Derivers: map[schema.PatternKind]DeriveFunc{
			schema.PatternUser: func(context.Context, *schema.WorkflowRecord) (any, error) {
				return &schema.TriggerPattern{}, nil
			},
		},
	})
	rec := testRecord(schema.GoalAutomation)

	require.NoError(t, l.Start(context.Background(), rec))
	waitDone(t, l, rec.ID)

	set, _ := l.Patterns(rec.ID)
	assert.Equal(t, schema.PatternFailed, set.Status[schema.PatternUser])
}

func TestLearner_StartTwiceFails(t *testing.T) {
	block := make(chan struct{})
	l := newTestLearner(t, Options{
		Derivers: map[schema.PatternKind]DeriveFunc{
			schema.PatternUser: func(ctx context.Context, _ *schema.WorkflowRecord) (any, error) {
				select {
				case <-block:
				case <-ctx.Done():
				}
				return nil, ctx.Err()
			},
		},
	})
	rec := testRecord(schema.GoalAutomation)

	require.NoError(t, l.Start(context.Background(), rec))
	err := l.Start(context.Background(), rec)
	assert.True(t, schema.IsCode(err, schema.ErrCodeLearningFailure))
	assert.True(t, l.Running(rec.ID))
	close(block)
}

func TestLearner_CancelDuringWarmUp(t *testing.T) {
	timings := fastTimings()
	timings.WarmUp = tuning.Duration(time.Hour)
	l := newTestLearner(t, Options{Timings: timings})
	rec := testRecord(schema.GoalCustomerCommunication)

	require.NoError(t, l.Start(context.Background(), rec))

	done := make(chan struct{})
	go func() {
		l.Cancel(rec.ID)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Cancel did not return")
	}

	assert.False(t, l.Running(rec.ID))
	_, ok := l.Patterns(rec.ID)
	assert.False(t, ok)
	_, writes := l.Stats()
	assert.Zero(t, writes)
}

// A derivation that finishes its work after the workflow is cancelled must
// not land a write.
func TestLearner_CancelRaceNoWritesAfterDelete(t *testing.T) {
	ctxs := make(chan context.Context, 1)
	release := make(chan struct{})
	var onUpdateCalls atomic.Int32

	l := newTestLearner(t, Options{
		Derivers: map[schema.PatternKind]DeriveFunc{
			schema.PatternTemporal: func(ctx context.Context, _ *schema.WorkflowRecord) (any, error) {
				ctxs <- ctx
				<-release // ignores cancellation until released
				return &schema.TemporalPattern{CronSpec: "late"}, nil
			},
			schema.PatternTrigger: func(ctx context.Context, _ *schema.WorkflowRecord) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			schema.PatternUser: func(ctx context.Context, _ *schema.WorkflowRecord) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
		OnUpdate: func(context.Context, schema.PatternKind, schema.PatternSet) {
			onUpdateCalls.Add(1)
		},
	})
	rec := testRecord(schema.GoalCustomerCommunication)
	require.NoError(t, l.Start(context.Background(), rec))

	derivationCtx := <-ctxs

	cancelled := make(chan struct{})
	go func() {
		l.Cancel(rec.ID)
		close(cancelled)
	}()

	<-derivationCtx.Done()
	close(release)

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("Cancel did not return")
	}

	_, writes := l.Stats()
	assert.Zero(t, writes)
	assert.Zero(t, onUpdateCalls.Load())
	_, ok := l.Patterns(rec.ID)
	assert.False(t, ok)

	// A stale token from the cancelled registration stays revoked.
	assert.ErrorIs(t, l.patterns.put(rec.ID, 1, schema.PatternTemporal, &schema.TemporalPattern{}), errRevoked)
}

func TestLearner_CancelUnknownIsNoop(t *testing.T) {
	l := newTestLearner(t, Options{})
	assert.NotPanics(t, func() { l.Cancel("missing") })
	assert.NoError(t, l.Wait(context.Background(), "missing"))
}

func TestLearner_CloseStopsGroups(t *testing.T) {
	timings := fastTimings()
	timings.WarmUp = tuning.Duration(time.Hour)
	l := New(Options{Timings: timings, Now: func() time.Time { return monday0830 }})

	for _, goal := range schema.GoalCategories {
		require.NoError(t, l.Start(context.Background(), testRecord(goal)))
	}
	l.Close()
	l.Close()

	for _, goal := range schema.GoalCategories {
		assert.False(t, l.Running(testRecord(goal).ID))
	}
	assert.ErrorIs(t, l.Start(context.Background(), testRecord(schema.GoalAutomation)), ErrPoolShutdown)
}

func TestLearner_Restore(t *testing.T) {
	l := newTestLearner(t, Options{})
	set := schema.PatternSet{
		WorkflowID: "wf-restored",
		Trigger:    &schema.TriggerPattern{Candidates: []schema.TriggerCandidate{{Tag: "scheduled_backup_time", Confidence: 0.8}}},
		Status: map[schema.PatternKind]schema.PatternStatus{
			schema.PatternTemporal: schema.PatternFailed,
			schema.PatternTrigger:  schema.PatternReady,
			schema.PatternUser:     schema.PatternFailed,
		},
	}
	l.Restore(set)

	got, ok := l.Patterns("wf-restored")
	require.True(t, ok)
	assert.True(t, got.Complete())
	assert.Equal(t, "scheduled_backup_time", got.Trigger.Candidates[0].Tag)

	set.Trigger.Candidates[0].Tag = "mutated"
	got, _ = l.Patterns("wf-restored")
	assert.Equal(t, "scheduled_backup_time", got.Trigger.Candidates[0].Tag)
}
