// Package evolution keeps per-workflow outcome history and derives a rolling
// fitness score with mutation suggestions.
package evolution

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rendis/adaptflow/internal/expressions"
	"github.com/rendis/adaptflow/internal/tuning"
	"github.com/rendis/adaptflow/pkg/schema"
)

// TierEvaluator decides whether a mutation tier's condition holds.
type TierEvaluator interface {
	Holds(ctx context.Context, expression string, vars expressions.FitnessVars) (bool, error)
}

// Tracker owns outcome history and fitness per workflow. Workflows must be
// registered with Track before outcomes are accepted.
type Tracker struct {
	table  tuning.FitnessTable
	tiers  TierEvaluator
	now    func() time.Time
	logger *slog.Logger

	mu      sync.RWMutex
	history map[string][]schema.ExecutionOutcome
	fitness map[string]schema.FitnessRecord
}

// NewTracker creates a tracker over the given fitness table.
func NewTracker(table tuning.FitnessTable, tiers TierEvaluator, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		table:   table,
		tiers:   tiers,
		now:     time.Now,
		logger:  logger,
		history: make(map[string][]schema.ExecutionOutcome),
		fitness: make(map[string]schema.FitnessRecord),
	}
}

// Track registers a workflow with an empty history.
func (t *Tracker) Track(workflowID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.history[workflowID]; !ok {
		t.history[workflowID] = []schema.ExecutionOutcome{}
	}
}

// Seed registers a workflow with previously stored outcomes and recomputes
// its fitness. Used when restoring from a persister.
func (t *Tracker) Seed(ctx context.Context, workflowID string, outcomes []schema.ExecutionOutcome) error {
	hist := make([]schema.ExecutionOutcome, len(outcomes))
	for i, o := range outcomes {
		hist[i] = o.Clone()
	}

	var rec *schema.FitnessRecord
	if len(hist) > 0 {
		r, err := t.compute(ctx, workflowID, hist)
		if err != nil {
			return err
		}
		rec = &r
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.history[workflowID] = hist
	if rec != nil {
		t.fitness[workflowID] = *rec
	}
	return nil
}

// ValidateOutcome checks every range the tracker relies on.
func ValidateOutcome(o schema.ExecutionOutcome) error {
	if err := checkUnit("user_satisfaction", o.UserSatisfaction); err != nil {
		return err
	}
	if err := checkUnit("resource_efficiency", o.ResourceEfficiency); err != nil {
		return err
	}
	if o.ErrorCount < 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "error_count must be non-negative, got %d", o.ErrorCount).
			WithField("error_count")
	}
	if o.Duration < 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "duration must be non-negative, got %s", o.Duration).
			WithField("duration")
	}
	return nil
}

func checkUnit(field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s must be in [0,1], got %v", field, v).
			WithField(field).
			WithDetails(map[string]any{"value": v})
	}
	return nil
}

// RecordOutcome validates and appends the outcome, then recomputes fitness
// over the trailing window. A failed call leaves history unchanged.
func (t *Tracker) RecordOutcome(ctx context.Context, workflowID string, outcome schema.ExecutionOutcome) (schema.FitnessRecord, error) {
	if err := ValidateOutcome(outcome); err != nil {
		return schema.FitnessRecord{}, err.(*schema.FlowError).WithWorkflow(workflowID)
	}
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = t.now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	hist, ok := t.history[workflowID]
	if !ok {
		return schema.FitnessRecord{}, schema.NewError(schema.ErrCodeUnknownWorkflow, "workflow not tracked").
			WithWorkflow(workflowID)
	}

	next := append(hist[:len(hist):len(hist)], outcome.Clone())
	rec, err := t.compute(ctx, workflowID, next)
	if err != nil {
		return schema.FitnessRecord{}, err
	}

	t.history[workflowID] = next
	t.fitness[workflowID] = rec
	return rec.Clone(), nil
}

// compute derives the fitness record from the trailing window of hist.
func (t *Tracker) compute(ctx context.Context, workflowID string, hist []schema.ExecutionOutcome) (schema.FitnessRecord, error) {
	window := hist
	if n := t.table.Window; n > 0 && len(window) > n {
		window = window[len(window)-n:]
	}

	vars := windowVars(window)
	vars.Fitness = clamp01(t.table.SatisfactionWeight*vars.Satisfaction +
		t.table.EfficiencyWeight*vars.Efficiency +
		t.table.SuccessWeight*vars.SuccessRate)

	suggestions := []string{}
	for _, tier := range t.table.Tiers {
		holds, err := t.tiers.Holds(ctx, tier.When, vars)
		if err != nil {
			return schema.FitnessRecord{}, schema.NewErrorf(schema.ErrCodeConfig,
				"mutation tier %q: %s", tier.Name, err.Error()).
				WithWorkflow(workflowID).
				WithCause(err)
		}
		if holds {
			suggestions = append(suggestions, tier.Suggestions...)
		}
	}

	t.logger.DebugContext(ctx, "fitness recomputed",
		"workflow_id", workflowID, "fitness", vars.Fitness, "window", vars.Window, "suggestions", len(suggestions))

	return schema.FitnessRecord{
		WorkflowID:          workflowID,
		FitnessScore:        vars.Fitness,
		MutationSuggestions: suggestions,
		WindowSize:          vars.Window,
		UpdatedAt:           t.now().UTC(),
	}, nil
}

// windowVars averages the window. An empty window yields zeros.
func windowVars(window []schema.ExecutionOutcome) expressions.FitnessVars {
	vars := expressions.FitnessVars{Window: len(window)}
	if len(window) == 0 {
		return vars
	}
	var sat, eff, ok float64
	for _, o := range window {
		sat += o.UserSatisfaction
		eff += o.ResourceEfficiency
		if o.Success {
			ok++
		}
	}
	n := float64(len(window))
	vars.Satisfaction = sat / n
	vars.Efficiency = eff / n
	vars.SuccessRate = ok / n
	return vars
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Fitness returns the latest fitness record. NOT_FOUND before the first outcome.
func (t *Tracker) Fitness(workflowID string) (schema.FitnessRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.history[workflowID]; !ok {
		return schema.FitnessRecord{}, schema.NewError(schema.ErrCodeUnknownWorkflow, "workflow not tracked").
			WithWorkflow(workflowID)
	}
	rec, ok := t.fitness[workflowID]
	if !ok {
		return schema.FitnessRecord{}, schema.NewError(schema.ErrCodeNotFound, "no outcomes recorded").
			WithWorkflow(workflowID)
	}
	return rec.Clone(), nil
}

// History returns a copy of every recorded outcome, oldest first.
func (t *Tracker) History(workflowID string) ([]schema.ExecutionOutcome, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	hist, ok := t.history[workflowID]
	if !ok {
		return nil, schema.NewError(schema.ErrCodeUnknownWorkflow, "workflow not tracked").
			WithWorkflow(workflowID)
	}
	out := make([]schema.ExecutionOutcome, len(hist))
	for i, o := range hist {
		out[i] = o.Clone()
	}
	return out, nil
}

// Forget drops the workflow's history and fitness.
func (t *Tracker) Forget(workflowID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.history, workflowID)
	delete(t.fitness, workflowID)
}
