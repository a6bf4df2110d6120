// Package engine wires the adaptflow pipeline together: intent extraction,
// variant generation, context scoring and selection, planning, the workflow
// lifecycle, and the three feedback loops (pattern learning, fitness
// tracking, scenario simulation).
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/adaptflow/internal/catalog"
	"github.com/rendis/adaptflow/internal/evolution"
	"github.com/rendis/adaptflow/internal/expressions"
	"github.com/rendis/adaptflow/internal/intent"
	"github.com/rendis/adaptflow/internal/learning"
	"github.com/rendis/adaptflow/internal/logging"
	"github.com/rendis/adaptflow/internal/metrics"
	"github.com/rendis/adaptflow/internal/planner"
	"github.com/rendis/adaptflow/internal/randsrc"
	"github.com/rendis/adaptflow/internal/scoring"
	"github.com/rendis/adaptflow/internal/simulation"
	"github.com/rendis/adaptflow/internal/store"
	"github.com/rendis/adaptflow/internal/tuning"
	"github.com/rendis/adaptflow/pkg/schema"
)

// EventLog is the event store the engine appends lifecycle events to and
// reads them back from. Satisfied by *store.MemoryEventLog and every
// store.Persister.
type EventLog interface {
	EventAppender
	GetEvents(ctx context.Context, workflowID string, since int64) ([]*store.Event, error)
}

// Options configures an Engine. Zero values take defaults.
type Options struct {
	// Tables overrides the built-in tuning tables. Validated by New.
	Tables *tuning.Tables
	// Extractor turns descriptions into intents (default: keyword extractor).
	Extractor intent.Extractor
	// Persister is the optional durable store. Nil runs fully in memory.
	Persister store.Persister
	Random    randsrc.Source
	Now       func() time.Time
	// Derivers replaces individual pattern derivations.
	Derivers map[schema.PatternKind]learning.DeriveFunc
	Breaker  BreakerConfig
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Engine is the orchestrating facade behind every exposed operation.
// It is safe for concurrent use; operations on one workflow are serialized
// by the registry's per-workflow lock.
type Engine struct {
	tables    tuning.Tables
	extractor intent.Extractor
	catalog   *catalog.Catalog
	scorer    *scoring.Scorer
	selector  *scoring.Selector
	fsm       *LifecycleFSM
	events    EventLog
	registry  *store.Registry
	learner   *learning.Learner
	tracker   *evolution.Tracker
	simulator *simulation.Simulator
	persister store.Persister
	breakers  *persistBreakers
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// New builds an Engine, restores persisted workflows when a persister is
// configured, and starts the simulation janitor. Call Close to stop
// background work.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Random == nil {
		opts.Random = randsrc.System{}
	}
	if opts.Extractor == nil {
		opts.Extractor = intent.NewKeywordExtractor()
	}

	tables := tuning.Defaults()
	if opts.Tables != nil {
		tables = opts.Tables.Clone()
	}

	matcher := expressions.NewExprEngine()
	tiers, err := expressions.NewCELEngine()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "init CEL engine").WithCause(err)
	}
	checkers := tuning.RuleCheckers{Alignment: matcher, Tiers: tiers}
	if err := tuning.Validate(&tables, checkers).ToError(schema.ErrCodeConfig); err != nil {
		return nil, err
	}

	var events EventLog = store.NewMemoryEventLog()
	if opts.Persister != nil {
		events = opts.Persister
	}

	e := &Engine{
		tables:    tables,
		extractor: opts.Extractor,
		catalog:   catalog.New(tables.Archetypes),
		scorer:    scoring.NewScorer(tables.Context),
		selector:  scoring.NewSelector(tables.AlignmentRules, matcher, opts.Logger),
		fsm:       NewLifecycleFSM(events, opts.Logger),
		events:    events,
		registry:  store.NewRegistry(),
		tracker:   evolution.NewTracker(tables.Fitness, tiers, opts.Logger),
		simulator: simulation.New(tables.Simulation, opts.Random, opts.Metrics, opts.Logger),
		persister: opts.Persister,
		breakers:  newPersistBreakers(opts.Breaker, opts.Now),
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	e.learner = learning.New(learning.Options{
		Timings:  tables.Learning,
		Random:   opts.Random,
		Now:      opts.Now,
		Derivers: opts.Derivers,
		OnUpdate: e.onPatternUpdate,
		Metrics:  opts.Metrics,
		Logger:   opts.Logger,
	})

	for from, targets := range ValidLifecycleTransitions {
		for _, to := range targets {
			e.fsm.OnAfter(from, to, func(_ string, from, to schema.LifecycleState) error {
				e.metrics.RecordTransition(from, to)
				return nil
			})
		}
	}

	if e.persister != nil {
		e.restore(ctx)
	}
	e.metrics.SetWorkflows(e.registry.Len())

	if err := e.simulator.Start(context.WithoutCancel(ctx)); err != nil {
		e.learner.Close()
		return nil, schema.NewError(schema.ErrCodeConfig, "start simulation janitor").WithCause(err)
	}
	return e, nil
}

// CreateWorkflow extracts the intent of description, generates the
// candidate variants, and stores a new CREATED workflow. Pattern learning
// starts in the background.
func (e *Engine) CreateWorkflow(ctx context.Context, description string, userContext map[string]any) (string, error) {
	r, err := e.extractor.Extract(ctx, description, userContext)
	if err != nil {
		return "", err
	}
	if err := intent.Validate(r); err != nil {
		return "", err
	}

	now := e.now().UTC()
	rec := &schema.WorkflowRecord{
		ID:          uuid.New().String(),
		Description: description,
		Intent:      r.Clone(),
		Variants:    e.catalog.Generate(r),
		Criticality: intent.Criticality(r, e.tables.Criticality),
		State:       schema.StateCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(userContext) > 0 {
		rec.UserContext = make(map[string]any, len(userContext))
		for k, v := range userContext {
			rec.UserContext[k] = v
		}
	}

	// The created event and the learner start happen before any other
	// operation on the id can run, so a concurrent delete always finds the
	// task group to cancel.
	ctx = logging.WithWorkflowID(ctx, rec.ID)
	err = e.registry.InsertLocked(rec, func(snapshot *schema.WorkflowRecord) error {
		if err := e.fsm.Transition(ctx, rec.ID, stateNone, schema.StateCreated, map[string]any{
			"primary_goal": snapshot.Intent.PrimaryGoal,
			"criticality":  snapshot.Criticality,
		}); err != nil {
			return err
		}
		e.tracker.Track(rec.ID)
		e.persist(ctx, "save_workflow", func(p store.Persister) error { return p.SaveWorkflow(ctx, snapshot) })
		if err := e.learner.Start(ctx, snapshot); err != nil {
			e.logger.WarnContext(ctx, "pattern learning not started", "error", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	e.metrics.SetWorkflows(e.registry.Len())
	e.logger.InfoContext(ctx, "workflow created",
		"primary_goal", rec.Intent.PrimaryGoal, "variants", len(rec.Variants), "criticality", rec.Criticality)
	return rec.ID, nil
}

// Collapse scores the workflow's variants against execCtx, selects one,
// plans it, and moves the workflow to COLLAPSED.
func (e *Engine) Collapse(ctx context.Context, id string, execCtx schema.ExecutionContext) (schema.ExecutionPlan, error) {
	ctx = logging.WithWorkflowID(ctx, id)

	var plan schema.ExecutionPlan
	rec, err := e.registry.Update(id, func(rec *schema.WorkflowRecord) error {
		if err := e.fsm.Check(id, rec.State, schema.StateCollapsed); err != nil {
			return err
		}
		w, err := e.scorer.Weights(execCtx)
		if err != nil {
			return withWorkflow(err, id)
		}
		v, err := e.selector.Select(ctx, rec.Variants, w, rec.Intent)
		if err != nil {
			return withWorkflow(err, id)
		}

		now := e.now().UTC()
		plan = schema.ExecutionPlan{
			WorkflowID:  id,
			Variant:     v.Type,
			Criticality: rec.Criticality,
			Steps:       planner.PlanFor(v, rec.Intent, rec.Criticality),
			CreatedAt:   now,
		}
		snapshot := execCtx.Clone()
		stored := plan.Clone()
		rec.SelectedVariant = &v
		rec.ExecutionPlan = &stored
		rec.ExecutionContext = &snapshot
		rec.CollapsedAt = &now
		rec.UpdatedAt = now

		if err := e.fsm.Transition(ctx, id, rec.State, schema.StateCollapsed, map[string]any{"variant": v.Type}); err != nil {
			return err
		}
		rec.State = schema.StateCollapsed
		e.persist(ctx, "save_workflow", func(p store.Persister) error { return p.SaveWorkflow(ctx, rec) })
		return nil
	})
	if err != nil {
		return schema.ExecutionPlan{}, err
	}

	e.metrics.RecordSelection(rec.SelectedVariant.Type)
	e.logger.InfoContext(ctx, "workflow collapsed", "variant", rec.SelectedVariant.Type, "steps", len(plan.Steps))
	return plan, nil
}

// RecordOutcome appends an execution outcome, recomputes fitness, and moves
// the workflow to EVOLVING. The workflow must have been collapsed: the
// tracker only knows collapsed workflows, so an outcome for a CREATED one
// fails with UNKNOWN_WORKFLOW. That error also carries the refused
// transition in its details under "lifecycle", "from" and "to".
func (e *Engine) RecordOutcome(ctx context.Context, id string, outcome schema.ExecutionOutcome) (schema.FitnessRecord, error) {
	ctx = logging.WithWorkflowID(ctx, id)
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = e.now().UTC()
	}

	var fitness schema.FitnessRecord
	_, err := e.registry.Update(id, func(rec *schema.WorkflowRecord) error {
		if rec.State == schema.StateCreated {
			return schema.NewError(schema.ErrCodeUnknownWorkflow, "workflow has not been collapsed").
				WithWorkflow(id).
				WithDetails(map[string]any{
					"state":     string(rec.State),
					"lifecycle": schema.ErrCodeInvalidTransition,
					"from":      string(rec.State),
					"to":        string(schema.StateEvolving),
				})
		}
		if err := e.fsm.Check(id, rec.State, schema.StateEvolving); err != nil {
			return err
		}

		fr, err := e.tracker.RecordOutcome(ctx, id, outcome)
		if err != nil {
			return err
		}
		fitness = fr

		e.fsm.Emit(ctx, id, schema.EventOutcomeRecorded, map[string]any{
			"success":       outcome.Success,
			"fitness_score": fr.FitnessScore,
		})
		if err := e.fsm.Transition(ctx, id, rec.State, schema.StateEvolving, map[string]any{
			"fitness_score":        fr.FitnessScore,
			"mutation_suggestions": fr.MutationSuggestions,
		}); err != nil {
			return err
		}
		rec.State = schema.StateEvolving
		rec.UpdatedAt = e.now().UTC()

		e.persist(ctx, "append_outcome", func(p store.Persister) error { return p.AppendOutcome(ctx, id, outcome) })
		e.persist(ctx, "save_fitness", func(p store.Persister) error { return p.SaveFitness(ctx, fr) })
		e.persist(ctx, "save_workflow", func(p store.Persister) error { return p.SaveWorkflow(ctx, rec) })
		return nil
	})
	if err != nil {
		return schema.FitnessRecord{}, err
	}

	e.metrics.RecordOutcome(outcome.Success, fitness.FitnessScore)
	e.logger.InfoContext(ctx, "outcome recorded",
		"success", outcome.Success, "fitness", fitness.FitnessScore, "suggestions", len(fitness.MutationSuggestions))
	return fitness, nil
}

// BuildSimulation assembles a simulation environment for the workflow. A
// collapsed workflow is simulated with its selected variant and stored plan;
// a workflow still in CREATED is previewed with the variant the default
// context would select.
func (e *Engine) BuildSimulation(ctx context.Context, id, scenario string) (schema.SimulationEnvironment, error) {
	ctx = logging.WithWorkflowID(ctx, id)

	var env schema.SimulationEnvironment
	err := e.registry.Locked(id, func(rec *schema.WorkflowRecord) error {
		variant, steps, err := e.simulationTarget(ctx, rec)
		if err != nil {
			return err
		}
		env, err = e.simulator.Build(ctx, id, variant, steps, scenario)
		if err != nil {
			return err
		}
		e.fsm.Emit(ctx, id, schema.EventSimulationBuilt, map[string]any{
			"sim_id":   env.ID,
			"scenario": env.Scenario,
			"variant":  env.Variant,
		})
		return nil
	})
	if err != nil {
		return schema.SimulationEnvironment{}, err
	}
	return env, nil
}

func (e *Engine) simulationTarget(ctx context.Context, rec *schema.WorkflowRecord) (schema.VariantType, []schema.Step, error) {
	if rec.SelectedVariant != nil && rec.ExecutionPlan != nil {
		return rec.SelectedVariant.Type, rec.ExecutionPlan.Steps, nil
	}
	w, err := e.scorer.Weights(schema.ExecutionContext{})
	if err != nil {
		return "", nil, withWorkflow(err, rec.ID)
	}
	v, err := e.selector.Select(ctx, rec.Variants, w, rec.Intent)
	if err != nil {
		return "", nil, withWorkflow(err, rec.ID)
	}
	return v.Type, planner.PlanFor(v, rec.Intent, rec.Criticality), nil
}

// GetSimulation returns a retained simulation environment.
func (e *Engine) GetSimulation(_ context.Context, simID string) (schema.SimulationEnvironment, error) {
	return e.simulator.Get(simID)
}

// ListSimulations returns the retained environments of a workflow, oldest first.
func (e *Engine) ListSimulations(_ context.Context, id string) ([]schema.SimulationEnvironment, error) {
	if _, err := e.registry.Get(id); err != nil {
		return nil, err
	}
	return e.simulator.ListFor(id), nil
}

// GetPatterns returns the best-effort learned patterns of a workflow.
// Derivations still in flight are reported as pending.
func (e *Engine) GetPatterns(_ context.Context, id string) (schema.PatternSet, error) {
	if _, err := e.registry.Get(id); err != nil {
		return schema.PatternSet{}, err
	}
	if set, ok := e.learner.Patterns(id); ok {
		return set, nil
	}
	set := schema.PatternSet{
		WorkflowID: id,
		Status:     make(map[schema.PatternKind]schema.PatternStatus, len(schema.PatternKinds)),
		Attempts:   make(map[schema.PatternKind]int, len(schema.PatternKinds)),
	}
	for _, k := range schema.PatternKinds {
		set.Status[k] = schema.PatternPending
	}
	return set, nil
}

// GetFitness returns the latest fitness record of a workflow.
func (e *Engine) GetFitness(_ context.Context, id string) (schema.FitnessRecord, error) {
	if _, err := e.registry.Get(id); err != nil {
		return schema.FitnessRecord{}, err
	}
	return e.tracker.Fitness(id)
}

// GetWorkflow returns a snapshot of the workflow record.
func (e *Engine) GetWorkflow(_ context.Context, id string) (*schema.WorkflowRecord, error) {
	return e.registry.Get(id)
}

// ListWorkflows returns snapshots of every workflow, oldest first.
func (e *Engine) ListWorkflows(_ context.Context) []*schema.WorkflowRecord {
	return e.registry.List()
}

// Events returns the workflow's lifecycle events after sequence since.
func (e *Engine) Events(ctx context.Context, id string, since int64) ([]*store.Event, error) {
	if _, err := e.registry.Get(id); err != nil {
		return nil, err
	}
	return e.events.GetEvents(ctx, id, since)
}

// DeleteWorkflow removes a workflow. Its learning group is cancelled and
// drained first, so no pattern write lands after deletion.
func (e *Engine) DeleteWorkflow(ctx context.Context, id string) error {
	ctx = logging.WithWorkflowID(ctx, id)

	err := e.registry.Delete(id, func(rec *schema.WorkflowRecord) error {
		e.learner.Cancel(id)
		e.tracker.Forget(id)
		dropped := e.simulator.ForgetWorkflow(id)

		e.fsm.Emit(ctx, id, schema.EventWorkflowDeleted, map[string]any{
			"state":       rec.State,
			"simulations": dropped,
		})
		e.persist(ctx, "delete_workflow", func(p store.Persister) error { return p.DeleteWorkflow(ctx, id) })
		return nil
	})
	if err != nil {
		return err
	}

	e.metrics.SetWorkflows(e.registry.Len())
	e.logger.InfoContext(ctx, "workflow deleted")
	return nil
}

// Close stops the simulation janitor and drains every learning group. The
// persister, if any, is owned by the caller and stays open.
func (e *Engine) Close() {
	e.simulator.Stop()
	e.learner.Close()
}

// onPatternUpdate persists a settled derivation and records it in the event
// log. It runs inside the workflow's learning group and must not take the
// registry lock: DeleteWorkflow holds it while draining the group.
func (e *Engine) onPatternUpdate(ctx context.Context, kind schema.PatternKind, set schema.PatternSet) {
	e.persist(ctx, "save_patterns", func(p store.Persister) error { return p.SavePatterns(ctx, set) })

	eventType := schema.EventPatternLearned
	if set.Status[kind] == schema.PatternFailed {
		eventType = schema.EventPatternFailed
	}
	e.fsm.Emit(ctx, set.WorkflowID, eventType, map[string]any{
		"kind":     kind,
		"attempts": set.Attempts[kind],
	})
}

// restore loads persisted workflows into the registry, reseeds fitness
// history, and resumes or restores learning. Failures are logged and the
// affected workflow is skipped or left with partial state.
func (e *Engine) restore(ctx context.Context) {
	recs, err := e.persister.LoadWorkflows(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "load persisted workflows", "error", err)
		return
	}

	for _, rec := range recs {
		wctx := logging.WithWorkflowID(ctx, rec.ID)
		if err := e.registry.Insert(rec); err != nil {
			e.logger.WarnContext(wctx, "skip persisted workflow", "error", err)
			continue
		}
		e.checkEventLog(wctx, rec)

		outcomes, err := e.persister.RecentOutcomes(wctx, rec.ID, 0)
		if err != nil {
			e.logger.WarnContext(wctx, "load outcomes", "error", err)
			e.tracker.Track(rec.ID)
		} else if err := e.tracker.Seed(wctx, rec.ID, outcomes); err != nil {
			e.logger.WarnContext(wctx, "seed fitness", "error", err)
			e.tracker.Track(rec.ID)
		}

		set, err := e.persister.GetPatterns(wctx, rec.ID)
		switch {
		case err == nil && set.Complete():
			e.learner.Restore(*set)
		default:
			if err != nil && !schema.IsCode(err, schema.ErrCodeNotFound) {
				e.logger.WarnContext(wctx, "load patterns", "error", err)
			}
			if err := e.learner.Start(wctx, rec); err != nil {
				e.logger.WarnContext(wctx, "pattern learning not started", "error", err)
			}
		}
	}
	e.logger.InfoContext(ctx, "workflows restored", "count", e.registry.Len())
}

// checkEventLog warns when the persisted record disagrees with the state its
// event log replays to.
func (e *Engine) checkEventLog(ctx context.Context, rec *schema.WorkflowRecord) {
	events, err := e.persister.GetEvents(ctx, rec.ID, 0)
	if err != nil || len(events) == 0 {
		return
	}
	state, deleted, err := store.ReplayLifecycle(rec.ID, events)
	if err != nil {
		e.logger.WarnContext(ctx, "replay event log", "error", err)
		return
	}
	if deleted || state != rec.State {
		e.logger.WarnContext(ctx, "event log disagrees with stored state",
			"stored", rec.State, "replayed", state, "deleted", deleted)
	}
}

// persist runs a write against the persister behind its operation's
// circuit. Failures are logged, never returned.
func (e *Engine) persist(ctx context.Context, op string, write func(store.Persister) error) {
	if e.persister == nil {
		return
	}
	if !e.breakers.allow(op) {
		e.logger.DebugContext(ctx, "persist skipped, circuit open", "op", op)
		return
	}
	err := write(e.persister)
	state := e.breakers.record(op, err)
	if err != nil {
		e.logger.WarnContext(ctx, "persist failed", "op", op, "circuit", state.String(), "error", err)
	}
}

// withWorkflow attaches id to a FlowError that does not carry one yet.
func withWorkflow(err error, id string) error {
	var fe *schema.FlowError
	if errors.As(err, &fe) && fe.WorkflowID == "" {
		fe.WorkflowID = id
	}
	return err
}
