// Package learning derives advisory temporal, trigger, and user-behavior
// patterns for workflows in supervised background task groups.
package learning

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rendis/adaptflow/internal/logging"
	"github.com/rendis/adaptflow/internal/metrics"
	"github.com/rendis/adaptflow/internal/randsrc"
	"github.com/rendis/adaptflow/internal/tuning"
	"github.com/rendis/adaptflow/pkg/schema"
)

// UpdateFunc is called after a derivation settles (ready or failed) with a
// snapshot of the workflow's patterns. It runs inside the task group, so
// Cancel does not return until every pending call has finished.
type UpdateFunc func(ctx context.Context, kind schema.PatternKind, set schema.PatternSet)

// Options configures a Learner. Zero values take defaults.
type Options struct {
	Timings  tuning.LearningTimings
	Random   randsrc.Source
	Now      func() time.Time
	Derivers map[schema.PatternKind]DeriveFunc
	OnUpdate UpdateFunc
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Learner runs one errgroup per workflow with a derivation per pattern
// kind. Derivations share a bounded pool across workflows, retry with
// backoff, and fail independently of each other.
type Learner struct {
	timings  tuning.LearningTimings
	derivers map[schema.PatternKind]DeriveFunc
	onUpdate UpdateFunc
	metrics  *metrics.Metrics
	logger   *slog.Logger
	pool     *Pool
	patterns *PatternStore

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Learner.
func New(opts Options) *Learner {
	if opts.Random == nil {
		opts.Random = randsrc.System{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timings.PoolSize == 0 && opts.Timings.Retry.MaxAttempts == 0 {
		opts.Timings = tuning.Defaults().Learning
	}

	derivers := map[schema.PatternKind]DeriveFunc{
		schema.PatternTemporal: DeriveTemporal(opts.Now),
		schema.PatternTrigger:  DeriveTrigger(opts.Random),
		schema.PatternUser:     DeriveUser(),
	}
	for k, fn := range opts.Derivers {
		derivers[k] = fn
	}

	return &Learner{
		timings:  opts.Timings,
		derivers: derivers,
		onUpdate: opts.OnUpdate,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		pool:     NewPool(opts.Timings.PoolSize),
		patterns: NewPatternStore(),
		tasks:    make(map[string]*task),
	}
}

// Start launches the task group for rec. The group outlives ctx's
// cancellation but keeps its values for log correlation; it stops on
// Cancel or Close.
func (l *Learner) Start(ctx context.Context, rec *schema.WorkflowRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrPoolShutdown
	}
	if _, running := l.tasks[rec.ID]; running {
		return schema.NewError(schema.ErrCodeLearningFailure, "learning already running").WithWorkflow(rec.ID)
	}

	token := l.patterns.Register(rec.ID)
	snapshot := rec.Clone()

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(logging.WithWorkflowID(ctx, rec.ID)))
	t := &task{cancel: cancel, done: make(chan struct{})}
	l.tasks[rec.ID] = t

	g, gctx := errgroup.WithContext(taskCtx)
	for _, kind := range schema.PatternKinds {
		derive := l.derivers[kind]
		g.Go(func() error {
			l.derive(gctx, snapshot, token, kind, derive)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		cancel()
		l.mu.Lock()
		if l.tasks[rec.ID] == t {
			delete(l.tasks, rec.ID)
		}
		l.mu.Unlock()
		close(t.done)
	}()
	return nil
}

// derive runs one derivation to completion: warm-up, attempts with backoff,
// and a final status. Errors never escape the group.
func (l *Learner) derive(ctx context.Context, rec *schema.WorkflowRecord, token uint64, kind schema.PatternKind, fn DeriveFunc) {
	ctx = logging.WithTask(ctx, "learn."+string(kind))

	if err := WaitForBackoff(ctx, l.timings.WarmUp.Std()); err != nil {
		return
	}

	policy := l.timings.Retry
	attempts := max(policy.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if !l.patterns.update(rec.ID, token, func(s *schema.PatternSet) { s.Attempts[kind] = attempt + 1 }) {
			l.metrics.RecordLearnerTask(kind, metrics.LearnDropped)
			return
		}

		lastErr = l.pool.Run(ctx, func(ctx context.Context) error {
			v, err := fn(ctx, rec)
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			return l.patterns.put(rec.ID, token, kind, v)
		})
		if lastErr == nil {
			l.metrics.RecordLearnerTask(kind, metrics.LearnReady)
			l.logger.DebugContext(ctx, "pattern derived", "kind", kind, "attempt", attempt+1)
			l.notify(ctx, rec.ID, kind)
			return
		}
		if ctx.Err() != nil || errors.Is(lastErr, errRevoked) || errors.Is(lastErr, ErrPoolShutdown) {
			l.metrics.RecordLearnerTask(kind, metrics.LearnDropped)
			return
		}

		if attempt+1 < attempts {
			l.metrics.RecordLearnerTask(kind, metrics.LearnRetry)
			delay := ComputeBackoff(policy, attempt)
			l.logger.WarnContext(ctx, "pattern derivation failed, retrying",
				"kind", kind, "attempt", attempt+1, "delay", delay, "error", lastErr)
			if err := WaitForBackoff(ctx, delay); err != nil {
				return
			}
		}
	}

	ferr := schema.NewErrorf(schema.ErrCodeLearningFailure,
		"%s derivation failed after %d attempts", kind, attempts).
		WithWorkflow(rec.ID).
		WithCause(lastErr).
		WithDetails(map[string]any{"kind": string(kind)})
	l.logger.ErrorContext(ctx, "pattern derivation failed", "error", ferr)

	if l.patterns.update(rec.ID, token, func(s *schema.PatternSet) { s.Status[kind] = schema.PatternFailed }) {
		l.metrics.RecordLearnerTask(kind, metrics.LearnFailed)
		l.notify(ctx, rec.ID, kind)
	}
}

func (l *Learner) notify(ctx context.Context, workflowID string, kind schema.PatternKind) {
	if l.onUpdate == nil {
		return
	}
	if set, ok := l.patterns.Get(workflowID); ok {
		l.onUpdate(ctx, kind, set)
	}
}

// Restore installs persisted patterns without starting a task group.
func (l *Learner) Restore(set schema.PatternSet) {
	l.patterns.Restore(set)
}

// Patterns returns a best-effort snapshot; derivations still in flight
// show as pending with nil patterns.
func (l *Learner) Patterns(workflowID string) (schema.PatternSet, bool) {
	return l.patterns.Get(workflowID)
}

// Running reports whether the workflow's task group has not yet exited.
func (l *Learner) Running(workflowID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.tasks[workflowID]
	return ok
}

// Wait blocks until the workflow's task group exits or ctx is done.
func (l *Learner) Wait(ctx context.Context, workflowID string) error {
	l.mu.Lock()
	t := l.tasks[workflowID]
	l.mu.Unlock()
	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the workflow's task group, waits for it to exit, then
// revokes its write token and drops its patterns.
func (l *Learner) Cancel(workflowID string) {
	l.mu.Lock()
	t := l.tasks[workflowID]
	l.mu.Unlock()

	if t != nil {
		t.cancel()
		<-t.done
	}
	l.patterns.Forget(workflowID)
}

// Stats returns the pool counters and the number of accepted pattern writes.
func (l *Learner) Stats() (PoolMetrics, int64) {
	return l.pool.Metrics(), l.patterns.Writes()
}

// Close cancels every task group, waits for them, and shuts the pool down.
func (l *Learner) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	tasks := make([]*task, 0, len(l.tasks))
	for _, t := range l.tasks {
		tasks = append(tasks, t)
	}
	l.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
	l.pool.Shutdown()
}
