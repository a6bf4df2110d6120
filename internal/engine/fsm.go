package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/rendis/adaptflow/internal/store"
	"github.com/rendis/adaptflow/pkg/schema"
)

// TransitionHook is called before or after a lifecycle transition.
type TransitionHook func(workflowID string, from, to schema.LifecycleState) error

// EventAppender is satisfied by the memory event log and the libSQL store;
// used by the FSM to emit events on transitions.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// stateNone is the "from" state of a workflow that does not exist yet.
const stateNone schema.LifecycleState = ""

// ValidLifecycleTransitions defines the allowed lifecycle transitions.
// Evolving loops on itself: every further outcome is another evolution.
var ValidLifecycleTransitions = map[schema.LifecycleState][]schema.LifecycleState{
	stateNone:            {schema.StateCreated},
	schema.StateCreated:   {schema.StateCollapsed},
	schema.StateCollapsed: {schema.StateEvolving},
	schema.StateEvolving:  {schema.StateEvolving},
}

type hookKey struct {
	from, to schema.LifecycleState
}

// LifecycleFSM validates lifecycle transitions and records them in the
// event log. The event log is a secondary record: append failures are
// logged and do not undo a transition the registry already committed.
type LifecycleFSM struct {
	mu       sync.Mutex
	appender EventAppender
	logger   *slog.Logger
	before   map[hookKey][]TransitionHook
	after    map[hookKey][]TransitionHook
}

// NewLifecycleFSM creates an FSM that emits events via the given appender.
func NewLifecycleFSM(appender EventAppender, logger *slog.Logger) *LifecycleFSM {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleFSM{
		appender: appender,
		logger:   logger,
		before:   make(map[hookKey][]TransitionHook),
		after:    make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition. A failing before
// hook aborts the transition.
func (f *LifecycleFSM) OnBefore(from, to schema.LifecycleState, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *LifecycleFSM) OnAfter(from, to schema.LifecycleState, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Check returns an INVALID_LIFECYCLE_TRANSITION error if from -> to is not allowed.
func (f *LifecycleFSM) Check(workflowID string, from, to schema.LifecycleState) error {
	if isValidTransition(from, to) {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeInvalidTransition,
		"invalid lifecycle transition: %s -> %s", displayState(from), to).
		WithWorkflow(workflowID).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

// Transition validates and records a lifecycle transition. payload, if
// non-nil, is attached to the emitted event as JSON.
// The caller is responsible for committing the new state to the registry;
// the engine calls Transition while holding the workflow's lock so event
// order matches state order.
func (f *LifecycleFSM) Transition(ctx context.Context, workflowID string, from, to schema.LifecycleState, payload any) error {
	if err := f.Check(workflowID, from, to); err != nil {
		return err
	}

	f.mu.Lock()
	key := hookKey{from, to}
	before := append([]TransitionHook(nil), f.before[key]...)
	after := append([]TransitionHook(nil), f.after[key]...)
	f.mu.Unlock()

	for _, hook := range before {
		if err := hook(workflowID, from, to); err != nil {
			return err
		}
	}

	f.Emit(ctx, workflowID, lifecycleEventType(to), payload)

	for _, hook := range after {
		if err := hook(workflowID, from, to); err != nil {
			return err
		}
	}
	return nil
}

// Emit appends an informational event that does not change lifecycle state,
// such as outcome_recorded or workflow_deleted.
func (f *LifecycleFSM) Emit(ctx context.Context, workflowID, eventType string, payload any) {
	if f.appender == nil || eventType == "" {
		return
	}
	event := &store.Event{WorkflowID: workflowID, Type: eventType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			f.logger.Warn("encode event payload", "workflow_id", workflowID, "event", eventType, "error", err)
		} else {
			event.Payload = data
		}
	}
	if err := f.appender.AppendEvent(ctx, event); err != nil {
		f.logger.Warn("append lifecycle event", "workflow_id", workflowID, "event", eventType, "error", err)
	}
}

func isValidTransition(from, to schema.LifecycleState) bool {
	allowed, ok := ValidLifecycleTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func lifecycleEventType(to schema.LifecycleState) string {
	switch to {
	case schema.StateCreated:
		return schema.EventWorkflowCreated
	case schema.StateCollapsed:
		return schema.EventWorkflowCollapsed
	case schema.StateEvolving:
		return schema.EventWorkflowEvolved
	default:
		return ""
	}
}

func displayState(s schema.LifecycleState) string {
	if s == stateNone {
		return "none"
	}
	return string(s)
}
