package store

import (
	"context"
	"sync"
	"time"

	"github.com/rendis/adaptflow/pkg/schema"
)

// MemoryEventLog is the in-process event log used when no persister is
// configured. Sequences are per workflow and start at 1.
type MemoryEventLog struct {
	mu     sync.Mutex
	nextID int64
	events map[string][]*Event
}

// NewMemoryEventLog creates an empty event log.
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{events: make(map[string][]*Event)}
}

// AppendEvent assigns the next sequence for the workflow and stores a copy.
func (l *MemoryEventLog) AppendEvent(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	event.ID = l.nextID
	event.Sequence = int64(len(l.events[event.WorkflowID]) + 1)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	cp := *event
	l.events[event.WorkflowID] = append(l.events[event.WorkflowID], &cp)
	return nil
}

// GetEvents returns events with sequence > since, in sequence order.
func (l *MemoryEventLog) GetEvents(ctx context.Context, workflowID string, since int64) ([]*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*Event
	for _, e := range l.events[workflowID] {
		if e.Sequence > since {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ReplayLifecycle folds a workflow's events into the lifecycle state they
// imply. Events must be contiguous from sequence 1. A log that ends in
// deletion reports deleted=true.
func ReplayLifecycle(workflowID string, events []*Event) (state schema.LifecycleState, deleted bool, err error) {
	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return "", false, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap: expected %d, got %d", expected, e.Sequence).WithWorkflow(workflowID)
		}

		switch e.Type {
		case schema.EventWorkflowCreated:
			state = schema.StateCreated
		case schema.EventWorkflowCollapsed:
			state = schema.StateCollapsed
		case schema.EventWorkflowEvolved:
			state = schema.StateEvolving
		case schema.EventWorkflowDeleted:
			deleted = true
		case schema.EventOutcomeRecorded, schema.EventPatternLearned, schema.EventPatternFailed,
			schema.EventSimulationBuilt, schema.EventSimulationEvicted:
			// Informational; no state change.
		}
	}
	return state, deleted, nil
}
