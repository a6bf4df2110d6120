// Package store owns workflow state: the in-memory registry that holds the
// canonical records, and the optional durable persister behind it.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rendis/adaptflow/pkg/schema"
)

// Persister is the optional durable backing for workflow state. Absence of
// a persister degrades to in-memory operation. Implementations must be safe
// for concurrent use.
type Persister interface {
	// Workflows
	SaveWorkflow(ctx context.Context, rec *schema.WorkflowRecord) error
	LoadWorkflows(ctx context.Context) ([]*schema.WorkflowRecord, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Outcomes (append-only) and fitness
	AppendOutcome(ctx context.Context, workflowID string, outcome schema.ExecutionOutcome) error
	RecentOutcomes(ctx context.Context, workflowID string, limit int) ([]schema.ExecutionOutcome, error)
	SaveFitness(ctx context.Context, rec schema.FitnessRecord) error
	GetFitness(ctx context.Context, workflowID string) (*schema.FitnessRecord, error)

	// Learned patterns
	SavePatterns(ctx context.Context, set schema.PatternSet) error
	GetPatterns(ctx context.Context, workflowID string) (*schema.PatternSet, error)

	// Lifecycle events
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, workflowID string, since int64) ([]*Event, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Event is an immutable entry in the lifecycle event log.
type Event struct {
	ID         int64           `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Type       string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}
