package store

import (
	"sort"
	"sync"

	"github.com/rendis/adaptflow/pkg/schema"
)

// Registry is the canonical in-memory owner of workflow records. Each record
// has its own mutex, so operations on one workflow serialize without
// blocking others. Callers only ever see deep copies.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	rec     *schema.WorkflowRecord
	removed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Insert adds a new record. Ids must be unique for the registry lifetime of
// the record; inserting a live id fails.
func (r *Registry) Insert(rec *schema.WorkflowRecord) error {
	return r.InsertLocked(rec, nil)
}

// InsertLocked adds a new record and runs fn with the record's lock held.
// The record is published before fn runs, but every other operation on it
// blocks until fn returns. If fn fails the record is discarded.
func (r *Registry) InsertLocked(rec *schema.WorkflowRecord, fn func(rec *schema.WorkflowRecord) error) error {
	e := &entry{rec: rec.Clone()}
	e.mu.Lock()
	defer e.mu.Unlock()

	r.mu.Lock()
	if _, exists := r.entries[rec.ID]; exists {
		r.mu.Unlock()
		return schema.NewError(schema.ErrCodeStore, "workflow id already registered").WithWorkflow(rec.ID)
	}
	r.entries[rec.ID] = e
	r.mu.Unlock()

	if fn == nil {
		return nil
	}
	if err := fn(e.rec.Clone()); err != nil {
		e.removed = true
		r.mu.Lock()
		delete(r.entries, rec.ID)
		r.mu.Unlock()
		return err
	}
	return nil
}

// Get returns a snapshot of the record.
func (r *Registry) Get(id string) (*schema.WorkflowRecord, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, unknownWorkflow(id)
	}
	return e.rec.Clone(), nil
}

// List returns snapshots of every record ordered by creation time, then id.
func (r *Registry) List() []*schema.WorkflowRecord {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]*schema.WorkflowRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			out = append(out, e.rec.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of live records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Update runs fn on a working copy of the record while holding the
// workflow's lock. The copy replaces the record only if fn succeeds, so a
// failed operation leaves state unchanged. Returns a snapshot of the result.
func (r *Registry) Update(id string, fn func(rec *schema.WorkflowRecord) error) (*schema.WorkflowRecord, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, unknownWorkflow(id)
	}

	working := e.rec.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	e.rec = working
	return working.Clone(), nil
}

// Locked runs fn with the workflow's lock held and a snapshot of the record.
// Used by collaborators whose own state must change atomically with respect
// to the workflow, such as outcome history.
func (r *Registry) Locked(id string, fn func(rec *schema.WorkflowRecord) error) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return unknownWorkflow(id)
	}
	return fn(e.rec.Clone())
}

// Delete removes the record. fn, if non-nil, runs under the workflow's lock
// before removal so teardown cannot interleave with other operations on the
// same workflow. If fn fails the record stays.
func (r *Registry) Delete(id string, fn func(rec *schema.WorkflowRecord) error) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return unknownWorkflow(id)
	}
	if fn != nil {
		if err := fn(e.rec.Clone()); err != nil {
			return err
		}
	}
	e.removed = true

	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
	return nil
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, unknownWorkflow(id)
	}
	return e, nil
}

func unknownWorkflow(id string) *schema.FlowError {
	return schema.NewError(schema.ErrCodeUnknownWorkflow, "workflow not found").WithWorkflow(id)
}
