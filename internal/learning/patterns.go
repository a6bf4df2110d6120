package learning

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rendis/adaptflow/pkg/schema"
)

// errRevoked is returned for writes whose registration token is no longer live.
var errRevoked = errors.New("pattern registration revoked")

// PatternStore holds learned patterns keyed by workflow id. Register hands
// out a token; writes carrying a token that is no longer current are
// dropped, so nothing lands after Forget.
type PatternStore struct {
	mu        sync.RWMutex
	entries   map[string]*patternEntry
	nextToken uint64
	writes    atomic.Int64
}

type patternEntry struct {
	token uint64
	set   schema.PatternSet
}

// NewPatternStore creates an empty store.
func NewPatternStore() *PatternStore {
	return &PatternStore{entries: make(map[string]*patternEntry)}
}

// Register creates a fresh all-pending entry for the workflow and returns
// its write token. Re-registering replaces the previous entry and revokes
// its token.
func (s *PatternStore) Register(workflowID string) uint64 {
	set := schema.PatternSet{
		WorkflowID: workflowID,
		Status:     make(map[schema.PatternKind]schema.PatternStatus, len(schema.PatternKinds)),
		Attempts:   make(map[schema.PatternKind]int, len(schema.PatternKinds)),
	}
	for _, k := range schema.PatternKinds {
		set.Status[k] = schema.PatternPending
	}
	return s.install(set)
}

// Restore installs a previously persisted set and returns its token.
func (s *PatternStore) Restore(set schema.PatternSet) uint64 {
	return s.install(set.Clone())
}

func (s *PatternStore) install(set schema.PatternSet) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextToken++
	s.entries[set.WorkflowID] = &patternEntry{token: s.nextToken, set: set}
	return s.nextToken
}

// put stores a derived pattern and marks its kind ready.
func (s *PatternStore) put(workflowID string, token uint64, kind schema.PatternKind, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[workflowID]
	if !ok || e.token != token {
		return errRevoked
	}

	switch kind {
	case schema.PatternTemporal:
		v, ok := value.(*schema.TemporalPattern)
		if !ok {
			return fmt.Errorf("temporal derivation returned %T", value)
		}
		e.set.Temporal = v
	case schema.PatternTrigger:
		v, ok := value.(*schema.TriggerPattern)
		if !ok {
			return fmt.Errorf("trigger derivation returned %T", value)
		}
		e.set.Trigger = v
	case schema.PatternUser:
		v, ok := value.(*schema.UserPattern)
		if !ok {
			return fmt.Errorf("user derivation returned %T", value)
		}
		e.set.User = v
	default:
		return fmt.Errorf("unknown pattern kind %q", kind)
	}
	e.set.Status[kind] = schema.PatternReady
	s.writes.Add(1)
	return nil
}

// update applies fn to the entry if token is still live.
func (s *PatternStore) update(workflowID string, token uint64, fn func(*schema.PatternSet)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[workflowID]
	if !ok || e.token != token {
		return false
	}
	fn(&e.set)
	return true
}

// Get returns a snapshot of the workflow's patterns.
func (s *PatternStore) Get(workflowID string) (schema.PatternSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[workflowID]
	if !ok {
		return schema.PatternSet{}, false
	}
	return e.set.Clone(), true
}

// Forget drops the entry and revokes its token.
func (s *PatternStore) Forget(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, workflowID)
}

// Writes returns the number of derived patterns accepted since creation.
func (s *PatternStore) Writes() int64 {
	return s.writes.Load()
}
