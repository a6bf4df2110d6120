package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/adaptflow/pkg/schema"
)

func newRecord(created time.Time) *schema.WorkflowRecord {
	return &schema.WorkflowRecord{
		ID:          uuid.New().String(),
		Description: "notify the team",
		Intent:      schema.IntentRecord{PrimaryGoal: schema.GoalNotification},
		Variants:    []schema.Variant{{Type: schema.VariantSpeed, Characteristics: []schema.Characteristic{schema.CharCachedResults}}},
		State:       schema.StateCreated,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestRegistry_InsertGet(t *testing.T) {
	r := NewRegistry()
	rec := newRecord(time.Now())
	require.NoError(t, r.Insert(rec))

	got, err := r.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, 1, r.Len())

	err = r.Insert(rec)
	assert.True(t, schema.IsCode(err, schema.ErrCodeStore), "duplicate ids are rejected")
}

func TestRegistry_InsertLockedBlocksOtherOperations(t *testing.T) {
	r := NewRegistry()
	rec := newRecord(time.Now())

	deleted := make(chan error, 1)
	require.NoError(t, r.InsertLocked(rec, func(w *schema.WorkflowRecord) error {
		assert.Equal(t, rec.ID, w.ID)
		go func() { deleted <- r.Delete(rec.ID, nil) }()
		select {
		case err := <-deleted:
			t.Errorf("delete completed before insert finished: %v", err)
		case <-time.After(20 * time.Millisecond):
		}
		return nil
	}))

	select {
	case err := <-deleted:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("delete never ran")
	}
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_InsertLockedDiscardsOnFailure(t *testing.T) {
	r := NewRegistry()
	rec := newRecord(time.Now())

	err := r.InsertLocked(rec, func(*schema.WorkflowRecord) error { return errors.New("boom") })
	require.EqualError(t, err, "boom")

	_, err = r.Get(rec.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnknownWorkflow))
	assert.Equal(t, 0, r.Len())
	require.NoError(t, r.Insert(rec), "the id is free again")
}

func TestRegistry_SnapshotsAreIsolated(t *testing.T) {
	r := NewRegistry()
	rec := newRecord(time.Now())
	require.NoError(t, r.Insert(rec))

	rec.Variants[0].Characteristics[0] = "tampered-after-insert"
	snap, err := r.Get(rec.ID)
	require.NoError(t, err)
	snap.Variants[0].Characteristics[0] = "tampered-snapshot"

	again, err := r.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.CharCachedResults, again.Variants[0].Characteristics[0])
}

func TestRegistry_GetUnknown(t *testing.T) {
	_, err := NewRegistry().Get("nope")
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeUnknownWorkflow, fe.Code)
	assert.Equal(t, "nope", fe.WorkflowID)
}

func TestRegistry_UpdateCommitsOnSuccessOnly(t *testing.T) {
	r := NewRegistry()
	rec := newRecord(time.Now())
	require.NoError(t, r.Insert(rec))

	_, err := r.Update(rec.ID, func(w *schema.WorkflowRecord) error {
		w.State = schema.StateCollapsed
		return errors.New("rejected")
	})
	require.Error(t, err)
	got, _ := r.Get(rec.ID)
	assert.Equal(t, schema.StateCreated, got.State)

	updated, err := r.Update(rec.ID, func(w *schema.WorkflowRecord) error {
		w.State = schema.StateCollapsed
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, schema.StateCollapsed, updated.State)
	got, _ = r.Get(rec.ID)
	assert.Equal(t, schema.StateCollapsed, got.State)
}

func TestRegistry_UpdateSerializesPerWorkflow(t *testing.T) {
	r := NewRegistry()
	rec := newRecord(time.Now())
	rec.UserContext = map[string]any{"count": 0}
	require.NoError(t, r.Insert(rec))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Update(rec.ID, func(w *schema.WorkflowRecord) error {
				w.UserContext["count"] = w.UserContext["count"].(int) + 1
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, _ := r.Get(rec.ID)
	assert.Equal(t, 100, got.UserContext["count"])
}

func TestRegistry_Delete(t *testing.T) {
	r := NewRegistry()
	rec := newRecord(time.Now())
	require.NoError(t, r.Insert(rec))

	err := r.Delete(rec.ID, func(*schema.WorkflowRecord) error { return errors.New("busy") })
	require.Error(t, err)
	_, err = r.Get(rec.ID)
	require.NoError(t, err, "failed teardown keeps the record")

	var sawID string
	require.NoError(t, r.Delete(rec.ID, func(w *schema.WorkflowRecord) error {
		sawID = w.ID
		return nil
	}))
	assert.Equal(t, rec.ID, sawID)
	assert.Equal(t, 0, r.Len())

	_, err = r.Update(rec.ID, func(*schema.WorkflowRecord) error { return nil })
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnknownWorkflow))
	assert.True(t, schema.IsCode(r.Delete(rec.ID, nil), schema.ErrCodeUnknownWorkflow))
	assert.True(t, schema.IsCode(r.Locked(rec.ID, func(*schema.WorkflowRecord) error { return nil }), schema.ErrCodeUnknownWorkflow))
}

func TestRegistry_ListOrdered(t *testing.T) {
	r := NewRegistry()
	base := time.Now()
	late := newRecord(base.Add(time.Minute))
	early := newRecord(base)
	require.NoError(t, r.Insert(late))
	require.NoError(t, r.Insert(early))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, early.ID, list[0].ID)
	assert.Equal(t, late.ID, list[1].ID)
}
