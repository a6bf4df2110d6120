package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type manualClock struct{ t time.Time }

func (c *manualClock) Now() time.Time          { return c.t }
func (c *manualClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var errWrite = errors.New("write failed")

func TestPersistBreakers_OpensAfterThreshold(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)}
	b := newPersistBreakers(BreakerConfig{FailureThreshold: 3, Cooldown: 10 * time.Second}, clock.Now)

	assert.True(t, b.allow("save_workflow"))
	assert.Equal(t, BreakerClosed, b.record("save_workflow", errWrite))
	assert.Equal(t, BreakerClosed, b.record("save_workflow", errWrite))
	assert.Equal(t, BreakerOpen, b.record("save_workflow", errWrite))

	assert.False(t, b.allow("save_workflow"))
	// Other operations keep their own circuit.
	assert.True(t, b.allow("append_outcome"))
}

func TestPersistBreakers_SuccessResetsFailures(t *testing.T) {
	b := newPersistBreakers(BreakerConfig{FailureThreshold: 2, Cooldown: time.Second}, time.Now)

	b.record("op", errWrite)
	b.record("op", nil)
	assert.Equal(t, BreakerClosed, b.record("op", errWrite))
	assert.Equal(t, BreakerOpen, b.record("op", errWrite))
}

func TestPersistBreakers_HalfOpenProbe(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)}
	b := newPersistBreakers(BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Second}, clock.Now)

	b.record("op", errWrite)
	assert.False(t, b.allow("op"))

	clock.Advance(10 * time.Second)
	assert.True(t, b.allow("op"), "first call after cooldown probes")
	assert.Equal(t, BreakerHalfOpen, b.state("op"))
	assert.False(t, b.allow("op"), "only one probe at a time")

	// A failed probe reopens the circuit for another cooldown.
	assert.Equal(t, BreakerOpen, b.record("op", errWrite))
	assert.False(t, b.allow("op"))

	clock.Advance(10 * time.Second)
	assert.True(t, b.allow("op"))
	assert.Equal(t, BreakerClosed, b.record("op", nil))
	assert.True(t, b.allow("op"))
}

func TestPersistBreakers_DefaultConfig(t *testing.T) {
	b := newPersistBreakers(BreakerConfig{}, time.Now)
	assert.Equal(t, DefaultBreakerConfig(), b.config)
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half_open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}
