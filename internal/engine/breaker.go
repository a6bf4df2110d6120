package engine

import (
	"sync"
	"time"
)

// BreakerState is the state of a persistence circuit.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // writes flow
	BreakerOpen                         // writes skipped
	BreakerHalfOpen                     // one probe write allowed
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures when a failing persister stops receiving writes.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that open the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a probe write is let through.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the default persistence breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

type breaker struct {
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// persistBreakers tracks one circuit per store operation, so a broken
// outcomes table does not silence workflow saves.
type persistBreakers struct {
	mu       sync.Mutex
	config   BreakerConfig
	now      func() time.Time
	breakers map[string]*breaker
}

func newPersistBreakers(config BreakerConfig, now func() time.Time) *persistBreakers {
	if config.FailureThreshold <= 0 {
		config = DefaultBreakerConfig()
	}
	return &persistBreakers{
		config:   config,
		now:      now,
		breakers: make(map[string]*breaker),
	}
}

// allow reports whether a write for op should be attempted.
func (p *persistBreakers) allow(op string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.get(op)

	switch b.state {
	case BreakerOpen:
		if p.now().Sub(b.openedAt) < p.config.Cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.probing = true
		return true
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return true
}

// record updates op's circuit with the result of a write and returns the
// resulting state.
func (p *persistBreakers) record(op string, err error) BreakerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.get(op)
	b.probing = false

	if err == nil {
		b.state = BreakerClosed
		b.failures = 0
		return b.state
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= p.config.FailureThreshold {
		b.state = BreakerOpen
		b.openedAt = p.now()
	}
	return b.state
}

func (p *persistBreakers) state(op string) BreakerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.get(op).state
}

func (p *persistBreakers) get(op string) *breaker {
	b, ok := p.breakers[op]
	if !ok {
		b = &breaker{}
		p.breakers[op] = b
	}
	return b
}
