// Package randsrc provides the injectable random source used by trigger
// confidence scoring and simulation mock data.
package randsrc

import (
	"math/rand/v2"
	"sync"
)

// Source yields uniform floats in [0,1). Implementations must be safe for
// concurrent use.
type Source interface {
	Float64() float64
}

// Uniform returns a value drawn uniformly from [lo, hi).
func Uniform(src Source, lo, hi float64) float64 {
	return lo + src.Float64()*(hi-lo)
}

// PCG is a seedable Source backed by math/rand/v2's PCG generator.
type PCG struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPCG returns a Source that produces the same sequence for the same seed.
func NewPCG(seed1, seed2 uint64) *PCG {
	return &PCG{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

func (p *PCG) Float64() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}

// System is the process-global generator.
type System struct{}

func (System) Float64() float64 { return rand.Float64() }

// Sequence replays fixed values in a loop. Used by tests that need exact outputs.
type Sequence struct {
	mu     sync.Mutex
	values []float64
	next   int
}

// NewSequence returns a Source cycling through values. An empty list yields 0.
func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

var (
	_ Source = (*PCG)(nil)
	_ Source = System{}
	_ Source = (*Sequence)(nil)
)
