package submission

import (
	"math/rand"
	"sync"
)

// Sampler decides whether a submission is pulled into mandatory manual
// review. Kept as an interface so the sampling policy can be tuned or
// pinned in tests without touching the state machine.
type Sampler interface {
	Sample() bool
}

type randSampler struct {
	mu   sync.Mutex
	rate float64
	rng  *rand.Rand
}

// NewRandSampler returns a sampler selecting roughly rate of calls.
func NewRandSampler(rate float64, seed int64) Sampler {
	return &randSampler{
		rate: rate,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

func (s *randSampler) Sample() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.rate
}

// NeverSample is used in tests and when random review is disabled.
type NeverSample struct{}

func (NeverSample) Sample() bool { return false }

// AlwaysSample forces every submission into manual review.
type AlwaysSample struct{}

func (AlwaysSample) Sample() bool { return true }
