package observe

import "math/rand/v2"

// RandSource yields uniform draws in [0, 1).
//
// Implementations must be safe for concurrent use.
type RandSource interface {
	Float64() float64
}

// processRand is the process-wide source backed by math/rand/v2's global
// generator, which is seeded once and safe for concurrent use.
type processRand struct{}

func (processRand) Float64() float64 { return rand.Float64() }

// Sampler decides whether a log call proceeds past the sampling gate.
type Sampler struct {
	src RandSource
}

// NewSampler creates a sampler drawing from src. A nil src selects the
// process-wide source.
func NewSampler(src RandSource) *Sampler {
	if src == nil {
		src = processRand{}
	}
	return &Sampler{src: src}
}

// ShouldSample reports whether a call at the given rate is emitted.
// Rates at or above 1.0 always emit and rates at or below 0.0 never emit,
// in both cases without drawing. Otherwise one draw r is taken and r < rate
// decides.
func (s *Sampler) ShouldSample(rate float64) bool {
	if rate >= MaxSampleRate {
		return true
	}
	if rate <= MinSampleRate {
		return false
	}
	return s.src.Float64() < rate
}
