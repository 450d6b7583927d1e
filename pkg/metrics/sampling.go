package metrics

import (
	"math"
	"sync/atomic"
)

// SamplingObserver forwards roughly rate of the events it sees. Events whose
// name is in keep always pass, so escalations are never sampled away.
type SamplingObserver struct {
	inner   Observer
	every   uint64
	counter atomic.Uint64
	keep    map[string]bool
}

// NewSamplingObserver clamps rate to [0, 1]. A rate of 0 forwards only the
// kept events.
func NewSamplingObserver(inner Observer, rate float64, keep ...string) *SamplingObserver {
	s := &SamplingObserver{inner: inner, keep: make(map[string]bool, len(keep))}
	for _, name := range keep {
		s.keep[name] = true
	}
	switch {
	case rate >= 1:
		s.every = 1
	case rate > 0:
		s.every = max(uint64(math.Round(1/rate)), 1)
	}
	return s
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	if s.keep[ev.Name] {
		s.inner.RecordEvent(ev)
		return
	}
	if s.every == 0 {
		return
	}
	if s.every == 1 || s.counter.Add(1)%s.every == 0 {
		s.inner.RecordEvent(ev)
	}
}
