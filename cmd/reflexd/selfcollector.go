package main

import (
	"context"
	"math"
	"runtime"
	"sync"

	"github.com/Thunderblok/thunderline-sub016/internal/monitor"
)

// #region self-collector

const selfWindow = 16

// selfCollector samples the daemon's own allocation activity so the
// pipeline has one live domain even before external collectors register.
// Activations are normalized per-sample allocation deltas; entropy is a
// dispersion measure over the same window.
type selfCollector struct {
	mu          sync.Mutex
	lastAlloc   uint64
	deltas      []float64
	lastEntropy float64
}

func newSelfCollector() *selfCollector {
	return &selfCollector{}
}

func (s *selfCollector) collect(_ context.Context, _ int64) (monitor.ObservableInput, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s.mu.Lock()
	defer s.mu.Unlock()

	delta := float64(ms.TotalAlloc - s.lastAlloc)
	s.lastAlloc = ms.TotalAlloc
	s.deltas = append(s.deltas, delta)
	if len(s.deltas) > selfWindow {
		s.deltas = s.deltas[1:]
	}

	entropyPrev := s.lastEntropy
	entropyNext := dispersion(s.deltas)
	s.lastEntropy = entropyNext

	return monitor.ObservableInput{
		Activations: normalize(s.deltas),
		EntropyPrev: entropyPrev,
		EntropyNext: entropyNext,
	}, nil
}

// normalize maps the window into [0,1] by its maximum.
func normalize(vals []float64) []float64 {
	max := 0.0
	for _, v := range vals {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(vals))
	if max == 0 {
		return out
	}
	for i, v := range vals {
		out[i] = v / max
	}
	return out
}

// dispersion is the coefficient of variation squashed into [0,1).
func dispersion(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	cv := math.Sqrt(sq/float64(len(vals))) / mean
	return cv / (1 + cv)
}

// #endregion self-collector
