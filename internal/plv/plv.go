// Package plv estimates phase synchrony across attention patterns as a
// Phase Locking Value in [0,1].
//
// The hilbert and wavelet methods use intentionally simplified kernels
// (a short FIR approximation and a windowed Morlet convolution). Downstream
// threshold calibration assumes these approximations; do not replace them
// with exact FFT-based transforms.
package plv

import (
	"errors"
	"math"
)

// #region errors

var (
	// ErrInsufficientSamples is returned when fewer than two usable
	// samples are available.
	ErrInsufficientSamples = errors.New("plv: insufficient samples")

	// ErrDegenerateInput is returned when the input contains no finite
	// phase information.
	ErrDegenerateInput = errors.New("plv: degenerate input")
)

// #endregion errors

// #region pattern

// AttentionPattern is one phase-bearing observation. When Weights is
// non-empty the phase comes from its weighted circular mean; otherwise
// FocusScore in [0,1] maps linearly onto [0, 2π).
type AttentionPattern struct {
	Weights    []float64
	FocusScore float64
}

// #endregion pattern

// #region options

// Method selects the phase-extraction kernel.
type Method string

const (
	MethodSimple  Method = "simple"
	MethodHilbert Method = "hilbert"
	MethodWavelet Method = "wavelet"
)

const (
	hilbertMinSamples = 4
	waveletMinSamples = 8
)

// Options configures estimation. The zero value selects MethodSimple.
type Options struct {
	Method Method
}

// #endregion options

// #region estimate

// Estimate computes the PLV over the phase sequence derived from patterns.
// Requires at least two patterns. Methods that need more samples than
// provided fall back to MethodSimple.
func Estimate(patterns []AttentionPattern, opts Options) (float64, error) {
	if len(patterns) < 2 {
		return 0, ErrInsufficientSamples
	}
	phases, err := extractPhases(patterns, opts.Method)
	if err != nil {
		return 0, err
	}
	return FromPhases(phases)
}

// FromPhases computes the PLV of a raw phase sequence (radians):
// the magnitude of the mean resultant vector |mean(e^{iφ})|.
func FromPhases(phases []float64) (float64, error) {
	if len(phases) < 2 {
		return 0, ErrInsufficientSamples
	}
	var sumCos, sumSin float64
	n := 0
	for _, p := range phases {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			continue
		}
		sumCos += math.Cos(p)
		sumSin += math.Sin(p)
		n++
	}
	if n < 2 {
		return 0, ErrDegenerateInput
	}
	v := math.Hypot(sumCos, sumSin) / float64(n)
	return clamp01(v), nil
}

// Pairwise computes the PLV of the phase differences between two aligned
// pattern sequences. The shorter sequence bounds the comparison.
func Pairwise(a, b []AttentionPattern, opts Options) (float64, error) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0, ErrInsufficientSamples
	}
	pa, err := extractPhases(a[:n], opts.Method)
	if err != nil {
		return 0, err
	}
	pb, err := extractPhases(b[:n], opts.Method)
	if err != nil {
		return 0, err
	}
	diffs := make([]float64, n)
	for i := 0; i < n; i++ {
		diffs[i] = pa[i] - pb[i]
	}
	return FromPhases(diffs)
}

// #endregion estimate

// #region phase-extraction

// extractPhases derives one phase per pattern. Hilbert and wavelet
// kernels operate on the scalarized signal; both fall back to the simple
// mapping when the sequence is too short.
func extractPhases(patterns []AttentionPattern, method Method) ([]float64, error) {
	switch method {
	case MethodHilbert:
		if len(patterns) >= hilbertMinSamples {
			return hilbertPhases(scalarize(patterns)), nil
		}
	case MethodWavelet:
		if len(patterns) >= waveletMinSamples {
			return waveletPhases(scalarize(patterns)), nil
		}
	}
	phases := make([]float64, len(patterns))
	for i, p := range patterns {
		phases[i] = patternPhase(p)
	}
	return phases, nil
}

// patternPhase maps one pattern to a phase in radians.
func patternPhase(p AttentionPattern) float64 {
	if len(p.Weights) > 0 {
		n := float64(len(p.Weights))
		var sumCos, sumSin, total float64
		for i, w := range p.Weights {
			angle := 2 * math.Pi * float64(i) / n
			sumCos += w * math.Cos(angle)
			sumSin += w * math.Sin(angle)
			total += w
		}
		if total == 0 {
			return 0
		}
		return math.Atan2(sumSin, sumCos)
	}
	return clamp01(p.FocusScore) * 2 * math.Pi
}

// scalarize reduces patterns to a real signal for the FIR kernels.
func scalarize(patterns []AttentionPattern) []float64 {
	sig := make([]float64, len(patterns))
	for i, p := range patterns {
		if len(p.Weights) > 0 {
			// Center of mass of the weight distribution, normalized.
			var num, den float64
			for j, w := range p.Weights {
				num += w * float64(j)
				den += w
			}
			if den != 0 {
				sig[i] = num / den / float64(len(p.Weights))
			}
		} else {
			sig[i] = clamp01(p.FocusScore)
		}
	}
	return sig
}

// hilbertPhases extracts instantaneous phase with a 7-tap FIR
// approximation of the Hilbert transform (odd taps 2/(πk), zero-mean
// input). This is an approximation, not the analytic signal.
func hilbertPhases(signal []float64) []float64 {
	n := len(signal)
	centered := make([]float64, n)
	mean := 0.0
	for _, v := range signal {
		mean += v
	}
	mean /= float64(n)
	for i, v := range signal {
		centered[i] = v - mean
	}

	phases := make([]float64, n)
	for i := 0; i < n; i++ {
		var h float64
		for k := -3; k <= 3; k++ {
			if k%2 == 0 {
				continue
			}
			j := i + k
			if j < 0 || j >= n {
				continue
			}
			h += centered[j] * 2.0 / (math.Pi * float64(k))
		}
		phases[i] = math.Atan2(h, centered[i])
	}
	return phases
}

// waveletPhases extracts phase by convolving a short complex Morlet
// kernel (ω0=6, σ=1.5, half-width 4) against the zero-mean signal.
func waveletPhases(signal []float64) []float64 {
	const (
		omega0    = 6.0
		sigma     = 1.5
		halfWidth = 4
	)
	n := len(signal)
	centered := make([]float64, n)
	mean := 0.0
	for _, v := range signal {
		mean += v
	}
	mean /= float64(n)
	for i, v := range signal {
		centered[i] = v - mean
	}

	phases := make([]float64, n)
	for i := 0; i < n; i++ {
		var re, im float64
		for k := -halfWidth; k <= halfWidth; k++ {
			j := i + k
			if j < 0 || j >= n {
				continue
			}
			t := float64(k)
			env := math.Exp(-t * t / (2 * sigma * sigma))
			re += centered[j] * env * math.Cos(omega0*t/sigma)
			im += centered[j] * env * math.Sin(omega0*t/sigma)
		}
		phases[i] = math.Atan2(im, re)
	}
	return phases
}

// #endregion phase-extraction

// #region helpers

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
