package observer

import (
	"errors"
	"math"

	"github.com/Thunderblok/thunderline-sub016/internal/config"
	"github.com/Thunderblok/thunderline-sub016/internal/loopdetect"
	"github.com/Thunderblok/thunderline-sub016/internal/lyapunov"
	"github.com/Thunderblok/thunderline-sub016/internal/monitor"
	"github.com/Thunderblok/thunderline-sub016/internal/plv"
)

// #region computer

// ErrEmptyActivations is returned when there is nothing to compute from.
var ErrEmptyActivations = errors.New("observer: empty activations")

// Computer is the in-process observable computation: PLV from the
// activation vector, sigma from the entropy transfer ratio, lambda from
// the JVP trajectory, rtau from activation energy, and a band
// classification against the configured thresholds. It satisfies the
// monitor's collaborator contract for deployments that do not inject an
// external engine.
type Computer struct {
	thresholds config.Thresholds
}

// NewComputer creates a computer classifying bands against thresholds.
func NewComputer(thresholds config.Thresholds) *Computer {
	return &Computer{thresholds: thresholds}
}

// Compute derives the four observables and the band from raw input.
func (c *Computer) Compute(in monitor.ObservableInput) (monitor.Observables, error) {
	if len(in.Activations) == 0 {
		return monitor.Observables{}, ErrEmptyActivations
	}

	out := monitor.Observables{
		PLV:   c.plv(in.Activations),
		Sigma: c.sigma(in),
		RTau:  c.rtau(in.Activations),
	}
	out.Lambda = c.lambda(in.JVPMatrix)
	out.Bands = c.classify(out, in.Activations)
	return out, nil
}

// plv treats each activation as a focus score. Estimation failure
// degrades to 0 synchrony.
func (c *Computer) plv(activations []float64) float64 {
	patterns := make([]plv.AttentionPattern, len(activations))
	for i, a := range activations {
		patterns[i] = plv.AttentionPattern{FocusScore: a}
	}
	v, err := plv.Estimate(patterns, plv.Options{})
	if err != nil {
		return 0
	}
	return v
}

// sigma is the entropy transfer ratio across the sampled step; a value
// of 1 means the signal neither amplifies nor decays.
func (c *Computer) sigma(in monitor.ObservableInput) float64 {
	if in.EntropyPrev <= 0 {
		return 1
	}
	return in.EntropyNext / in.EntropyPrev
}

// lambda estimates divergence from the JVP trajectory. Too few rows or a
// flat trajectory degrade to 0 (fail-safe: stable).
func (c *Computer) lambda(jvp [][]float64) float64 {
	v, err := lyapunov.Estimate(jvp, lyapunov.Options{Method: lyapunov.MethodSimple})
	if err != nil {
		return 0
	}
	return v
}

// rtau is the mean activation energy, the cross-layer resonance proxy.
func (c *Computer) rtau(activations []float64) float64 {
	var sum float64
	for _, a := range activations {
		sum += a * a
	}
	return math.Sqrt(sum / float64(len(activations)))
}

// classify derives the coarse band: thresholds breached and detected
// activation loops each push the band away from healthy.
func (c *Computer) classify(out monitor.Observables, activations []float64) monitor.Bands {
	breaches := 0
	if out.PLV > c.thresholds.PLVLoop {
		breaches++
	}
	if out.Sigma > c.thresholds.SigmaAmplifying || out.Sigma < c.thresholds.SigmaDecaying {
		breaches++
	}
	if out.Lambda > c.thresholds.LambdaChaotic {
		breaches++
	}
	if r, err := loopdetect.Detect(activations, loopdetect.Options{}); err == nil && r.Looping {
		breaches++
	}

	switch {
	case breaches == 0:
		return monitor.Bands{Overall: monitor.BandHealthy}
	case breaches == 1:
		return monitor.Bands{Overall: monitor.BandWatch}
	default:
		return monitor.Bands{Overall: monitor.BandCritical}
	}
}

// #endregion computer
