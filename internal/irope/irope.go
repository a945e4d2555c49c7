// Package irope provides the intervention library: pure, stateless
// transforms over a domain state that damp synchrony and chaos. Every
// transform returns an updated copy tagged with the applied action.
package irope

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// #region action

// Action identifies one intervention transform.
type Action string

const (
	ActionPhaseBias Action = "apply_phase_bias"
	ActionSternMode Action = "stern_mode"
	ActionThrottle  Action = "throttle"
	ActionBoost     Action = "boost"
	ActionStabilize Action = "stabilize"
)

// #endregion action

// #region domain-state

// DomainState is the mutable control surface of one domain. Omega is a
// frequency/gain value clamped to at least 0.1; Phi is a phase wrapped
// into [0,1) — not radians. Tick survives every intervention.
type DomainState struct {
	Omega          float64
	Phi            float64
	ProcessingRate float64
	Tick           int64

	SternMode      bool
	SternModeUntil int64

	AppliedAt time.Time
	Action    Action
}

// #endregion domain-state

// #region defaults

const (
	DefaultPhaseBiasDelta = 0.1
	DefaultPhaseBiasDecay = 0.9
	DefaultSternDecay     = 0.7
	DefaultSternDuration  = 10
	DefaultThrottleFactor = 0.5
	DefaultBoostFactor    = 1.5
	DefaultNotchWidth     = 0.1
	DefaultNotchDepth     = 0.5

	omegaFloor     = 0.1
	rateFloor      = 0.1
	rateCeil       = 2.0
	omegaBoostCeil = 1.0

	// ComputeStrength weighting: PLV contribution ramps from 0.6 to 1.0.
	strengthPLVFloor = 0.6
	strengthPLVRange = 0.4
)

// #endregion defaults

// #region phase-bias

// ApplyPhaseBias damps omega and shifts phase. delta <= 0 and decay <= 0
// select the defaults.
func ApplyPhaseBias(state DomainState, delta, decay float64) DomainState {
	if delta <= 0 {
		delta = DefaultPhaseBiasDelta
	}
	if decay <= 0 {
		decay = DefaultPhaseBiasDecay
	}
	state.Omega = math.Max(state.Omega*decay, omegaFloor)
	state.Phi = wrapPhase(state.Phi + delta)
	return tag(state, ActionPhaseBias)
}

// #endregion phase-bias

// #region stern-mode

// EnterSternMode applies the aggressive regime: stronger omega decay and
// a larger randomized phase jump, time-boxed to durationTicks from the
// state's current tick.
func EnterSternMode(state DomainState, durationTicks int64) DomainState {
	if durationTicks <= 0 {
		durationTicks = DefaultSternDuration
	}
	state.Omega = math.Max(state.Omega*DefaultSternDecay, omegaFloor)
	state.Phi = wrapPhase(state.Phi + 0.2 + rand.Float64()*0.3)
	state.SternMode = true
	state.SternModeUntil = state.Tick + durationTicks
	return tag(state, ActionSternMode)
}

// ShouldExitSternMode reports whether the stern window expired or the
// PLV dropped below exitPLV, whichever comes first.
func ShouldExitSternMode(state DomainState, currentPLV, exitPLV float64) bool {
	if !state.SternMode {
		return false
	}
	return state.Tick >= state.SternModeUntil || currentPLV < exitPLV
}

// #endregion stern-mode

// #region frequency-notch

// FrequencyNotch attenuates activations around a normalized center
// frequency: each element is scaled by 1 - depth·gaussian(f; center,
// width), with f = i/len. A pure numeric transform, not a state change.
func FrequencyNotch(activations []float64, center, width, depth float64) []float64 {
	if width <= 0 {
		width = DefaultNotchWidth
	}
	if depth <= 0 {
		depth = DefaultNotchDepth
	}
	n := len(activations)
	out := make([]float64, n)
	for i, v := range activations {
		f := float64(i) / float64(n)
		g := math.Exp(-(f - center) * (f - center) / (2 * width * width))
		out[i] = v * (1 - depth*g)
	}
	return out
}

// #endregion frequency-notch

// #region throttle-boost

// Throttle scales processing rate down, floored at 0.1.
func Throttle(state DomainState, factor float64) DomainState {
	if factor <= 0 {
		factor = DefaultThrottleFactor
	}
	state.ProcessingRate = math.Max(state.ProcessingRate*factor, rateFloor)
	return tag(state, ActionThrottle)
}

// Boost scales processing rate up, capped at 2.0, and nudges omega up by
// 10%, capped at 1.0.
func Boost(state DomainState, factor float64) DomainState {
	if factor <= 0 {
		factor = DefaultBoostFactor
	}
	state.ProcessingRate = math.Min(state.ProcessingRate*factor, rateCeil)
	state.Omega = math.Min(state.Omega*1.1, omegaBoostCeil)
	return tag(state, ActionBoost)
}

// #endregion throttle-boost

// #region stabilize

// Stabilize contracts omega by 0.8 and adds small uniform phase noise
// (at most 0.05) to break deterministic attractors.
func Stabilize(state DomainState) DomainState {
	state.Omega = math.Max(state.Omega*0.8, omegaFloor)
	state.Phi = wrapPhase(state.Phi + rand.Float64()*0.05)
	return tag(state, ActionStabilize)
}

// #endregion stabilize

// #region strength

// ComputeStrength scores how strongly to intervene from the three
// observables: 0.5·max(0,(plv-0.6)/0.4) + 0.3·|σ-1| + 0.2·max(0,λ),
// clamped to 1.0.
func ComputeStrength(plv, sigma, lambda float64) float64 {
	plvTerm := (plv - strengthPLVFloor) / strengthPLVRange
	if plvTerm < 0 {
		plvTerm = 0
	}
	lambdaTerm := lambda
	if lambdaTerm < 0 {
		lambdaTerm = 0
	}
	s := 0.5*plvTerm + 0.3*math.Abs(sigma-1) + 0.2*lambdaTerm
	if s > 1 {
		s = 1
	}
	return s
}

// #endregion strength

// #region callback

// Callback transforms a domain state in response to an action.
type Callback func(action Action, state DomainState) DomainState

// DefaultCallback returns the standard dispatch: each known action maps
// to its transform with default parameters; unknown actions are a no-op
// and logged.
func DefaultCallback(logger *slog.Logger) Callback {
	return func(action Action, state DomainState) DomainState {
		switch action {
		case ActionPhaseBias:
			return ApplyPhaseBias(state, 0, 0)
		case ActionSternMode:
			return EnterSternMode(state, 0)
		case ActionThrottle:
			return Throttle(state, 0)
		case ActionBoost:
			return Boost(state, 0)
		case ActionStabilize:
			return Stabilize(state)
		default:
			logger.Warn("unknown intervention action, skipping", "action", string(action))
			return state
		}
	}
}

// #endregion callback

// #region helpers

// wrapPhase wraps into [0,1) under mod-1 semantics.
func wrapPhase(phi float64) float64 {
	phi = math.Mod(phi, 1.0)
	if phi < 0 {
		phi += 1.0
	}
	return phi
}

func tag(state DomainState, action Action) DomainState {
	state.Action = action
	state.AppliedAt = time.Now().UTC()
	return state
}

// #endregion helpers
