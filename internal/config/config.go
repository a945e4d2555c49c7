package config

import "time"

// #region thresholds

// Thresholds consolidates every alert and escalation threshold into one
// immutable value passed at actor construction. The fields are independent
// knobs: the escalation entropy threshold and the PLV exit threshold are
// unrelated constants, not derived from one another.
type Thresholds struct {
	// Stream monitor alert thresholds.
	PLVLoop         float64 // PLV above this fires loop_detected
	SigmaAmplifying float64 // sigma above this fires degenerate_signal(amplifying)
	SigmaDecaying   float64 // sigma below this fires degenerate_signal(decaying)
	LambdaChaotic   float64 // lambda above this fires chaotic_drift
	RTauSpikeFactor float64 // rtau above factor*previous fires resonance_spike

	// Intervention thresholds.
	PLVExitStern float64 // PLV below this permits leaving stern mode

	// Escalation severity thresholds. Critical requires both critical
	// bounds exceeded; high needs entropy past its high bound or lambda
	// past critical; medium needs lambda past its medium bound.
	EntropyCritical float64
	LambdaCritical  float64
	EntropyHigh     float64
	LambdaMedium    float64

	// Delegation thresholds.
	EntropyWallSpread float64 // cross_domain entropy above this affects the wall set
}

// DefaultThresholds returns the calibrated production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PLVLoop:           0.9,
		SigmaAmplifying:   1.5,
		SigmaDecaying:     0.5,
		LambdaChaotic:     0.1,
		RTauSpikeFactor:   2.0,
		PLVExitStern:      0.6,
		EntropyCritical:   0.85,
		LambdaCritical:    0.8,
		EntropyHigh:       0.7,
		LambdaMedium:      0.6,
		EntropyWallSpread: 0.8,
	}
}

// #endregion thresholds

// #region runtime

// Runtime bundles capacities and cadences for the actors.
type Runtime struct {
	HistoryCapacity    int           // per-domain observation ring size
	ErrorLogCapacity   int           // sampling driver fault log size
	ObserveInterval    int64         // ticks between sampling passes
	CollectorDeadline  time.Duration // per-collector invocation deadline
	SternDurationTicks int64         // default stern mode window
	ContainmentTicks   int64         // containment freeze window
	QuarantineTicks    int64         // quarantine isolate window
	FitnessWindow      int64         // evolution job fitness window
	MailboxDepth       int           // bus subscriber mailbox depth
}

// DefaultRuntime returns the calibrated runtime parameters.
func DefaultRuntime() Runtime {
	return Runtime{
		HistoryCapacity:    100,
		ErrorLogCapacity:   100,
		ObserveInterval:    5,
		CollectorDeadline:  2 * time.Second,
		SternDurationTicks: 10,
		ContainmentTicks:   50,
		QuarantineTicks:    100,
		FitnessWindow:      20,
		MailboxDepth:       256,
	}
}

// #endregion runtime

// #region config

// Config is the full immutable configuration for the subsystem.
type Config struct {
	Thresholds Thresholds
	Runtime    Runtime
}

// Default returns the production configuration.
func Default() Config {
	return Config{
		Thresholds: DefaultThresholds(),
		Runtime:    DefaultRuntime(),
	}
}

// #endregion config
