package monitor

import (
	"time"

	"github.com/Thunderblok/thunderline-sub016/internal/irope"
)

// #region band

// Band is the coarse health classification of one observation.
type Band string

const (
	BandHealthy  Band = "healthy"
	BandWatch    Band = "watch"
	BandCritical Band = "critical"
)

// Bands carries the per-observation classification.
type Bands struct {
	Overall Band
}

// #endregion band

// #region observation

// Observation is one sampled record for a domain. Immutable once
// created; appended to a bounded per-domain ring.
type Observation struct {
	Tick      int64
	Timestamp time.Time
	PLV       float64
	Sigma     float64
	Lambda    float64
	RTau      float64
	Bands     Bands
}

// #endregion observation

// #region observables

// ObservableInput is the raw material handed to the external observable
// computation collaborator.
type ObservableInput struct {
	Activations []float64
	EntropyPrev float64
	EntropyNext float64
	JVPMatrix   [][]float64
}

// Observables is the collaborator's output: the four scalars plus the
// band classification.
type Observables struct {
	PLV    float64
	Sigma  float64
	Lambda float64
	RTau   float64
	Bands  Bands
}

// ObservableComputer computes observables from raw activations. The
// implementation is an external collaborator; only this contract is
// fixed here.
type ObservableComputer interface {
	Compute(in ObservableInput) (Observables, error)
}

// #endregion observables

// #region alert

// AlertType enumerates the monitor's alert conditions.
type AlertType string

const (
	AlertLoopDetected     AlertType = "loop_detected"
	AlertDegenerateSignal AlertType = "degenerate_signal"
	AlertChaoticDrift     AlertType = "chaotic_drift"
	AlertResonanceSpike   AlertType = "resonance_spike"
)

// Alert is one threshold violation raised by an observation. Direction
// is set for degenerate_signal alerts: "amplifying" or "decaying".
type Alert struct {
	ID        string
	Domain    string
	Type      AlertType
	Direction string
	Value     float64
	Tick      int64
}

// #endregion alert

// #region results

// ObserveResult reports what one observation triggered. When no callback
// is registered for the domain, Intervention carries the suggested
// action so the caller can act on it directly.
type ObserveResult struct {
	Alerts          []Alert
	Intervention    irope.Action
	CallbackInvoked bool
	State           irope.DomainState
}

// Status is a read-only snapshot of one domain.
type Status struct {
	Domain          string
	LastObservation *Observation
	LastHealthy     time.Time
	HistoryLen      int
	State           irope.DomainState
}

// DomainSummary is one row of the monitor-wide summary.
type DomainSummary struct {
	Domain     string
	Band       Band
	AlertCount int64
	LastTick   int64
}

// #endregion results
