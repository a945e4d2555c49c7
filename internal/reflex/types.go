// Package reflex implements the three-tier reflex dispatcher:
// Stabilization, Escalation, and Delegation actors consuming a shared
// reflex-event stream, each handling its own trigger partition.
package reflex

// #region event

// Trigger identifies the condition that produced a reflex event.
type Trigger string

const (
	TriggerLowStability      Trigger = "low_stability"
	TriggerTrustBoost        Trigger = "trust_boost"
	TriggerRecovery          Trigger = "recovery"
	TriggerStabilize         Trigger = "stabilize"
	TriggerChaosSpike        Trigger = "chaos_spike"
	TriggerCriticalThreshold Trigger = "critical_threshold"
	TriggerEvolutionNeeded   Trigger = "evolution_needed"
	TriggerCascadeRisk       Trigger = "cascade_risk"
	TriggerComplexDecision   Trigger = "complex_decision"
	TriggerCrossDomain       Trigger = "cross_domain"
	TriggerSagaRequired      Trigger = "saga_required"
	TriggerQuarantineNeeded  Trigger = "quarantine_needed"
)

// EventData carries the per-entity criticality measurements attached to
// a reflex event. Optional identifiers are empty when absent.
type EventData struct {
	Entropy           float64
	LambdaHat         float64
	ChunkID           string
	PacID             string
	AffectedRegion    string
	PersistenceNeeded bool
}

// Event is one immutable reflex message. An empty Trigger is valid and
// routes to the Stabilization safety net.
type Event struct {
	ID      string
	Trigger Trigger
	BitID   string
	Data    EventData
}

// Metrics is the measurement pair echoed into produced events.
type Metrics struct {
	Entropy   float64
	LambdaHat float64
}

func (e Event) metrics() Metrics {
	return Metrics{Entropy: e.Data.Entropy, LambdaHat: e.Data.LambdaHat}
}

// #endregion event

// #region severity

// Severity classifies an escalation event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// #endregion severity

// #region produced

// Acknowledgment confirms a stabilization response.
type Acknowledgment struct {
	OriginalTrigger Trigger
	BitID           string
	Handler         string
}

// Emergency reports a critical escalation.
type Emergency struct {
	BitID    string
	Trigger  Trigger
	Metrics  Metrics
	Severity Severity
}

// CascadeWarning reports cascade risk spreading from a region.
type CascadeWarning struct {
	BitID          string
	CascadeRisk    bool
	AffectedRegion string
}

// ContainmentRequest asks the owner of a chunk to freeze it.
type ContainmentRequest struct {
	BitID         string
	ChunkID       string
	Action        string // always "freeze"
	DurationTicks int64
}

// QuarantineRequest asks the owner of a chunk to isolate it.
type QuarantineRequest struct {
	BitID         string
	ChunkID       string
	Reason        string
	Action        string // always "isolate"
	DurationTicks int64
}

// HeuristicDecision is the local fallback when no saga backend is
// available.
type HeuristicDecision struct {
	BitID    string
	Decision string
	Metrics  Metrics
	Fallback bool
}

// CrossDomainNotice is the per-domain broadcast produced for
// cross_domain events.
type CrossDomainNotice struct {
	BitID   string
	Domain  string
	Metrics Metrics
}

// #endregion produced
