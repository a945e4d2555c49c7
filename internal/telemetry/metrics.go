// Package telemetry exposes the prometheus metric set for the reflex
// control loop. One Metrics value is shared by every actor; all metrics
// use the "reflex_" prefix.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// #region metrics

// Metrics holds the pre-registered counters and histograms emitted at
// every observation, alert, intervention, and dispatcher response.
//
// Thread safety: safe for concurrent use after creation.
type Metrics struct {
	// ObservationsTotal counts sampled observations by domain.
	ObservationsTotal *prometheus.CounterVec

	// AlertsTotal counts monitor alerts by domain and alert type.
	AlertsTotal *prometheus.CounterVec

	// InterventionsTotal counts suggested or applied interventions by action.
	InterventionsTotal *prometheus.CounterVec

	// CollectorFaultsTotal counts sampling collector faults by domain and kind.
	CollectorFaultsTotal *prometheus.CounterVec

	// SampleDuration records per-domain collector invocation duration.
	SampleDuration *prometheus.HistogramVec

	// ReflexEventsTotal counts dispatched reflex events by tier and trigger.
	ReflexEventsTotal *prometheus.CounterVec

	// GCRunsTotal counts GC trigger outcomes by status.
	GCRunsTotal *prometheus.CounterVec

	// EvolutionJobsTotal counts enqueued evolution jobs by profile.
	EvolutionJobsTotal *prometheus.CounterVec

	// SagasTotal counts saga starts by status.
	SagasTotal *prometheus.CounterVec

	// QuarantinesTotal counts quarantine requests.
	QuarantinesTotal prometheus.Counter

	// ContainmentsTotal counts preemptive containment requests.
	ContainmentsTotal prometheus.Counter

	// HeuristicDecisionsTotal counts delegation fallback decisions.
	HeuristicDecisionsTotal prometheus.Counter
}

// New creates the metric set and registers it on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ObservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reflex_observations_total",
			Help: "Sampled observations by domain.",
		}, []string{"domain"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reflex_alerts_total",
			Help: "Monitor alerts by domain and type.",
		}, []string{"domain", "alert"}),
		InterventionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reflex_interventions_total",
			Help: "Suggested or applied interventions by action.",
		}, []string{"action"}),
		CollectorFaultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reflex_collector_faults_total",
			Help: "Sampling collector faults by domain and kind.",
		}, []string{"domain", "kind"}),
		SampleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reflex_sample_duration_seconds",
			Help:    "Collector invocation duration by domain.",
			Buckets: prometheus.DefBuckets,
		}, []string{"domain"}),
		ReflexEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reflex_events_total",
			Help: "Dispatched reflex events by tier and trigger.",
		}, []string{"tier", "trigger"}),
		GCRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reflex_gc_runs_total",
			Help: "GC trigger outcomes by status.",
		}, []string{"status"}),
		EvolutionJobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reflex_evolution_jobs_total",
			Help: "Enqueued evolution jobs by profile.",
		}, []string{"profile"}),
		SagasTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reflex_sagas_total",
			Help: "Saga starts by status.",
		}, []string{"status"}),
		QuarantinesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reflex_quarantines_total",
			Help: "Quarantine requests emitted.",
		}),
		ContainmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reflex_containments_total",
			Help: "Preemptive containment requests emitted.",
		}),
		HeuristicDecisionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reflex_heuristic_decisions_total",
			Help: "Delegation fallback decisions taken without a saga.",
		}),
	}

	reg.MustRegister(
		m.ObservationsTotal,
		m.AlertsTotal,
		m.InterventionsTotal,
		m.CollectorFaultsTotal,
		m.SampleDuration,
		m.ReflexEventsTotal,
		m.GCRunsTotal,
		m.EvolutionJobsTotal,
		m.SagasTotal,
		m.QuarantinesTotal,
		m.ContainmentsTotal,
		m.HeuristicDecisionsTotal,
	)
	return m
}

// NewNop creates an unregistered metric set for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// #endregion metrics
