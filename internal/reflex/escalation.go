package reflex

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Thunderblok/thunderline-sub016/internal/bus"
	"github.com/Thunderblok/thunderline-sub016/internal/config"
	"github.com/Thunderblok/thunderline-sub016/internal/telemetry"
)

// #region severity

// classify grades an escalation event against the configured thresholds.
func classify(th config.Thresholds, m Metrics) Severity {
	switch {
	case m.Entropy > th.EntropyCritical && m.LambdaHat > th.LambdaCritical:
		return SeverityCritical
	case m.Entropy > th.EntropyHigh || m.LambdaHat > th.LambdaCritical:
		return SeverityHigh
	case m.LambdaHat > th.LambdaMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// evolutionProfile picks the evolution strategy for the measured regime.
func evolutionProfile(m Metrics) string {
	switch {
	case m.Entropy > 0.8:
		return "resilient"
	case m.LambdaHat > 0.25 && m.LambdaHat < 0.3:
		return "explorer"
	case m.Entropy < 0.3:
		return "aggressive"
	default:
		return "balanced"
	}
}

// #endregion severity

// #region escalation

// Escalation is the second dispatcher tier: severity grading, GC
// triggering, evolution enqueueing, and emergency/cascade signaling.
type Escalation struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	broker  *bus.Bus
	backend Backend

	// gc tracks in-flight GC runs so Run can drain them on shutdown.
	gc sync.WaitGroup
}

// NewEscalation creates the tier.
func NewEscalation(cfg config.Config, logger *slog.Logger, metrics *telemetry.Metrics, broker *bus.Bus, backend Backend) *Escalation {
	return &Escalation{
		cfg:     cfg,
		logger:  logger.With("component", "reflex.escalation"),
		metrics: metrics,
		broker:  broker,
		backend: backend,
	}
}

// Run consumes the reflex-event stream until ctx is canceled, then
// waits for in-flight GC runs.
func (e *Escalation) Run(ctx context.Context) error {
	sub := e.broker.Subscribe(bus.TopicReflex, bus.TopicReflexTriggered, bus.TopicReflexChunk)
	defer sub.Unsubscribe()
	defer e.gc.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-sub.C():
			ev, ok := eventFrom(msg)
			if !ok || Route(ev.Trigger) != TierEscalation {
				continue
			}
			e.handle(ctx, ev)
		}
	}
}

func (e *Escalation) handle(ctx context.Context, ev Event) {
	e.metrics.ReflexEventsTotal.WithLabelValues(string(TierEscalation), string(ev.Trigger)).Inc()
	sev := classify(e.cfg.Thresholds, ev.metrics())

	switch ev.Trigger {
	case TriggerChaosSpike:
		if sev == SeverityHigh || sev == SeverityCritical {
			e.triggerGC(ctx, ev)
		}
		if sev == SeverityCritical {
			e.emitEmergency(ev)
			e.enqueueEvolution(ctx, ev)
		}
	case TriggerCriticalThreshold:
		e.triggerGC(ctx, ev)
		e.emitEmergency(ev)
	case TriggerEvolutionNeeded:
		e.enqueueEvolution(ctx, ev)
	case TriggerCascadeRisk:
		e.broker.Publish(bus.TopicCascadeWarning, CascadeWarning{
			BitID:          ev.BitID,
			CascadeRisk:    true,
			AffectedRegion: ev.Data.AffectedRegion,
		})
		if sev == SeverityCritical {
			e.broker.Publish(bus.TopicContainmentRequest, ContainmentRequest{
				BitID:         ev.BitID,
				ChunkID:       ev.Data.ChunkID,
				Action:        "freeze",
				DurationTicks: e.cfg.Runtime.ContainmentTicks,
			})
			e.metrics.ContainmentsTotal.Inc()
		}
	}

	e.logger.Debug("escalation handled",
		"trigger", ev.Trigger, "bit_id", ev.BitID, "severity", sev)
}

func (e *Escalation) emitEmergency(ev Event) {
	e.broker.Publish(bus.TopicEmergency, Emergency{
		BitID:    ev.BitID,
		Trigger:  ev.Trigger,
		Metrics:  ev.metrics(),
		Severity: SeverityCritical,
	})
}

// triggerGC runs GC off the actor goroutine, monitored: the outcome is
// always logged and counted, never silently lost.
func (e *Escalation) triggerGC(ctx context.Context, ev Event) {
	if !e.backend.Capabilities(ctx).GC {
		e.logger.Info("gc unavailable, skipping", "trigger", ev.Trigger, "bit_id", ev.BitID)
		e.metrics.GCRunsTotal.WithLabelValues("unavailable").Inc()
		return
	}
	e.gc.Add(1)
	go func() {
		defer e.gc.Done()
		if err := e.backend.RunGC(ctx); err != nil {
			e.logger.Error("gc run failed", "trigger", ev.Trigger, "error", err)
			e.metrics.GCRunsTotal.WithLabelValues("failed").Inc()
			return
		}
		e.logger.Info("gc run completed", "trigger", ev.Trigger)
		e.metrics.GCRunsTotal.WithLabelValues("ok").Inc()
	}()
}

func (e *Escalation) enqueueEvolution(ctx context.Context, ev Event) {
	if !e.backend.Capabilities(ctx).Evolution {
		e.logger.Info("evolution unavailable, skipping", "trigger", ev.Trigger, "pac_id", ev.Data.PacID)
		return
	}
	job := EvolutionJob{
		PacID:         ev.Data.PacID,
		Profile:       evolutionProfile(ev.metrics()),
		FitnessWindow: e.cfg.Runtime.FitnessWindow,
		TriggeredBy:   TierEscalation,
		TriggerEvent:  ev.Trigger,
	}
	if err := e.backend.EnqueueEvolution(ctx, job); err != nil {
		e.logger.Error("evolution enqueue failed",
			"trigger", ev.Trigger, "pac_id", job.PacID, "profile", job.Profile, "error", err)
		return
	}
	e.metrics.EvolutionJobsTotal.WithLabelValues(job.Profile).Inc()
	e.logger.Info("evolution job enqueued",
		"pac_id", job.PacID, "profile", job.Profile, "trigger", ev.Trigger)
}

// #endregion escalation
