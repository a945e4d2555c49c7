package reflex

import (
	"context"
	"log/slog"

	"github.com/Thunderblok/thunderline-sub016/internal/bus"
	"github.com/Thunderblok/thunderline-sub016/internal/config"
	"github.com/Thunderblok/thunderline-sub016/internal/telemetry"
)

// #region traits

// TraitDeltas is one stabilization adjustment to a PAC's traits.
type TraitDeltas struct {
	Stability  float64
	Plasticity float64
	Trust      float64
}

// TraitApplier applies trait deltas to a PAC. Implementations live
// outside this subsystem; a nil applier skips application with a log.
type TraitApplier interface {
	ApplyTraitDeltas(ctx context.Context, pacID string, deltas TraitDeltas) error
}

// #endregion traits

// #region stabilization

// Stabilization is the first dispatcher tier. It also absorbs events
// with unknown or missing triggers as the routing safety net.
type Stabilization struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	broker  *bus.Bus
	traits  TraitApplier
}

// NewStabilization creates the tier. traits may be nil.
func NewStabilization(cfg config.Config, logger *slog.Logger, metrics *telemetry.Metrics, broker *bus.Bus, traits TraitApplier) *Stabilization {
	return &Stabilization{
		cfg:     cfg,
		logger:  logger.With("component", "reflex.stabilization"),
		metrics: metrics,
		broker:  broker,
		traits:  traits,
	}
}

// Run consumes the reflex-event stream until ctx is canceled.
func (s *Stabilization) Run(ctx context.Context) error {
	sub := s.broker.Subscribe(bus.TopicReflex, bus.TopicReflexTriggered, bus.TopicReflexChunk)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-sub.C():
			ev, ok := eventFrom(msg)
			if !ok || Route(ev.Trigger) != TierStabilization {
				continue
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Stabilization) handle(ctx context.Context, ev Event) {
	s.metrics.ReflexEventsTotal.WithLabelValues(string(TierStabilization), string(ev.Trigger)).Inc()

	deltas := s.computeDeltas(ev)
	if ev.Data.PacID != "" {
		if s.traits == nil {
			s.logger.Info("no trait applier registered, skipping adjustment",
				"pac_id", ev.Data.PacID, "trigger", ev.Trigger)
		} else if err := s.traits.ApplyTraitDeltas(ctx, ev.Data.PacID, deltas); err != nil {
			s.logger.Error("trait adjustment failed",
				"pac_id", ev.Data.PacID, "trigger", ev.Trigger, "error", err)
		}
	}

	s.broker.Publish(bus.TopicAcknowledgment, Acknowledgment{
		OriginalTrigger: ev.Trigger,
		BitID:           ev.BitID,
		Handler:         string(TierStabilization),
	})
	s.logger.Debug("stabilization handled",
		"trigger", ev.Trigger, "bit_id", ev.BitID,
		"stability", deltas.Stability, "plasticity", deltas.Plasticity, "trust", deltas.Trust)
}

// computeDeltas derives trait adjustments from the event's criticality
// measurements. Unknown triggers get the generic stabilizing response.
func (s *Stabilization) computeDeltas(ev Event) TraitDeltas {
	switch ev.Trigger {
	case TriggerTrustBoost:
		return TraitDeltas{Trust: 0.1}
	case TriggerRecovery:
		return TraitDeltas{Stability: 0.05, Trust: 0.02}
	default:
		stability := 0.1 * (1 - ev.Data.Entropy)
		if stability < 0 {
			stability = 0
		}
		if stability > 0.1 {
			stability = 0.1
		}
		plasticity := 0.0
		if ev.Data.LambdaHat > 0 {
			plasticity = -0.05 * ev.Data.LambdaHat
		}
		return TraitDeltas{Stability: stability, Plasticity: plasticity}
	}
}

// #endregion stabilization
