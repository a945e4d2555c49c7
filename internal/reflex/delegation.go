package reflex

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Thunderblok/thunderline-sub016/internal/bus"
	"github.com/Thunderblok/thunderline-sub016/internal/config"
	"github.com/Thunderblok/thunderline-sub016/internal/telemetry"
)

// #region delegation

// Delegation is the third dispatcher tier: saga hand-off with a local
// heuristic fallback, cross-domain fan-out, and quarantine requests.
type Delegation struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	broker  *bus.Bus
	backend Backend
}

// NewDelegation creates the tier.
func NewDelegation(cfg config.Config, logger *slog.Logger, metrics *telemetry.Metrics, broker *bus.Bus, backend Backend) *Delegation {
	return &Delegation{
		cfg:     cfg,
		logger:  logger.With("component", "reflex.delegation"),
		metrics: metrics,
		broker:  broker,
		backend: backend,
	}
}

// Run consumes the reflex-event stream until ctx is canceled.
func (d *Delegation) Run(ctx context.Context) error {
	sub := d.broker.Subscribe(bus.TopicReflex, bus.TopicReflexTriggered, bus.TopicReflexChunk)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-sub.C():
			ev, ok := eventFrom(msg)
			if !ok || Route(ev.Trigger) != TierDelegation {
				continue
			}
			d.handle(ctx, ev)
		}
	}
}

func (d *Delegation) handle(ctx context.Context, ev Event) {
	d.metrics.ReflexEventsTotal.WithLabelValues(string(TierDelegation), string(ev.Trigger)).Inc()

	switch ev.Trigger {
	case TriggerComplexDecision, TriggerSagaRequired:
		d.decide(ctx, ev)
	case TriggerCrossDomain:
		d.fanOut(ev)
	case TriggerQuarantineNeeded:
		d.quarantine(ev)
	}
}

// decide starts a saga when the orchestration backend offers one,
// otherwise falls back to a local heuristic decision.
func (d *Delegation) decide(ctx context.Context, ev Event) {
	if d.backend.Capabilities(ctx).Sagas {
		req := SagaRequest{
			Trigger: ev.Trigger,
			BitID:   ev.BitID,
			PacID:   ev.Data.PacID,
			Metrics: ev.metrics(),
			Context: map[string]string{"chunk_id": ev.Data.ChunkID},
		}
		if err := d.backend.StartSaga(ctx, req); err != nil {
			d.logger.Error("saga start failed", "trigger", ev.Trigger, "bit_id", ev.BitID, "error", err)
			d.metrics.SagasTotal.WithLabelValues("failed").Inc()
			return
		}
		d.metrics.SagasTotal.WithLabelValues("started").Inc()
		d.logger.Info("saga started", "trigger", ev.Trigger, "bit_id", ev.BitID)
		return
	}

	decision := heuristicDecision(d.cfg.Thresholds, ev.metrics())
	d.broker.Publish(bus.TopicHeuristicDecision, HeuristicDecision{
		BitID:    ev.BitID,
		Decision: decision,
		Metrics:  ev.metrics(),
		Fallback: true,
	})
	d.metrics.HeuristicDecisionsTotal.Inc()
	d.logger.Info("heuristic fallback decision",
		"trigger", ev.Trigger, "bit_id", ev.BitID, "decision", decision)
}

// heuristicDecision is the universal local default when no saga backend
// is loaded.
func heuristicDecision(th config.Thresholds, m Metrics) string {
	switch {
	case m.Entropy > th.EntropyHigh:
		return "reduce_load"
	case m.LambdaHat > th.LambdaMedium:
		return "stabilize"
	default:
		return "monitor"
	}
}

// fanOut computes the affected-domain set and broadcasts a notice to
// each.
func (d *Delegation) fanOut(ev Event) {
	var domains []string
	if ev.Data.PacID != "" {
		domains = append(domains, "pac")
	}
	if ev.Data.Entropy > d.cfg.Thresholds.EntropyWallSpread {
		domains = append(domains, "wall")
	}
	if ev.Data.PersistenceNeeded {
		domains = append(domains, "block")
	}

	for _, domain := range domains {
		d.broker.Publish(bus.TopicCrossDomain, CrossDomainNotice{
			BitID:   ev.BitID,
			Domain:  domain,
			Metrics: ev.metrics(),
		})
	}
	d.logger.Debug("cross-domain fan-out", "bit_id", ev.BitID, "domains", domains)
}

func (d *Delegation) quarantine(ev Event) {
	d.broker.Publish(bus.TopicQuarantineRequest, QuarantineRequest{
		BitID:   ev.BitID,
		ChunkID: ev.Data.ChunkID,
		Reason: fmt.Sprintf("entropy=%.2f lambda_hat=%.2f",
			ev.Data.Entropy, ev.Data.LambdaHat),
		Action:        "isolate",
		DurationTicks: d.cfg.Runtime.QuarantineTicks,
	})
	d.metrics.QuarantinesTotal.Inc()
	d.logger.Info("quarantine requested", "bit_id", ev.BitID, "chunk_id", ev.Data.ChunkID)
}

// #endregion delegation
