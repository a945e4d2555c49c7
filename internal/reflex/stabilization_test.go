package reflex

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Thunderblok/thunderline-sub016/internal/bus"
	"github.com/Thunderblok/thunderline-sub016/internal/config"
	"github.com/Thunderblok/thunderline-sub016/internal/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fakeTraits struct {
	mu      sync.Mutex
	applied map[string]TraitDeltas
}

func newFakeTraits() *fakeTraits {
	return &fakeTraits{applied: make(map[string]TraitDeltas)}
}

func (f *fakeTraits) ApplyTraitDeltas(_ context.Context, pacID string, d TraitDeltas) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied[pacID] = d
	return nil
}

func (f *fakeTraits) get(pacID string) (TraitDeltas, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.applied[pacID]
	return d, ok
}

func newStabilization(traits TraitApplier) (*Stabilization, *bus.Bus) {
	cfg := config.Default()
	broker := bus.New(cfg.Runtime.MailboxDepth)
	return NewStabilization(cfg, testLogger(), telemetry.NewNop(), broker, traits), broker
}

// publishUntilAck re-publishes ev until an acknowledgment arrives,
// covering the window before the Run goroutine has subscribed.
func publishUntilAck(t *testing.T, broker *bus.Bus, acks *bus.Subscription, topic string, ev Event) Acknowledgment {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		broker.Publish(topic, ev)
		select {
		case msg := <-acks.C():
			return msg.Payload.(Acknowledgment)
		case <-deadline:
			t.Fatalf("no acknowledgment published")
			return Acknowledgment{}
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func waitAck(t *testing.T, sub *bus.Subscription) Acknowledgment {
	t.Helper()
	select {
	case msg := <-sub.C():
		return msg.Payload.(Acknowledgment)
	case <-time.After(2 * time.Second):
		t.Fatalf("no acknowledgment published")
		return Acknowledgment{}
	}
}

func TestLowStabilityDeltas(t *testing.T) {
	traits := newFakeTraits()
	st, broker := newStabilization(traits)
	acks := broker.Subscribe(bus.TopicAcknowledgment)
	defer acks.Unsubscribe()

	st.handle(context.Background(), Event{
		Trigger: TriggerLowStability,
		BitID:   "bit-1",
		Data:    EventData{Entropy: 0.4, LambdaHat: 0.5, PacID: "pac-1"},
	})

	ack := waitAck(t, acks)
	if ack.OriginalTrigger != TriggerLowStability || ack.Handler != "stabilization" {
		t.Fatalf("unexpected acknowledgment: %+v", ack)
	}

	d, ok := traits.get("pac-1")
	if !ok {
		t.Fatalf("deltas not applied to pac-1")
	}
	if math.Abs(d.Stability-0.06) > 1e-12 {
		t.Fatalf("expected stability delta 0.06, got %v", d.Stability)
	}
	if math.Abs(d.Plasticity-(-0.025)) > 1e-12 {
		t.Fatalf("expected plasticity delta -0.025, got %v", d.Plasticity)
	}
	if d.Trust != 0 {
		t.Fatalf("expected no trust delta, got %v", d.Trust)
	}
}

func TestStabilityDeltaClamped(t *testing.T) {
	traits := newFakeTraits()
	st, _ := newStabilization(traits)

	// Negative entropy would push the delta above the cap.
	st.handle(context.Background(), Event{
		Trigger: TriggerStabilize,
		Data:    EventData{Entropy: -2.0, PacID: "pac-1"},
	})
	if d, _ := traits.get("pac-1"); d.Stability != 0.1 {
		t.Fatalf("expected stability delta clamped to 0.1, got %v", d.Stability)
	}

	// Entropy above 1 would push it negative.
	st.handle(context.Background(), Event{
		Trigger: TriggerStabilize,
		Data:    EventData{Entropy: 1.5, PacID: "pac-2"},
	})
	if d, _ := traits.get("pac-2"); d.Stability != 0 {
		t.Fatalf("expected stability delta floored at 0, got %v", d.Stability)
	}
}

func TestTrustBoostDeltas(t *testing.T) {
	traits := newFakeTraits()
	st, _ := newStabilization(traits)

	st.handle(context.Background(), Event{
		Trigger: TriggerTrustBoost,
		Data:    EventData{Entropy: 0.9, LambdaHat: 0.9, PacID: "pac-1"},
	})

	d, _ := traits.get("pac-1")
	if d.Trust != 0.1 || d.Stability != 0 || d.Plasticity != 0 {
		t.Fatalf("unexpected trust_boost deltas: %+v", d)
	}
}

func TestRecoveryDeltas(t *testing.T) {
	traits := newFakeTraits()
	st, _ := newStabilization(traits)

	st.handle(context.Background(), Event{
		Trigger: TriggerRecovery,
		Data:    EventData{PacID: "pac-1"},
	})

	d, _ := traits.get("pac-1")
	if d.Stability != 0.05 || d.Trust != 0.02 {
		t.Fatalf("unexpected recovery deltas: %+v", d)
	}
}

func TestNoPacSkipsApplication(t *testing.T) {
	traits := newFakeTraits()
	st, broker := newStabilization(traits)
	acks := broker.Subscribe(bus.TopicAcknowledgment)
	defer acks.Unsubscribe()

	st.handle(context.Background(), Event{
		Trigger: TriggerLowStability,
		Data:    EventData{Entropy: 0.4},
	})

	waitAck(t, acks)
	if len(traits.applied) != 0 {
		t.Fatalf("deltas applied without a pac_id: %+v", traits.applied)
	}
}

func TestNilApplierStillAcknowledges(t *testing.T) {
	st, broker := newStabilization(nil)
	acks := broker.Subscribe(bus.TopicAcknowledgment)
	defer acks.Unsubscribe()

	st.handle(context.Background(), Event{
		Trigger: TriggerLowStability,
		Data:    EventData{PacID: "pac-1"},
	})
	waitAck(t, acks)
}

func TestUnknownTriggerHandledBySafetyNet(t *testing.T) {
	traits := newFakeTraits()
	st, broker := newStabilization(traits)
	acks := broker.Subscribe(bus.TopicAcknowledgment)
	defer acks.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go st.Run(ctx)

	ack := publishUntilAck(t, broker, acks, bus.TopicReflex, Event{
		Trigger: "totally_unknown",
		BitID:   "bit-9",
		Data:    EventData{Entropy: 0.5, PacID: "pac-9"},
	})
	if ack.OriginalTrigger != "totally_unknown" || ack.BitID != "bit-9" {
		t.Fatalf("unexpected acknowledgment: %+v", ack)
	}
	if d, ok := traits.get("pac-9"); !ok || math.Abs(d.Stability-0.05) > 1e-12 {
		t.Fatalf("expected generic stabilizing response, got %+v", d)
	}
}

func TestRunIgnoresOtherTiers(t *testing.T) {
	traits := newFakeTraits()
	st, broker := newStabilization(traits)
	acks := broker.Subscribe(bus.TopicAcknowledgment)
	defer acks.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go st.Run(ctx)

	var ack Acknowledgment
	deadline := time.After(2 * time.Second)
	for waiting := true; waiting; {
		broker.Publish(bus.TopicReflex, Event{Trigger: TriggerChaosSpike, Data: EventData{PacID: "pac-1"}})
		broker.Publish(bus.TopicReflexTriggered, Event{Trigger: TriggerRecovery, BitID: "bit-2", Data: EventData{PacID: "pac-2"}})
		select {
		case msg := <-acks.C():
			ack = msg.Payload.(Acknowledgment)
			waiting = false
		case <-deadline:
			t.Fatalf("no acknowledgment published")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if ack.OriginalTrigger != TriggerRecovery {
		t.Fatalf("stabilization handled a foreign trigger: %+v", ack)
	}
	if _, ok := traits.get("pac-1"); ok {
		t.Fatalf("escalation-tier event was applied by stabilization")
	}
}
