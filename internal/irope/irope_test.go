package irope

import (
	"log/slog"
	"math"
	"testing"
)

func TestApplyPhaseBiasDefaults(t *testing.T) {
	out := ApplyPhaseBias(DomainState{Omega: 1.0, Phi: 0.0}, 0, 0)
	if math.Abs(out.Omega-0.9) > 1e-12 {
		t.Fatalf("expected omega 0.9, got %v", out.Omega)
	}
	if math.Abs(out.Phi-0.1) > 1e-12 {
		t.Fatalf("expected phi 0.1, got %v", out.Phi)
	}
	if out.Action != ActionPhaseBias {
		t.Fatalf("expected action tag %s, got %s", ActionPhaseBias, out.Action)
	}
	if out.AppliedAt.IsZero() {
		t.Fatal("expected applied timestamp")
	}
}

func TestApplyPhaseBiasOmegaFloor(t *testing.T) {
	out := ApplyPhaseBias(DomainState{Omega: 0.1, Phi: 0.95}, 0.1, 0.5)
	if out.Omega != 0.1 {
		t.Fatalf("omega must not drop below 0.1, got %v", out.Omega)
	}
	if math.Abs(out.Phi-0.05) > 1e-12 {
		t.Fatalf("phi must wrap mod 1.0, got %v", out.Phi)
	}
}

func TestEnterSternMode(t *testing.T) {
	in := DomainState{Omega: 1.0, Phi: 0.5, Tick: 42}
	out := EnterSternMode(in, 0)
	if !out.SternMode {
		t.Fatal("stern mode flag not set")
	}
	if out.SternModeUntil != 42+DefaultSternDuration {
		t.Fatalf("expected stern window until tick %d, got %d", 42+DefaultSternDuration, out.SternModeUntil)
	}
	if out.SternModeUntil <= out.Tick {
		t.Fatal("stern window must end in the future")
	}
	if math.Abs(out.Omega-0.7) > 1e-12 {
		t.Fatalf("expected stern decay 0.7 applied, got omega %v", out.Omega)
	}
	if out.Phi < 0 || out.Phi >= 1 {
		t.Fatalf("phi out of [0,1): %v", out.Phi)
	}
	if out.Tick != in.Tick {
		t.Fatal("intervention must not change the tick")
	}
}

func TestShouldExitSternMode(t *testing.T) {
	const exitPLV = 0.6
	state := DomainState{SternMode: true, Tick: 10, SternModeUntil: 20}

	if ShouldExitSternMode(state, 0.9, exitPLV) {
		t.Fatal("window open and PLV high: should stay stern")
	}
	if !ShouldExitSternMode(state, 0.5, exitPLV) {
		t.Fatal("PLV dropped below exit threshold: should exit")
	}

	state.Tick = 20
	if !ShouldExitSternMode(state, 0.9, exitPLV) {
		t.Fatal("window expired: should exit")
	}

	if ShouldExitSternMode(DomainState{}, 0.1, exitPLV) {
		t.Fatal("not in stern mode: nothing to exit")
	}
}

func TestFrequencyNotchAttenuatesCenter(t *testing.T) {
	activations := make([]float64, 10)
	for i := range activations {
		activations[i] = 1.0
	}
	out := FrequencyNotch(activations, 0.5, 0.1, 0.5)
	if len(out) != len(activations) {
		t.Fatalf("length changed: %d", len(out))
	}
	// Depth 0.5 at the exact center bin f=0.5.
	if math.Abs(out[5]-0.5) > 1e-9 {
		t.Fatalf("expected center attenuated to 0.5, got %v", out[5])
	}
	// Far bins are nearly untouched.
	if out[0] < 0.99 {
		t.Fatalf("expected edge bin ~1.0, got %v", out[0])
	}
}

func TestThrottleAndBoostClamps(t *testing.T) {
	out := Throttle(DomainState{ProcessingRate: 0.15}, 0)
	if out.ProcessingRate != 0.1 {
		t.Fatalf("throttle must floor at 0.1, got %v", out.ProcessingRate)
	}

	out = Boost(DomainState{ProcessingRate: 1.8, Omega: 0.95}, 0)
	if out.ProcessingRate != 2.0 {
		t.Fatalf("boost must cap at 2.0, got %v", out.ProcessingRate)
	}
	if out.Omega != 1.0 {
		t.Fatalf("boost omega nudge must cap at 1.0, got %v", out.Omega)
	}

	out = Boost(DomainState{ProcessingRate: 1.0, Omega: 0.5}, 0)
	if math.Abs(out.ProcessingRate-1.5) > 1e-12 {
		t.Fatalf("expected rate 1.5, got %v", out.ProcessingRate)
	}
	if math.Abs(out.Omega-0.55) > 1e-12 {
		t.Fatalf("expected omega nudged to 0.55, got %v", out.Omega)
	}
}

func TestStabilizeBounds(t *testing.T) {
	in := DomainState{Omega: 1.0, Phi: 0.98, Tick: 7}
	out := Stabilize(in)
	if math.Abs(out.Omega-0.8) > 1e-12 {
		t.Fatalf("expected omega contracted to 0.8, got %v", out.Omega)
	}
	if out.Phi < 0 || out.Phi >= 1 {
		t.Fatalf("phi out of [0,1): %v", out.Phi)
	}
	if out.Tick != 7 {
		t.Fatal("intervention must not change the tick")
	}
}

func TestComputeStrength(t *testing.T) {
	tests := []struct {
		name              string
		plv, sigma, lambda float64
		want              float64
	}{
		{"all calm", 0.5, 1.0, 0.0, 0.0},
		{"plv only", 1.0, 1.0, 0.0, 0.5},
		{"sigma only", 0.5, 2.0, 0.0, 0.3},
		{"lambda only", 0.5, 1.0, 1.0, 0.2},
		{"negative lambda ignored", 0.5, 1.0, -5.0, 0.0},
		{"clamped", 1.0, 3.0, 5.0, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStrength(tt.plv, tt.sigma, tt.lambda)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("ComputeStrength(%v, %v, %v) = %v, want %v",
					tt.plv, tt.sigma, tt.lambda, got, tt.want)
			}
		})
	}
}

func TestDefaultCallbackDispatch(t *testing.T) {
	cb := DefaultCallback(slog.Default())

	out := cb(ActionPhaseBias, DomainState{Omega: 1.0})
	if out.Action != ActionPhaseBias {
		t.Fatalf("expected phase bias applied, got %s", out.Action)
	}

	out = cb(ActionThrottle, DomainState{ProcessingRate: 1.0})
	if out.Action != ActionThrottle {
		t.Fatalf("expected throttle applied, got %s", out.Action)
	}

	in := DomainState{Omega: 0.7, Phi: 0.3, Tick: 3}
	out = cb(Action("unknown_action"), in)
	if out != in {
		t.Fatalf("unknown action must be a no-op, got %+v", out)
	}
}
