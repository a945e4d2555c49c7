package observer

import (
	"errors"
	"math"
	"testing"

	"github.com/Thunderblok/thunderline-sub016/internal/config"
	"github.com/Thunderblok/thunderline-sub016/internal/monitor"
)

func TestComputerEmptyActivations(t *testing.T) {
	c := NewComputer(config.DefaultThresholds())
	_, err := c.Compute(monitor.ObservableInput{})
	if !errors.Is(err, ErrEmptyActivations) {
		t.Fatalf("expected ErrEmptyActivations, got %v", err)
	}
}

func TestComputerHealthyInput(t *testing.T) {
	c := NewComputer(config.DefaultThresholds())
	out, err := c.Compute(monitor.ObservableInput{
		Activations: []float64{0.31, 0.47, 0.22, 0.68, 0.15, 0.54, 0.41, 0.09},
		EntropyPrev: 1.0,
		EntropyNext: 1.0,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if out.Sigma != 1.0 {
		t.Fatalf("expected sigma 1.0, got %v", out.Sigma)
	}
	if out.Lambda != 0 {
		t.Fatalf("expected lambda 0 without a trajectory, got %v", out.Lambda)
	}
	if out.Bands.Overall != monitor.BandHealthy {
		t.Fatalf("expected healthy band, got %v", out.Bands.Overall)
	}
}

func TestComputerSigmaRatio(t *testing.T) {
	c := NewComputer(config.DefaultThresholds())
	in := monitor.ObservableInput{
		Activations: []float64{0.31, 0.47, 0.22, 0.68, 0.15, 0.54, 0.41, 0.09},
		EntropyPrev: 2.0,
		EntropyNext: 3.0,
	}
	out, err := c.Compute(in)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if out.Sigma != 1.5 {
		t.Fatalf("expected sigma 1.5, got %v", out.Sigma)
	}

	in.EntropyPrev = 0
	out, err = c.Compute(in)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if out.Sigma != 1.0 {
		t.Fatalf("expected sigma fallback 1.0 when prev entropy is zero, got %v", out.Sigma)
	}
}

func TestComputerSynchronyPushesBandToWatch(t *testing.T) {
	c := NewComputer(config.DefaultThresholds())
	out, err := c.Compute(monitor.ObservableInput{
		Activations: []float64{0.8, 0.8, 0.8, 0.8, 0.8, 0.8},
		EntropyPrev: 1.0,
		EntropyNext: 1.0,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if out.PLV < 0.99 {
		t.Fatalf("identical activations should be fully synchronized, got plv %v", out.PLV)
	}
	if out.Bands.Overall != monitor.BandWatch {
		t.Fatalf("one breach should classify as watch, got %v", out.Bands.Overall)
	}
}

func TestComputerMultipleBreachesCritical(t *testing.T) {
	c := NewComputer(config.DefaultThresholds())
	out, err := c.Compute(monitor.ObservableInput{
		Activations: []float64{0.8, 0.8, 0.8, 0.8, 0.8, 0.8},
		EntropyPrev: 1.0,
		EntropyNext: 2.0,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if out.Sigma != 2.0 {
		t.Fatalf("expected sigma 2.0, got %v", out.Sigma)
	}
	if out.Bands.Overall != monitor.BandCritical {
		t.Fatalf("two breaches should classify as critical, got %v", out.Bands.Overall)
	}
}

func TestComputerLambdaFromTrajectory(t *testing.T) {
	c := NewComputer(config.DefaultThresholds())
	jvp := make([][]float64, 12)
	for i := range jvp {
		jvp[i] = []float64{math.Exp(0.3 * float64(i))}
	}
	out, err := c.Compute(monitor.ObservableInput{
		Activations: []float64{0.31, 0.47, 0.22, 0.68, 0.15, 0.54, 0.41, 0.09},
		EntropyPrev: 1.0,
		EntropyNext: 1.0,
		JVPMatrix:   jvp,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if out.Lambda <= 0 {
		t.Fatalf("growing trajectory should yield positive lambda, got %v", out.Lambda)
	}
}

func TestComputerRTauEnergy(t *testing.T) {
	c := NewComputer(config.DefaultThresholds())
	out, err := c.Compute(monitor.ObservableInput{
		Activations: []float64{3, 4, 3, 4},
		EntropyPrev: 1.0,
		EntropyNext: 1.0,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	want := math.Sqrt((9.0 + 16.0 + 9.0 + 16.0) / 4.0)
	if math.Abs(out.RTau-want) > 1e-12 {
		t.Fatalf("expected rtau %v, got %v", want, out.RTau)
	}
}
