package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testPolicy() Policy {
	return Policy{InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond, Factor: 2}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestChildRestartedOnError(t *testing.T) {
	var runs atomic.Int64
	sup := New(testLogger(), testPolicy())
	sup.Add("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("boom")
		}
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("child not restarted, runs=%d", runs.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
}

func TestChildRestartedOnPanic(t *testing.T) {
	var runs atomic.Int64
	sup := New(testLogger(), testPolicy())
	sup.Add("panicky", func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			panic("kaboom")
		}
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	deadline := time.After(2 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("child not restarted after panic, runs=%d", runs.Load())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSiblingsIsolated(t *testing.T) {
	var flakyRuns, steadyRuns atomic.Int64
	sup := New(testLogger(), testPolicy())
	sup.Add("flaky", func(ctx context.Context) error {
		flakyRuns.Add(1)
		return errors.New("boom")
	})
	sup.Add("steady", func(ctx context.Context) error {
		steadyRuns.Add(1)
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	deadline := time.After(2 * time.Second)
	for flakyRuns.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("flaky child not restarted, runs=%d", flakyRuns.Load())
		case <-time.After(time.Millisecond):
		}
	}
	if got := steadyRuns.Load(); got != 1 {
		t.Fatalf("steady sibling restarted %d times by flaky child's crashes", got)
	}
}

func TestShutdownStopsAllChildren(t *testing.T) {
	sup := New(testLogger(), testPolicy())
	for _, name := range []string{"a", "b", "c"} {
		sup.Add(name, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
