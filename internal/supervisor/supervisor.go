// Package supervisor restarts failed actors in isolation: one child's
// crash never affects its siblings, but the restarted child begins from
// empty state.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// #region policy

// Policy controls restart backoff.
type Policy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Factor         float64
}

// DefaultPolicy returns the production restart policy.
func DefaultPolicy() Policy {
	return Policy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Factor:         2.0,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.Factor < 1 {
		p.Factor = def.Factor
	}
	return p
}

// #endregion policy

// #region supervisor

type child struct {
	name string
	run  func(ctx context.Context) error
}

// Supervisor runs a fixed set of children one-for-one.
type Supervisor struct {
	logger   *slog.Logger
	policy   Policy
	children []child
}

// New creates an empty supervisor.
func New(logger *slog.Logger, policy Policy) *Supervisor {
	return &Supervisor{
		logger: logger.With("component", "supervisor"),
		policy: policy.withDefaults(),
	}
}

// Add registers a child. Must be called before Run.
func (s *Supervisor) Add(name string, run func(ctx context.Context) error) {
	s.children = append(s.children, child{name: name, run: run})
}

// Run supervises every child until ctx is canceled, then waits for all
// of them to stop.
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, c := range s.children {
		wg.Add(1)
		go func(c child) {
			defer wg.Done()
			s.supervise(ctx, c)
		}(c)
	}
	wg.Wait()
	return ctx.Err()
}

// supervise restarts one child with exponential backoff. A run that
// stays up past the backoff cap resets the delay.
func (s *Supervisor) supervise(ctx context.Context, c child) {
	delay := s.policy.InitialBackoff
	for {
		started := time.Now()
		err := s.runChild(ctx, c)

		if ctx.Err() != nil {
			s.logger.Info("child stopped", "child", c.name)
			return
		}
		if time.Since(started) > s.policy.MaxBackoff {
			delay = s.policy.InitialBackoff
		}
		s.logger.Error("child exited, restarting",
			"child", c.name, "error", err, "backoff", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * s.policy.Factor)
		if delay > s.policy.MaxBackoff {
			delay = s.policy.MaxBackoff
		}
	}
}

func (s *Supervisor) runChild(ctx context.Context, c child) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("child %s panicked: %v", c.name, r)
		}
	}()
	return c.run(ctx)
}

// #endregion supervisor
