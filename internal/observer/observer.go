// Package observer implements the sampling driver: it follows the global
// tick broadcast and, on a configured cadence, invokes registered
// per-domain collector callbacks under fault isolation, forwarding the
// computed observations to the stream monitor.
package observer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Thunderblok/thunderline-sub016/internal/bus"
	"github.com/Thunderblok/thunderline-sub016/internal/config"
	"github.com/Thunderblok/thunderline-sub016/internal/monitor"
	"github.com/Thunderblok/thunderline-sub016/internal/telemetry"
)

// #region collector

// Collector produces the raw observable input for one domain at a tick.
// Collectors are user-supplied and may fail, panic, or stall; the driver
// isolates all three.
type Collector func(ctx context.Context, tick int64) (monitor.ObservableInput, error)

// Fault records one isolated collector failure.
type Fault struct {
	Domain  string
	Tick    int64
	Kind    string // "error" | "panic" | "timeout"
	Message string
	At      time.Time
}

// #endregion collector

// #region observer

// Observer is the sampling driver actor.
type Observer struct {
	cfg      config.Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	broker   *bus.Bus
	monitor  *monitor.Monitor
	computer monitor.ObservableComputer

	commands chan command

	mu      sync.Mutex
	stopped chan struct{} // non-nil while Run is active
}

type observerState struct {
	collectors  map[string]Collector
	lastResults map[string]monitor.ObserveResult
	faults      []Fault
	tickCount   int64
	lastTick    int64
}

// New creates a sampling driver attached to the monitor and broker.
func New(cfg config.Config, logger *slog.Logger, metrics *telemetry.Metrics, broker *bus.Bus, mon *monitor.Monitor, computer monitor.ObservableComputer) *Observer {
	return &Observer{
		cfg:      cfg,
		logger:   logger.With("component", "observer"),
		metrics:  metrics,
		broker:   broker,
		monitor:  mon,
		computer: computer,
		commands: make(chan command),
		stopped:  make(chan struct{}),
	}
}

// Run subscribes to the tick broadcast and processes it along with
// commands until ctx is canceled. A restarted Run begins with no
// registered collectors.
func (o *Observer) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped == nil {
		o.stopped = make(chan struct{})
	}
	stopped := o.stopped
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.stopped = nil
		o.mu.Unlock()
		close(stopped)
	}()

	sub := o.broker.Subscribe(bus.TopicTick)
	defer sub.Unsubscribe()

	st := &observerState{
		collectors:  make(map[string]Collector),
		lastResults: make(map[string]monitor.ObserveResult),
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-sub.C():
			tick, ok := msg.Payload.(int64)
			if !ok {
				continue
			}
			st.lastTick = tick
			st.tickCount++
			if st.tickCount%o.cfg.Runtime.ObserveInterval == 0 {
				o.samplePass(ctx, st, tick)
			}
		case cmd := <-o.commands:
			cmd.apply(o, ctx, st)
		}
	}
}

// #endregion observer

// #region commands

type command interface {
	apply(o *Observer, ctx context.Context, st *observerState)
}

type registerCmd struct {
	domain    string
	collector Collector
	reply     chan struct{}
}

type unregisterCmd struct {
	domain string
	reply  chan struct{}
}

type forceSampleCmd struct {
	reply chan struct{}
}

type faultsCmd struct {
	reply chan []Fault
}

type lastResultCmd struct {
	domain string
	reply  chan monitor.ObserveResult
}

func (o *Observer) send(cmd command) bool {
	o.mu.Lock()
	stopped := o.stopped
	o.mu.Unlock()
	if stopped == nil {
		return false
	}
	select {
	case o.commands <- cmd:
		return true
	case <-stopped:
		return false
	}
}

// Register installs the collector for a domain. Idempotent; the last
// registration wins.
func (o *Observer) Register(domain string, collector Collector) {
	reply := make(chan struct{}, 1)
	if o.send(registerCmd{domain: domain, collector: collector, reply: reply}) {
		<-reply
	}
}

// Unregister removes a domain's collector. Idempotent.
func (o *Observer) Unregister(domain string) {
	reply := make(chan struct{}, 1)
	if o.send(unregisterCmd{domain: domain, reply: reply}) {
		<-reply
	}
}

// ForceSample samples every registered domain immediately, regardless of
// cadence.
func (o *Observer) ForceSample() {
	reply := make(chan struct{}, 1)
	if o.send(forceSampleCmd{reply: reply}) {
		<-reply
	}
}

// Faults returns the bounded collector fault log, oldest first.
func (o *Observer) Faults() []Fault {
	reply := make(chan []Fault, 1)
	if !o.send(faultsCmd{reply: reply}) {
		return nil
	}
	return <-reply
}

// LastResult returns the most recent monitor result for a domain.
func (o *Observer) LastResult(domain string) monitor.ObserveResult {
	reply := make(chan monitor.ObserveResult, 1)
	if !o.send(lastResultCmd{domain: domain, reply: reply}) {
		return monitor.ObserveResult{}
	}
	return <-reply
}

func (c registerCmd) apply(o *Observer, _ context.Context, st *observerState) {
	st.collectors[c.domain] = c.collector
	c.reply <- struct{}{}
}

func (c unregisterCmd) apply(o *Observer, _ context.Context, st *observerState) {
	delete(st.collectors, c.domain)
	delete(st.lastResults, c.domain)
	c.reply <- struct{}{}
}

func (c forceSampleCmd) apply(o *Observer, ctx context.Context, st *observerState) {
	o.samplePass(ctx, st, st.lastTick)
	c.reply <- struct{}{}
}

func (c faultsCmd) apply(o *Observer, _ context.Context, st *observerState) {
	out := make([]Fault, len(st.faults))
	copy(out, st.faults)
	c.reply <- out
}

func (c lastResultCmd) apply(o *Observer, _ context.Context, st *observerState) {
	c.reply <- st.lastResults[c.domain]
}

// #endregion commands

// #region sampling

// samplePass samples every registered domain. One domain's fault never
// blocks another's sampling.
func (o *Observer) samplePass(ctx context.Context, st *observerState, tick int64) {
	for domain, collector := range st.collectors {
		start := time.Now()
		input, fault := o.collect(ctx, domain, tick, collector)
		o.metrics.SampleDuration.WithLabelValues(domain).Observe(time.Since(start).Seconds())

		if fault != nil {
			o.recordFault(st, *fault)
			continue
		}

		obsv, err := o.computer.Compute(input)
		if err != nil {
			o.recordFault(st, Fault{
				Domain:  domain,
				Tick:    tick,
				Kind:    "error",
				Message: fmt.Sprintf("compute observables: %v", err),
				At:      time.Now().UTC(),
			})
			continue
		}

		obs := monitor.Observation{
			Tick:      tick,
			Timestamp: time.Now().UTC(),
			PLV:       obsv.PLV,
			Sigma:     obsv.Sigma,
			Lambda:    obsv.Lambda,
			RTau:      obsv.RTau,
			Bands:     obsv.Bands,
		}
		st.lastResults[domain] = o.monitor.Observe(domain, obs)
	}
}

// collect invokes one collector under a bounded deadline with panic
// isolation. A stalled collector is abandoned at the deadline and
// reported as a timeout fault.
func (o *Observer) collect(ctx context.Context, domain string, tick int64, collector Collector) (monitor.ObservableInput, *Fault) {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.Runtime.CollectorDeadline)
	defer cancel()

	type outcome struct {
		input    monitor.ObservableInput
		err      error
		panicked bool
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%v", r), panicked: true}
			}
		}()
		input, err := collector(cctx, tick)
		done <- outcome{input: input, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			kind := "error"
			if out.panicked {
				kind = "panic"
			}
			return monitor.ObservableInput{}, &Fault{
				Domain:  domain,
				Tick:    tick,
				Kind:    kind,
				Message: out.err.Error(),
				At:      time.Now().UTC(),
			}
		}
		return out.input, nil
	case <-cctx.Done():
		return monitor.ObservableInput{}, &Fault{
			Domain:  domain,
			Tick:    tick,
			Kind:    "timeout",
			Message: cctx.Err().Error(),
			At:      time.Now().UTC(),
		}
	}
}

func (o *Observer) recordFault(st *observerState, f Fault) {
	o.metrics.CollectorFaultsTotal.WithLabelValues(f.Domain, f.Kind).Inc()
	o.logger.Error("collector fault",
		"domain", f.Domain, "tick", f.Tick, "kind", f.Kind, "error", f.Message)
	if len(st.faults) >= o.cfg.Runtime.ErrorLogCapacity {
		st.faults = append(st.faults[:0], st.faults[1:]...)
	}
	st.faults = append(st.faults, f)
}

// #endregion sampling
