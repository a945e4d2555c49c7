// Package monitor implements the stream monitor: a single stateful actor
// holding bounded per-domain observation history, raising alerts against
// configured thresholds, and driving per-domain intervention callbacks.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Thunderblok/thunderline-sub016/internal/bus"
	"github.com/Thunderblok/thunderline-sub016/internal/config"
	"github.com/Thunderblok/thunderline-sub016/internal/irope"
	"github.com/Thunderblok/thunderline-sub016/internal/telemetry"
)

// #region archive

// ArchiveSink persists observations and intervention decisions.
// Persistence is best-effort: failures are logged, never propagated.
type ArchiveSink interface {
	AppendObservation(domain string, obs Observation) error
	AppendDecision(domain string, tick int64, alerts []Alert, action irope.Action) error
}

// #endregion archive

// #region monitor

// sternEscalationRuns is how many consecutive loop_detected observations
// indicate that standard phase correction is insufficient.
const sternEscalationRuns = 3

// Monitor is the stream monitor actor. All state is owned by the Run
// loop; public methods communicate over the mailbox.
type Monitor struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	broker  *bus.Bus
	archive ArchiveSink

	commands chan command

	mu      sync.Mutex
	stopped chan struct{} // non-nil while Run is active
}

type domainEntry struct {
	history          []Observation
	last             *Observation
	lastHealthy      time.Time
	callback         irope.Callback
	state            irope.DomainState
	consecutiveLoops int
	alertCount       int64
}

// New creates a monitor. broker and archive may be nil (no event
// publication / no persistence).
func New(cfg config.Config, logger *slog.Logger, metrics *telemetry.Metrics, broker *bus.Bus, archive ArchiveSink) *Monitor {
	return &Monitor{
		cfg:      cfg,
		logger:   logger.With("component", "monitor"),
		metrics:  metrics,
		broker:   broker,
		archive:  archive,
		commands: make(chan command),
		stopped:  make(chan struct{}),
	}
}

// Run processes the mailbox until ctx is canceled. Messages are handled
// strictly in arrival order. A restarted Run begins with empty domain
// state.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped == nil {
		m.stopped = make(chan struct{})
	}
	stopped := m.stopped
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.stopped = nil
		m.mu.Unlock()
		close(stopped)
	}()

	domains := make(map[string]*domainEntry)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-m.commands:
			cmd.apply(m, domains)
		}
	}
}

func (m *Monitor) domain(domains map[string]*domainEntry, name string) *domainEntry {
	d, ok := domains[name]
	if !ok {
		d = &domainEntry{
			state: irope.DomainState{Omega: 1.0, ProcessingRate: 1.0},
		}
		domains[name] = d
	}
	return d
}

// #endregion monitor

// #region commands

type command interface {
	apply(m *Monitor, domains map[string]*domainEntry)
}

type observeCmd struct {
	domain string
	obs    Observation
	reply  chan ObserveResult
}

type registerCmd struct {
	domain string
	cb     irope.Callback
	reply  chan struct{}
}

type statusCmd struct {
	domain string
	reply  chan *Status
}

type historyCmd struct {
	domain string
	limit  int
	reply  chan []Observation
}

type summaryCmd struct {
	reply chan []DomainSummary
}

func (m *Monitor) send(cmd command) bool {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped == nil {
		return false
	}
	select {
	case m.commands <- cmd:
		return true
	case <-stopped:
		return false
	}
}

// Observe appends one observation, evaluates alert thresholds, and either
// invokes the domain's registered callback or returns the suggested
// intervention to the caller.
func (m *Monitor) Observe(domain string, obs Observation) ObserveResult {
	reply := make(chan ObserveResult, 1)
	if !m.send(observeCmd{domain: domain, obs: obs, reply: reply}) {
		return ObserveResult{}
	}
	return <-reply
}

// RegisterCallback installs the intervention callback for a domain.
// At most one callback per domain: the last registration wins. A nil
// callback unregisters.
func (m *Monitor) RegisterCallback(domain string, cb irope.Callback) {
	reply := make(chan struct{}, 1)
	if m.send(registerCmd{domain: domain, cb: cb, reply: reply}) {
		<-reply
	}
}

// GetStatus returns a snapshot of one domain, or nil if never observed.
func (m *Monitor) GetStatus(domain string) *Status {
	reply := make(chan *Status, 1)
	if !m.send(statusCmd{domain: domain, reply: reply}) {
		return nil
	}
	return <-reply
}

// GetHistory returns up to limit most recent observations for a domain.
func (m *Monitor) GetHistory(domain string, limit int) []Observation {
	reply := make(chan []Observation, 1)
	if !m.send(historyCmd{domain: domain, limit: limit, reply: reply}) {
		return nil
	}
	return <-reply
}

// Summary returns one row per observed domain.
func (m *Monitor) Summary() []DomainSummary {
	reply := make(chan []DomainSummary, 1)
	if !m.send(summaryCmd{reply: reply}) {
		return nil
	}
	return <-reply
}

// #endregion commands

// #region observe

func (c observeCmd) apply(m *Monitor, domains map[string]*domainEntry) {
	d := m.domain(domains, c.domain)
	// Copy: the ring shift below reuses the slot the last pointer holds.
	var prev *Observation
	if d.last != nil {
		cp := *d.last
		prev = &cp
	}
	obs := c.obs

	// Append to the bounded ring: oldest dropped on overflow.
	if len(d.history) >= m.cfg.Runtime.HistoryCapacity {
		d.history = append(d.history[:0], d.history[1:]...)
	}
	d.history = append(d.history, obs)
	d.last = &d.history[len(d.history)-1]

	if obs.Bands.Overall == BandHealthy {
		d.lastHealthy = obs.Timestamp
	}

	m.metrics.ObservationsTotal.WithLabelValues(c.domain).Inc()

	alerts, action := m.evaluate(d, c.domain, obs, prev)
	d.alertCount += int64(len(alerts))

	for _, a := range alerts {
		m.metrics.AlertsTotal.WithLabelValues(c.domain, string(a.Type)).Inc()
		m.logger.Warn("alert raised",
			"domain", c.domain, "alert", string(a.Type),
			"direction", a.Direction, "value", a.Value, "tick", a.Tick)
		if m.broker != nil {
			m.broker.Publish(bus.TopicMonitorAlert, a)
		}
	}

	// Advance the domain control state and handle stern-mode expiry.
	d.state.Tick = obs.Tick
	if irope.ShouldExitSternMode(d.state, obs.PLV, m.cfg.Thresholds.PLVExitStern) {
		d.state.SternMode = false
		m.logger.Info("stern mode exited", "domain", c.domain, "tick", obs.Tick)
	}

	result := ObserveResult{Alerts: alerts}
	if action != "" {
		m.metrics.InterventionsTotal.WithLabelValues(string(action)).Inc()
		if d.callback != nil {
			d.state = d.callback(action, d.state)
			result.CallbackInvoked = true
		} else {
			result.Intervention = action
		}
	}
	result.State = d.state

	if m.archive != nil {
		if err := m.archive.AppendObservation(c.domain, obs); err != nil {
			m.logger.Error("archive observation failed", "domain", c.domain, "error", err)
		}
		if len(alerts) > 0 || action != "" {
			if err := m.archive.AppendDecision(c.domain, obs.Tick, alerts, action); err != nil {
				m.logger.Error("archive decision failed", "domain", c.domain, "error", err)
			}
		}
	}

	c.reply <- result
}

// evaluate runs the threshold checks in fixed order. Multiple alerts may
// fire from one observation; the intervention is the first match in
// PLV → σ → λ̂ order. Resonance spikes are observational only and never
// override a chosen intervention.
func (m *Monitor) evaluate(d *domainEntry, domain string, obs Observation, prev *Observation) ([]Alert, irope.Action) {
	t := m.cfg.Thresholds
	var alerts []Alert
	var action irope.Action

	if obs.PLV > t.PLVLoop {
		alerts = append(alerts, m.alert(domain, AlertLoopDetected, "", obs.PLV, obs.Tick))
		d.consecutiveLoops++
		if d.consecutiveLoops >= sternEscalationRuns {
			// Standard phase correction is not breaking the loop.
			action = irope.ActionSternMode
		} else {
			action = irope.ActionPhaseBias
		}
	} else {
		d.consecutiveLoops = 0
	}

	if obs.Sigma > t.SigmaAmplifying {
		alerts = append(alerts, m.alert(domain, AlertDegenerateSignal, "amplifying", obs.Sigma, obs.Tick))
		if action == "" {
			action = irope.ActionThrottle
		}
	} else if obs.Sigma < t.SigmaDecaying {
		alerts = append(alerts, m.alert(domain, AlertDegenerateSignal, "decaying", obs.Sigma, obs.Tick))
		if action == "" {
			action = irope.ActionBoost
		}
	}

	if obs.Lambda > t.LambdaChaotic {
		alerts = append(alerts, m.alert(domain, AlertChaoticDrift, "", obs.Lambda, obs.Tick))
		if action == "" {
			action = irope.ActionStabilize
		}
	}

	if prev != nil && prev.RTau > 0 && obs.RTau > t.RTauSpikeFactor*prev.RTau {
		alerts = append(alerts, m.alert(domain, AlertResonanceSpike, "", obs.RTau, obs.Tick))
	}

	return alerts, action
}

func (m *Monitor) alert(domain string, typ AlertType, direction string, value float64, tick int64) Alert {
	return Alert{
		ID:        uuid.New().String(),
		Domain:    domain,
		Type:      typ,
		Direction: direction,
		Value:     value,
		Tick:      tick,
	}
}

// #endregion observe

// #region queries

func (c registerCmd) apply(m *Monitor, domains map[string]*domainEntry) {
	d := m.domain(domains, c.domain)
	d.callback = c.cb
	c.reply <- struct{}{}
}

func (c statusCmd) apply(m *Monitor, domains map[string]*domainEntry) {
	d, ok := domains[c.domain]
	if !ok {
		c.reply <- nil
		return
	}
	var last *Observation
	if d.last != nil {
		cp := *d.last
		last = &cp
	}
	c.reply <- &Status{
		Domain:          c.domain,
		LastObservation: last,
		LastHealthy:     d.lastHealthy,
		HistoryLen:      len(d.history),
		State:           d.state,
	}
}

func (c historyCmd) apply(m *Monitor, domains map[string]*domainEntry) {
	d, ok := domains[c.domain]
	if !ok {
		c.reply <- nil
		return
	}
	n := len(d.history)
	limit := c.limit
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Observation, limit)
	copy(out, d.history[n-limit:])
	c.reply <- out
}

func (c summaryCmd) apply(m *Monitor, domains map[string]*domainEntry) {
	out := make([]DomainSummary, 0, len(domains))
	for name, d := range domains {
		row := DomainSummary{Domain: name, AlertCount: d.alertCount}
		if d.last != nil {
			row.Band = d.last.Bands.Overall
			row.LastTick = d.last.Tick
		}
		out = append(out, row)
	}
	c.reply <- out
}

// #endregion queries
