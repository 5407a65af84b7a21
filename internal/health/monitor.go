// internal/health/monitor.go

// Package health probes pooled connections and reconnects them with a
// bounded backoff schedule.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"agentManager/internal/models"
)

type State string

const (
	StateConnected    State = "connected"
	StateError        State = "error"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultMaxAttempts = 3
)

// DefaultDelays is the reconnect backoff schedule. Attempts past its end
// reuse the last delay.
var DefaultDelays = []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}

// Metrics counts reconnect activity for one connection.
type Metrics struct {
	TotalReconnects    int
	LastConnectedAt    time.Time
	LastDisconnectedAt time.Time
}

// Status is the monitor's view of one connection.
type Status struct {
	ConnectionID string
	// Config is the reconnect descriptor. It never carries a secret.
	Config   models.Connection
	State    State
	Attempts int
	Metrics  Metrics
}

// ProbeFunc reports whether the connection is alive.
type ProbeFunc func(id string) bool

// ReconnectFunc makes one reconnect attempt, numbered from 1.
type ReconnectFunc func(ctx context.Context, id string, cfg models.Connection, attempt int) bool

type Options struct {
	Probe             ProbeFunc
	Reconnect         ReconnectFunc
	Interval          time.Duration
	Delays            []time.Duration
	MaxAttempts       int
	OnStateChange     func(id string, state State)
	OnReconnectFailed func(id string, attempts int, reason string)
	Logger            *slog.Logger
}

type entry struct {
	status Status
	cancel context.CancelFunc
}

// Monitor runs the connected → error → reconnecting → connected|disconnected
// state machine for every monitored connection. Disconnected is terminal
// until the connection is monitored again.
type Monitor struct {
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	entries    map[string]*entry
	loopCancel context.CancelFunc
}

func New(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Delays == nil {
		opts.Delays = DefaultDelays
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		opts:    opts,
		logger:  logger.With("component", "health"),
		entries: make(map[string]*entry),
	}
}

// StartMonitoring adds id in the connected state, replacing any previous
// entry. The first entry starts the probe loop.
func (m *Monitor) StartMonitoring(id string, cfg models.Connection) {
	m.mu.Lock()
	if old, ok := m.entries[id]; ok && old.cancel != nil {
		old.cancel()
	}
	m.entries[id] = &entry{status: Status{
		ConnectionID: id,
		Config:       cfg,
		State:        StateConnected,
		Metrics:      Metrics{LastConnectedAt: time.Now()},
	}}
	if m.loopCancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		m.loopCancel = cancel
		go m.loop(ctx)
	}
	m.mu.Unlock()

	m.logger.Info("monitoring", "connection", id)
	m.notify(id, StateConnected)
}

// StopMonitoring removes id and cancels its reconnect loop. Removing the last
// entry stops the probe loop.
func (m *Monitor) StopMonitoring(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	delete(m.entries, id)

	if len(m.entries) == 0 && m.loopCancel != nil {
		m.loopCancel()
		m.loopCancel = nil
	}
}

// Close stops everything.
func (m *Monitor) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.StopMonitoring(id)
	}
}

func (m *Monitor) running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loopCancel != nil
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CheckNow()
		case <-ctx.Done():
			return
		}
	}
}

// CheckNow probes every connected entry once, in parallel, and starts
// reconnecting the ones that fail.
func (m *Monitor) CheckNow() {
	if m.opts.Probe == nil {
		return
	}

	m.mu.Lock()
	var ids []string
	for id, e := range m.entries {
		if e.status.State == StateConnected {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			if !m.opts.Probe(id) {
				m.logger.Warn("health probe failed", "connection", id)
				m.fail(id)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// HandleDisconnect reports a transport drop detected elsewhere. It is a no-op
// while id is reconnecting or disconnected.
func (m *Monitor) HandleDisconnect(id string) {
	m.fail(id)
}

func (m *Monitor) fail(id string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok || e.status.State == StateReconnecting || e.status.State == StateDisconnected {
		m.mu.Unlock()
		return
	}
	e.status.State = StateError
	e.status.Metrics.LastDisconnectedAt = time.Now()
	m.mu.Unlock()
	m.notify(id, StateError)

	m.mu.Lock()
	if m.entries[id] != e || e.status.State != StateError {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.status.State = StateReconnecting
	m.mu.Unlock()
	m.notify(id, StateReconnecting)

	go m.reconnectLoop(ctx, id, e)
}

func (m *Monitor) delay(attempt int) time.Duration {
	if len(m.opts.Delays) == 0 {
		return 0
	}
	return m.opts.Delays[min(attempt-1, len(m.opts.Delays)-1)]
}

func (m *Monitor) reconnectLoop(ctx context.Context, id string, e *entry) {
	for {
		m.mu.Lock()
		if m.entries[id] != e {
			m.mu.Unlock()
			return
		}
		attempt := e.status.Attempts + 1
		cfg := e.status.Config
		m.mu.Unlock()

		timer := time.NewTimer(m.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		ok := m.opts.Reconnect != nil && m.opts.Reconnect(ctx, id, cfg, attempt)
		if ctx.Err() != nil {
			return
		}

		m.mu.Lock()
		if m.entries[id] != e {
			m.mu.Unlock()
			return
		}
		if ok {
			e.status.State = StateConnected
			e.status.Attempts = 0
			e.status.Metrics.TotalReconnects++
			e.status.Metrics.LastConnectedAt = time.Now()
			done := e.cancel
			e.cancel = nil
			m.mu.Unlock()
			done()

			m.logger.Info("reconnected", "connection", id, "attempt", attempt)
			m.notify(id, StateConnected)
			return
		}

		e.status.Attempts = attempt
		if attempt >= m.opts.MaxAttempts {
			e.status.State = StateDisconnected
			done := e.cancel
			e.cancel = nil
			m.mu.Unlock()
			done()

			reason := fmt.Sprintf("Max reconnection attempts (%d) reached", m.opts.MaxAttempts)
			m.logger.Warn("giving up", "connection", id, "attempt", attempt)
			m.notify(id, StateDisconnected)
			if m.opts.OnReconnectFailed != nil {
				m.opts.OnReconnectFailed(id, attempt, reason)
			}
			return
		}
		m.mu.Unlock()
		m.logger.Warn("reconnect failed", "connection", id, "attempt", attempt)
	}
}

func (m *Monitor) notify(id string, s State) {
	m.logger.Debug("state", "connection", id, "state", s)
	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(id, s)
	}
}

// Status returns the view of id.
func (m *Monitor) Status(id string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Status{}, false
	}
	return e.status, true
}

// Statuses returns every entry sorted by connection id.
func (m *Monitor) Statuses() []Status {
	m.mu.Lock()
	out := make([]Status, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.status)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}
