package health

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentManager/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	states []State
	fails  []failure
}

type failure struct {
	id       string
	attempts int
	reason   string
}

func (r *recorder) state(_ string, s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) failed(id string, attempts int, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fails = append(r.fails, failure{id, attempts, reason})
}

func (r *recorder) snapshot() ([]State, []failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...), append([]failure(nil), r.fails...)
}

var fastDelays = []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}

func cfg(id string) models.Connection {
	return models.Connection{ID: id, Host: "h", Username: "u", Auth: models.AuthAgent}
}

func waitState(t *testing.T, m *Monitor, id string, want State) Status {
	t.Helper()
	var st Status
	require.Eventually(t, func() bool {
		st, _ = m.Status(id)
		return st.State == want
	}, 2*time.Second, time.Millisecond)
	return st
}

func TestFailedProbeExhaustsReconnects(t *testing.T) {
	var rec recorder
	var calls atomic.Int32
	m := New(Options{
		Probe:             func(string) bool { return false },
		Reconnect:         func(context.Context, string, models.Connection, int) bool { calls.Add(1); return false },
		Interval:          time.Hour,
		Delays:            fastDelays,
		OnStateChange:     rec.state,
		OnReconnectFailed: rec.failed,
	})
	defer m.Close()

	m.StartMonitoring("dev", cfg("dev"))
	m.CheckNow()

	st := waitState(t, m, "dev", StateDisconnected)
	assert.Equal(t, 3, st.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.False(t, st.Metrics.LastDisconnectedAt.IsZero())

	time.Sleep(20 * time.Millisecond)
	states, fails := rec.snapshot()
	assert.Equal(t, []State{StateConnected, StateError, StateReconnecting, StateDisconnected}, states)
	require.Len(t, fails, 1)
	assert.Equal(t, failure{"dev", 3, "Max reconnection attempts (3) reached"}, fails[0])

	m.CheckNow()
	m.HandleDisconnect("dev")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load(), "disconnected is terminal")
}

func TestReconnectSucceeds(t *testing.T) {
	var rec recorder
	var attempts []int
	var mu sync.Mutex
	m := New(Options{
		Probe: func(string) bool { return false },
		Reconnect: func(_ context.Context, _ string, c models.Connection, attempt int) bool {
			mu.Lock()
			defer mu.Unlock()
			attempts = append(attempts, attempt)
			return attempt == 2
		},
		Interval:      time.Hour,
		Delays:        fastDelays,
		OnStateChange: rec.state,
	})
	defer m.Close()

	m.StartMonitoring("dev", cfg("dev"))
	m.HandleDisconnect("dev")

	require.Eventually(t, func() bool {
		st, _ := m.Status("dev")
		return st.State == StateConnected && st.Metrics.TotalReconnects == 1
	}, 2*time.Second, time.Millisecond)

	st, _ := m.Status("dev")
	assert.Zero(t, st.Attempts)
	mu.Lock()
	assert.Equal(t, []int{1, 2}, attempts)
	mu.Unlock()

	states, _ := rec.snapshot()
	assert.Equal(t, []State{StateConnected, StateError, StateReconnecting, StateConnected}, states)
}

func TestHandleDisconnectWhileReconnecting(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	m := New(Options{
		Reconnect: func(ctx context.Context, _ string, _ models.Connection, _ int) bool {
			calls.Add(1)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return true
		},
		Interval: time.Hour,
		Delays:   fastDelays,
	})
	defer m.Close()

	m.StartMonitoring("dev", cfg("dev"))
	m.HandleDisconnect("dev")
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	m.HandleDisconnect("dev")
	m.HandleDisconnect("dev")
	close(release)

	waitState(t, m, "dev", StateConnected)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDelayScheduleClamps(t *testing.T) {
	m := New(Options{Delays: []time.Duration{time.Millisecond, 2 * time.Millisecond}})
	assert.Equal(t, time.Millisecond, m.delay(1))
	assert.Equal(t, 2*time.Millisecond, m.delay(2))
	assert.Equal(t, 2*time.Millisecond, m.delay(3))
	assert.Equal(t, 2*time.Millisecond, m.delay(10))

	assert.Equal(t, DefaultDelays, New(Options{}).opts.Delays)
	assert.Zero(t, New(Options{Delays: []time.Duration{}}).delay(5))
}

func TestProbeLoopLifecycle(t *testing.T) {
	var probes atomic.Int32
	m := New(Options{
		Probe:    func(string) bool { probes.Add(1); return true },
		Interval: 2 * time.Millisecond,
	})

	assert.False(t, m.running())
	m.StartMonitoring("a", cfg("a"))
	m.StartMonitoring("b", cfg("b"))
	assert.True(t, m.running())
	require.Eventually(t, func() bool { return probes.Load() >= 4 }, time.Second, time.Millisecond)

	m.StopMonitoring("a")
	assert.True(t, m.running())
	m.StopMonitoring("b")
	assert.False(t, m.running())
	m.StopMonitoring("b")

	time.Sleep(10 * time.Millisecond)
	n := probes.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, probes.Load(), "no probes after the last entry is removed")

	m.StartMonitoring("c", cfg("c"))
	assert.True(t, m.running())
	m.Close()
	assert.False(t, m.running())
}

func TestStopMonitoringCancelsReconnect(t *testing.T) {
	var calls atomic.Int32
	m := New(Options{
		Reconnect: func(context.Context, string, models.Connection, int) bool { calls.Add(1); return false },
		Delays:    []time.Duration{50 * time.Millisecond},
	})
	m.StartMonitoring("dev", cfg("dev"))
	m.HandleDisconnect("dev")
	m.StopMonitoring("dev")

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, calls.Load())
	_, ok := m.Status("dev")
	assert.False(t, ok)
}

func TestStatusesSorted(t *testing.T) {
	m := New(Options{Interval: time.Hour})
	defer m.Close()
	m.StartMonitoring("b", cfg("b"))
	m.StartMonitoring("a", cfg("a"))

	sts := m.Statuses()
	require.Len(t, sts, 2)
	assert.Equal(t, "a", sts[0].ConnectionID)
	assert.Equal(t, StateConnected, sts[1].State)
}
