// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

/*
health_arbiter.go - Push Transport Health Arbiter

Owns the push connection and decides when pull polling runs.

	disconnected -> connecting -> connected_healthy -> connected_stale
	      ^______________|________________|__________________|

Polling is an independent flag: on while the transport is disconnected or
stale, off while it is healthy, and always on when no push endpoint is
configured. The paused overlay suppresses polling and reconnects after a
backgrounded idle period.
*/

package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tomtom215/slurmdeck/internal/config"
	"github.com/tomtom215/slurmdeck/internal/logging"
	"github.com/tomtom215/slurmdeck/internal/metrics"
)

// TransportState is the push connection state.
type TransportState string

const (
	TransportDisconnected TransportState = "disconnected"
	TransportConnecting   TransportState = "connecting"
	TransportHealthy      TransportState = "connected_healthy"
	TransportStale        TransportState = "connected_stale"
)

// arbiterHooks connect the arbiter to the Synchronizer. They are never
// called with the arbiter lock held.
type arbiterHooks struct {
	poll         func(force bool)
	message      func(data []byte)
	disconnected func()
}

// TransportStatus is a point-in-time view of the arbiter.
type TransportStatus struct {
	PushEnabled         bool           `json:"push_enabled"`
	State               TransportState `json:"state"`
	Polling             bool           `json:"polling"`
	Paused              bool           `json:"paused"`
	Foreground          bool           `json:"foreground"`
	ManualDisconnect    bool           `json:"manual_disconnect"`
	ReconnectPending    bool           `json:"reconnect_pending"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	PollIntervalMS      int64          `json:"poll_interval_ms"`
	LastActivity        time.Time      `json:"last_activity,omitempty"`
}

// HealthArbiter manages the push transport lifecycle.
type HealthArbiter struct {
	clock   Clock
	cfg     config.TransportConfig
	factory TransportFactory
	hooks   arbiterHooks

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool

	state     TransportState
	transport Transport
	gen       uint64 // bumped whenever the current connection is abandoned

	polling    bool
	paused     bool
	manual     bool
	foreground bool

	lastActivity    time.Time // last inbound push message
	lastInteraction time.Time // last viewer activity
	failures        int
	backoff         backoff.BackOff

	reconnectTimer timerSlot
	heartbeatTimer timerSlot
	pollTimer      timerSlot
	idleTimer      timerSlot
}

func newHealthArbiter(clock Clock, cfg config.TransportConfig, factory TransportFactory, hooks arbiterHooks) *HealthArbiter {
	return &HealthArbiter{
		clock:   clock,
		cfg:     cfg,
		factory: factory,
		hooks:   hooks,
		state:   TransportDisconnected,
		backoff: newReconnectBackoff(cfg),
	}
}

// newReconnectBackoff returns a fixed delay by default, or a capped
// exponential one. The exponential strategy never gives up.
func newReconnectBackoff(cfg config.TransportConfig) backoff.BackOff {
	if cfg.ReconnectStrategy != "exponential" {
		return backoff.NewConstantBackOff(cfg.ReconnectDelay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ReconnectDelay
	b.MaxInterval = cfg.MaxReconnectDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Start begins arbitration. With a push endpoint it dials immediately;
// without one it enters permanent polling, leaving the first sync to the
// caller.
func (a *HealthArbiter) Start(ctx context.Context, foreground bool) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.foreground = foreground
	a.lastInteraction = a.clock.Now()
	if !foreground {
		a.idleTimer.arm(a.clock, a.cfg.IdleThreshold, a.idleCheck)
	}
	metrics.SetTransportState(string(a.state))
	metrics.SetPaused(false)

	if a.factory == nil {
		a.startPollingLocked()
		a.mu.Unlock()
		logging.Info().Msg("[arbiter] No push endpoint configured, polling only")
		return
	}
	a.mu.Unlock()

	if err := a.Connect(); err != nil {
		logging.Warn().Err(err).Msg("[arbiter] Initial push connect failed, falling back to polling")
	}
}

// Stop closes the transport and cancels every timer. The arbiter cannot be
// restarted.
func (a *HealthArbiter) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.gen++
	a.reconnectTimer.stop()
	a.heartbeatTimer.stop()
	a.pollTimer.stop()
	a.idleTimer.stop()
	t := a.transport
	a.transport = nil
	a.polling = false
	a.setStateLocked(TransportDisconnected)
	metrics.SetPolling(false)
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if t != nil {
		if err := t.Close(); err != nil {
			logging.Debug().Err(err).Msg("[arbiter] Close transport")
		}
	}
}

// Connect dials the push transport and re-enables automatic reconnects
// after a manual Disconnect. It is a no-op while connected or connecting.
func (a *HealthArbiter) Connect() error {
	a.mu.Lock()
	if !a.started || a.stopped {
		a.mu.Unlock()
		return ErrNotInitialized
	}
	if a.factory == nil {
		a.mu.Unlock()
		return ErrPushDisabled
	}
	a.manual = false
	if a.state != TransportDisconnected {
		a.mu.Unlock()
		return nil
	}
	a.reconnectTimer.stop()
	gen := a.beginConnectLocked()
	ctx := a.ctx
	a.mu.Unlock()

	return a.dial(ctx, gen)
}

// Disconnect closes the transport without scheduling a reconnect and
// falls back to polling until Connect is called.
func (a *HealthArbiter) Disconnect() {
	a.mu.Lock()
	if !a.started || a.stopped {
		a.mu.Unlock()
		return
	}
	a.manual = true
	a.reconnectTimer.stop()
	a.heartbeatTimer.stop()
	wasUp := a.state != TransportDisconnected
	t := a.transport
	a.transport = nil
	a.gen++
	a.setStateLocked(TransportDisconnected)
	pollNow := a.startPollingLocked()
	a.mu.Unlock()

	logging.Info().Msg("[arbiter] Push transport disconnected on request")
	if t != nil {
		if err := t.Close(); err != nil {
			logging.Debug().Err(err).Msg("[arbiter] Close transport")
		}
	}
	if wasUp {
		a.hooks.disconnected()
	}
	if pollNow {
		a.hooks.poll(false)
	}
}

// Activity records a viewer interaction and lifts an idle pause.
func (a *HealthArbiter) Activity() {
	a.mu.Lock()
	if !a.started || a.stopped {
		a.mu.Unlock()
		return
	}
	a.lastInteraction = a.clock.Now()
	resumed := a.paused
	if resumed {
		a.resumeLocked()
	}
	if !a.foreground {
		a.idleTimer.arm(a.clock, a.cfg.IdleThreshold, a.idleCheck)
	}
	pollNow := resumed && a.polling
	a.mu.Unlock()

	if pollNow {
		a.hooks.poll(false)
	}
}

// SetForeground records a visibility change. Regaining the foreground
// lifts any pause and forces a refresh.
func (a *HealthArbiter) SetForeground(fg bool) {
	a.mu.Lock()
	if !a.started || a.stopped || a.foreground == fg {
		a.mu.Unlock()
		return
	}
	a.foreground = fg
	if fg {
		a.lastInteraction = a.clock.Now()
		a.idleTimer.stop()
		if a.paused {
			a.resumeLocked()
		}
	} else {
		a.idleTimer.arm(a.clock, a.cfg.IdleThreshold, a.idleCheck)
	}
	a.armPollLocked()
	a.mu.Unlock()

	if fg {
		a.hooks.poll(true)
	}
}

// Status returns the current arbiter state.
func (a *HealthArbiter) Status() TransportStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return TransportStatus{
		PushEnabled:         a.factory != nil,
		State:               a.state,
		Polling:             a.polling,
		Paused:              a.paused,
		Foreground:          a.foreground,
		ManualDisconnect:    a.manual,
		ReconnectPending:    a.reconnectTimer.pending(),
		ConsecutiveFailures: a.failures,
		PollIntervalMS:      a.pollIntervalLocked().Milliseconds(),
		LastActivity:        a.lastActivity,
	}
}

func (a *HealthArbiter) beginConnectLocked() uint64 {
	a.gen++
	a.setStateLocked(TransportConnecting)
	return a.gen
}

// dial opens a connection for generation gen. A result for an abandoned
// generation is discarded.
func (a *HealthArbiter) dial(ctx context.Context, gen uint64) error {
	t, err := a.factory.Open(ctx, &connHandler{a: a, gen: gen})

	a.mu.Lock()
	if gen != a.gen || a.stopped || a.manual {
		a.mu.Unlock()
		if t != nil {
			_ = t.Close()
		}
		return nil
	}

	if err != nil {
		a.failures++
		a.setStateLocked(TransportDisconnected)
		a.scheduleReconnectLocked()
		pollNow := a.startPollingLocked()
		failures := a.failures
		a.mu.Unlock()

		logging.Warn().Err(err).Int("consecutive_failures", failures).Msg("[arbiter] Push connect failed")
		if pollNow {
			a.hooks.poll(false)
		}
		return fmt.Errorf("connect push transport: %w", err)
	}

	a.transport = t
	a.failures = 0
	a.backoff.Reset()
	a.lastActivity = a.clock.Now()
	a.setStateLocked(TransportHealthy)
	a.stopPollingLocked()
	a.heartbeatTimer.arm(a.clock, a.cfg.HeartbeatInterval, a.heartbeat)
	a.mu.Unlock()

	logging.Info().Msg("[arbiter] Push transport healthy")
	return nil
}

type connHandler struct {
	a   *HealthArbiter
	gen uint64
}

func (h *connHandler) OnMessage(data []byte) { h.a.onMessage(h.gen, data) }
func (h *connHandler) OnClose(err error)     { h.a.onClose(h.gen, err) }

func (a *HealthArbiter) onMessage(gen uint64, data []byte) {
	a.mu.Lock()
	if gen != a.gen || a.stopped {
		a.mu.Unlock()
		return
	}
	a.lastActivity = a.clock.Now()
	if a.state == TransportStale {
		a.setStateLocked(TransportHealthy)
		a.stopPollingLocked()
		logging.Info().Msg("[arbiter] Push transport recovered")
	}
	a.mu.Unlock()

	a.hooks.message(data)
}

func (a *HealthArbiter) onClose(gen uint64, err error) {
	a.mu.Lock()
	if gen != a.gen || a.stopped {
		a.mu.Unlock()
		return
	}
	a.gen++
	a.transport = nil
	a.heartbeatTimer.stop()
	a.setStateLocked(TransportDisconnected)
	a.scheduleReconnectLocked()
	pollNow := a.startPollingLocked()
	a.mu.Unlock()

	logging.Warn().Err(err).Msg("[arbiter] Push transport closed, polling")
	a.hooks.disconnected()
	if pollNow {
		a.hooks.poll(false)
	}
}

// heartbeat pings the server and demotes a silent connection to stale.
func (a *HealthArbiter) heartbeat(seq uint64) {
	a.mu.Lock()
	if !a.heartbeatTimer.claim(seq) || a.stopped || a.transport == nil {
		a.mu.Unlock()
		return
	}
	t := a.transport
	now := a.clock.Now()
	pollNow := false
	if a.state == TransportHealthy && now.Sub(a.lastActivity) > a.cfg.HealthThreshold {
		a.setStateLocked(TransportStale)
		metrics.PushStaleTransitions.Inc()
		pollNow = a.startPollingLocked()
		logging.Warn().Dur("silence", now.Sub(a.lastActivity)).Msg("[arbiter] Push transport stale, polling")
	}
	a.heartbeatTimer.arm(a.clock, a.cfg.HeartbeatInterval, a.heartbeat)
	a.mu.Unlock()

	if err := t.Send(pingMessage{Type: MsgPing, Timestamp: now}); err != nil {
		logging.Debug().Err(err).Msg("[arbiter] Heartbeat ping failed")
	}
	if pollNow {
		a.hooks.poll(false)
	}
}

func (a *HealthArbiter) scheduleReconnectLocked() {
	if a.factory == nil || a.manual || a.paused || a.stopped || a.reconnectTimer.pending() {
		return
	}
	delay := a.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = a.cfg.MaxReconnectDelay
	}
	a.reconnectTimer.arm(a.clock, delay, a.reconnect)
	logging.Debug().Dur("delay", delay).Msg("[arbiter] Reconnect scheduled")
}

func (a *HealthArbiter) reconnect(seq uint64) {
	a.mu.Lock()
	if !a.reconnectTimer.claim(seq) || a.stopped || a.manual || a.paused || a.state != TransportDisconnected {
		a.mu.Unlock()
		return
	}
	gen := a.beginConnectLocked()
	ctx := a.ctx
	a.mu.Unlock()

	metrics.PushReconnects.Inc()
	_ = a.dial(ctx, gen)
}

// pollIntervalLocked is the foreground or background cadence, halved
// while a degraded transport is being retried.
func (a *HealthArbiter) pollIntervalLocked() time.Duration {
	d := a.cfg.PollBackground
	if a.foreground {
		d = a.cfg.PollForeground
	}
	if a.reconnectTimer.pending() || (a.state == TransportConnecting && a.failures > 0) {
		d /= 2
	}
	return d
}

// startPollingLocked turns polling on and reports whether the caller
// should run a poll right away.
func (a *HealthArbiter) startPollingLocked() bool {
	if a.polling {
		return false
	}
	a.polling = true
	metrics.SetPolling(true)
	if a.paused {
		return false
	}
	a.armPollLocked()
	return true
}

func (a *HealthArbiter) stopPollingLocked() {
	if !a.polling {
		return
	}
	a.polling = false
	a.pollTimer.stop()
	metrics.SetPolling(false)
}

func (a *HealthArbiter) armPollLocked() {
	if !a.polling || a.paused || a.stopped {
		a.pollTimer.stop()
		return
	}
	a.pollTimer.arm(a.clock, a.pollIntervalLocked(), a.pollTick)
}

func (a *HealthArbiter) pollTick(seq uint64) {
	a.mu.Lock()
	if !a.pollTimer.claim(seq) || !a.polling || a.paused || a.stopped {
		a.mu.Unlock()
		return
	}
	a.armPollLocked()
	a.mu.Unlock()

	a.hooks.poll(false)
}

func (a *HealthArbiter) idleCheck(seq uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.idleTimer.claim(seq) || a.stopped || a.paused || a.foreground {
		return
	}
	idle := a.clock.Now().Sub(a.lastInteraction)
	if idle < a.cfg.IdleThreshold {
		a.idleTimer.arm(a.clock, a.cfg.IdleThreshold-idle, a.idleCheck)
		return
	}

	a.paused = true
	a.pollTimer.stop()
	a.reconnectTimer.stop()
	metrics.SetPaused(true)
	logging.Info().Dur("idle", idle).Msg("[arbiter] No viewer activity, pausing sync")
}

func (a *HealthArbiter) resumeLocked() {
	a.paused = false
	metrics.SetPaused(false)
	if a.state == TransportDisconnected {
		a.scheduleReconnectLocked()
	}
	a.armPollLocked()
	logging.Info().Msg("[arbiter] Sync resumed")
}

func (a *HealthArbiter) setStateLocked(s TransportState) {
	a.state = s
	metrics.SetTransportState(string(s))
}
