// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package sync

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/tomtom215/slurmdeck/internal/config"
)

// hookRecorder counts arbiter hook calls.
type hookRecorder struct {
	mu          gosync.Mutex
	polls       int
	forcedPolls int
	messages    []string
	disconnects int
}

func (h *hookRecorder) hooks() arbiterHooks {
	return arbiterHooks{
		poll: func(force bool) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.polls++
			if force {
				h.forcedPolls++
			}
		},
		message: func(data []byte) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.messages = append(h.messages, string(data))
		},
		disconnected: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.disconnects++
		},
	}
}

func (h *hookRecorder) pollCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.polls
}

func (h *hookRecorder) forcedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.forcedPolls
}

func (h *hookRecorder) disconnectCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disconnects
}

func newTestArbiter(t *testing.T, factory TransportFactory, mutate ...func(*config.TransportConfig)) (*HealthArbiter, *FakeClock, *hookRecorder) {
	t.Helper()
	cfg := config.Default().Transport
	for _, m := range mutate {
		m(&cfg)
	}
	clock := NewFakeClock(testEpoch)
	rec := &hookRecorder{}
	arb := newHealthArbiter(clock, cfg, factory, rec.hooks())
	t.Cleanup(arb.Stop)
	return arb, clock, rec
}

func TestHealthArbiter_PollOnlyMode(t *testing.T) {
	arb, clock, rec := newTestArbiter(t, nil)
	arb.Start(context.Background(), true)

	st := arb.Status()
	checkFalse(t, "push enabled", st.PushEnabled)
	checkTrue(t, "polling", st.Polling)
	checkStringEqual(t, "state", string(st.State), string(TransportDisconnected))
	checkIntEqual(t, "poll interval", int(st.PollIntervalMS), 30000)

	clock.Advance(29 * time.Second)
	checkIntEqual(t, "polls before interval", rec.pollCount(), 0)
	clock.Advance(time.Second)
	checkIntEqual(t, "polls after one interval", rec.pollCount(), 1)
	clock.Advance(60 * time.Second)
	checkIntEqual(t, "polls after three intervals", rec.pollCount(), 3)

	checkErrorIs(t, arb.Connect(), ErrPushDisabled)
}

func TestHealthArbiter_ConnectStopsPolling(t *testing.T) {
	factory := &fakeTransportFactory{}
	arb, clock, rec := newTestArbiter(t, factory)
	arb.Start(context.Background(), true)

	st := arb.Status()
	checkStringEqual(t, "state", string(st.State), string(TransportHealthy))
	checkFalse(t, "polling while healthy", st.Polling)

	clock.Advance(40 * time.Second)
	checkIntEqual(t, "polls while healthy", rec.pollCount(), 0)
	checkIntEqual(t, "opens", factory.openCount(), 1)
}

func TestHealthArbiter_StaleAndRecovery(t *testing.T) {
	factory := &fakeTransportFactory{}
	arb, clock, rec := newTestArbiter(t, factory)
	arb.Start(context.Background(), true)
	conn := factory.last()

	clock.Advance(40 * time.Second)
	checkStringEqual(t, "state at 40s", string(arb.Status().State), string(TransportHealthy))
	checkIntEqual(t, "pings", conn.sentCount(), 4)

	clock.Advance(10 * time.Second)
	st := arb.Status()
	checkStringEqual(t, "state at 50s", string(st.State), string(TransportStale))
	checkTrue(t, "polling while stale", st.Polling)
	checkIntEqual(t, "immediate poll on stale", rec.pollCount(), 1)

	conn.deliver(`{"type":"pong"}`)
	st = arb.Status()
	checkStringEqual(t, "state after message", string(st.State), string(TransportHealthy))
	checkFalse(t, "polling after recovery", st.Polling)
	checkIntEqual(t, "messages forwarded", len(rec.messages), 1)
	checkTrue(t, "last activity updated", st.LastActivity.Equal(testEpoch.Add(50*time.Second)))
}

func TestHealthArbiter_DropFallsBackAndReconnects(t *testing.T) {
	factory := &fakeTransportFactory{}
	arb, clock, rec := newTestArbiter(t, factory)
	arb.Start(context.Background(), true)

	factory.last().drop()

	st := arb.Status()
	checkStringEqual(t, "state after drop", string(st.State), string(TransportDisconnected))
	checkTrue(t, "polling after drop", st.Polling)
	checkTrue(t, "reconnect pending", st.ReconnectPending)
	checkIntEqual(t, "halved poll interval", int(st.PollIntervalMS), 15000)
	checkIntEqual(t, "disconnect hook", rec.disconnectCount(), 1)
	checkIntEqual(t, "immediate poll", rec.pollCount(), 1)

	clock.Advance(5 * time.Second)
	st = arb.Status()
	checkStringEqual(t, "state after reconnect", string(st.State), string(TransportHealthy))
	checkFalse(t, "polling after reconnect", st.Polling)
	checkIntEqual(t, "opens", factory.openCount(), 2)
}

func TestHealthArbiter_StaleCloseIgnored(t *testing.T) {
	factory := &fakeTransportFactory{}
	arb, _, rec := newTestArbiter(t, factory)
	arb.Start(context.Background(), true)
	old := factory.last()

	old.drop()
	checkNoError(t, arb.Connect())
	// A late close from the abandoned connection must not tear down the new one.
	old.handler.OnClose(nil)

	checkStringEqual(t, "state", string(arb.Status().State), string(TransportHealthy))
	checkIntEqual(t, "disconnect hook", rec.disconnectCount(), 1)
}

func TestHealthArbiter_DialFailureRetries(t *testing.T) {
	factory := &fakeTransportFactory{fail: true}
	arb, clock, rec := newTestArbiter(t, factory, func(c *config.TransportConfig) {
		c.ReconnectStrategy = "exponential"
		c.ReconnectDelay = time.Second
		c.MaxReconnectDelay = 4 * time.Second
	})
	arb.Start(context.Background(), true)

	st := arb.Status()
	checkIntEqual(t, "failures", st.ConsecutiveFailures, 1)
	checkTrue(t, "polling", st.Polling)
	checkIntEqual(t, "immediate poll", rec.pollCount(), 1)

	clock.Advance(30 * time.Second)
	checkTrue(t, "retries kept going", factory.openCount() > 3)
	checkTrue(t, "still failing", arb.Status().ConsecutiveFailures > 1)

	factory.setFail(false)
	clock.Advance(10 * time.Second)
	st = arb.Status()
	checkStringEqual(t, "state", string(st.State), string(TransportHealthy))
	checkIntEqual(t, "failures reset", st.ConsecutiveFailures, 0)
}

func TestHealthArbiter_ManualDisconnect(t *testing.T) {
	factory := &fakeTransportFactory{}
	arb, clock, rec := newTestArbiter(t, factory)
	arb.Start(context.Background(), true)

	arb.Disconnect()
	st := arb.Status()
	checkTrue(t, "manual flag", st.ManualDisconnect)
	checkFalse(t, "reconnect pending", st.ReconnectPending)
	checkTrue(t, "polling", st.Polling)
	checkIntEqual(t, "disconnect hook", rec.disconnectCount(), 1)

	clock.Advance(time.Minute)
	checkIntEqual(t, "no reconnect attempts", factory.openCount(), 1)

	checkNoError(t, arb.Connect())
	st = arb.Status()
	checkFalse(t, "manual flag cleared", st.ManualDisconnect)
	checkStringEqual(t, "state", string(st.State), string(TransportHealthy))
}

func TestHealthArbiter_IdlePauseAndResume(t *testing.T) {
	arb, clock, rec := newTestArbiter(t, nil)
	arb.Start(context.Background(), false)

	checkIntEqual(t, "background interval", int(arb.Status().PollIntervalMS), 120000)

	clock.Advance(5 * time.Minute)
	st := arb.Status()
	checkTrue(t, "paused", st.Paused)
	polls := rec.pollCount()

	clock.Advance(30 * time.Minute)
	checkIntEqual(t, "no polls while paused", rec.pollCount(), polls)

	arb.Activity()
	checkFalse(t, "resumed", arb.Status().Paused)
	checkIntEqual(t, "poll on resume", rec.pollCount(), polls+1)
}

func TestHealthArbiter_ActivityDefersIdlePause(t *testing.T) {
	arb, clock, _ := newTestArbiter(t, nil)
	arb.Start(context.Background(), false)

	clock.Advance(4 * time.Minute)
	arb.Activity()
	clock.Advance(4 * time.Minute)
	checkFalse(t, "paused before threshold since activity", arb.Status().Paused)

	clock.Advance(time.Minute)
	checkTrue(t, "paused at threshold", arb.Status().Paused)
}

func TestHealthArbiter_ForegroundForcesRefresh(t *testing.T) {
	arb, clock, rec := newTestArbiter(t, nil)
	arb.Start(context.Background(), false)

	clock.Advance(5 * time.Minute)
	checkTrue(t, "paused", arb.Status().Paused)

	arb.SetForeground(true)
	st := arb.Status()
	checkFalse(t, "paused after foreground", st.Paused)
	checkTrue(t, "foreground", st.Foreground)
	checkIntEqual(t, "forced poll", rec.forcedCount(), 1)
	checkIntEqual(t, "foreground interval", int(st.PollIntervalMS), 30000)

	arb.SetForeground(true)
	checkIntEqual(t, "no-op visibility change", rec.forcedCount(), 1)
}

func TestHealthArbiter_StopCancelsTimers(t *testing.T) {
	factory := &fakeTransportFactory{}
	arb, clock, rec := newTestArbiter(t, factory)
	arb.Start(context.Background(), true)
	conn := factory.last()

	arb.Stop()
	checkIntEqual(t, "pending timers", clock.Pending(), 0)
	checkTrue(t, "transport closed", conn.closed)

	conn.deliver(`{"type":"pong"}`)
	checkIntEqual(t, "messages after stop", len(rec.messages), 0)
	checkErrorIs(t, arb.Connect(), ErrNotInitialized)
}
