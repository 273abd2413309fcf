// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package sync

import (
	"context"
	"errors"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/tomtom215/slurmdeck/internal/config"
	"github.com/tomtom215/slurmdeck/internal/models"
)

// Test assertion helpers with "check" prefix. Using t.Helper() ensures
// error messages point to the calling line.

func checkStringEqual(t *testing.T, fieldName, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %q, got %q", fieldName, want, got)
	}
}

func checkIntEqual(t *testing.T, fieldName string, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %d, got %d", fieldName, want, got)
	}
}

func checkNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func checkErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("expected error wrapping %v, got %v", target, err)
	}
}

func checkErrorContains(t *testing.T, err error, substr string) {
	t.Helper()
	if err == nil {
		t.Errorf("expected error containing %q, got nil", substr)
		return
	}
	if !strings.Contains(err.Error(), substr) {
		t.Errorf("expected error containing %q, got %q", substr, err.Error())
	}
}

func checkTrue(t *testing.T, description string, condition bool) {
	t.Helper()
	if !condition {
		t.Errorf("expected %s", description)
	}
}

func checkFalse(t *testing.T, description string, condition bool) {
	t.Helper()
	if condition {
		t.Errorf("expected not %s", description)
	}
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, description string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", description)
		}
		time.Sleep(time.Millisecond)
	}
}

// Fixtures

var testEpoch = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Sync.APIBaseURL = "http://status.invalid/api"
	cfg.Transport.PushURL = ""
	return cfg
}

func job(host, id string, state models.JobState) models.JobRecord {
	return models.JobRecord{Hostname: host, JobID: id, State: state, RawState: strings.ToUpper(string(state))}
}

func key(host, id string) models.JobKey {
	return models.JobKey{Hostname: host, JobID: id}
}

func update(rec models.JobRecord, src models.UpdateSource, ts time.Time, prio models.UpdatePriority) PendingUpdate {
	return PendingUpdate{Key: rec.Key(), Record: rec, Source: src, Timestamp: ts, Priority: prio}
}

// fakeStatusAPI serves canned host snapshots.
type fakeStatusAPI struct {
	mu     gosync.Mutex
	hosts  []string
	jobs   map[string][]models.JobRecord
	errs   map[string]error
	block  map[string]chan struct{}
	calls  map[string]int
	forced map[string]int
	roster int
}

func newFakeStatusAPI() *fakeStatusAPI {
	return &fakeStatusAPI{
		jobs:   make(map[string][]models.JobRecord),
		errs:   make(map[string]error),
		block:  make(map[string]chan struct{}),
		calls:  make(map[string]int),
		forced: make(map[string]int),
	}
}

func (f *fakeStatusAPI) setHost(host string, records ...models.JobRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	for _, h := range f.hosts {
		if h == host {
			found = true
		}
	}
	if !found {
		f.hosts = append(f.hosts, host)
	}
	f.jobs[host] = records
}

func (f *fakeStatusAPI) failHost(host string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[host] = err
}

// blockHost makes fetches of host wait until the returned channel is closed.
func (f *fakeStatusAPI) blockHost(host string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.block[host] = ch
	return ch
}

func (f *fakeStatusAPI) callCount(host string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[host]
}

func (f *fakeStatusAPI) forcedCount(host string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forced[host]
}

func (f *fakeStatusAPI) rosterCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roster
}

func (f *fakeStatusAPI) Hosts(ctx context.Context) ([]models.HostInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roster++
	out := make([]models.HostInfo, 0, len(f.hosts))
	for _, h := range f.hosts {
		out = append(out, models.HostInfo{Hostname: h})
	}
	return out, nil
}

func (f *fakeStatusAPI) HostStatus(ctx context.Context, hostname string, force bool) ([]models.HostJobs, error) {
	f.mu.Lock()
	f.calls[hostname]++
	if force {
		f.forced[hostname]++
	}
	block := f.block[hostname]
	err := f.errs[hostname]
	records := append([]models.JobRecord(nil), f.jobs[hostname]...)
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []models.HostJobs{{Hostname: hostname, Jobs: records}}, nil
}

func (f *fakeStatusAPI) Job(ctx context.Context, hostname, jobID string) (*models.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[hostname]; err != nil {
		return nil, err
	}
	for _, rec := range f.jobs[hostname] {
		if rec.JobID == jobID {
			out := rec
			return &out, nil
		}
	}
	return nil, ErrJobNotFound
}

// recordingNotifier keeps every notification.
type recordingNotifier struct {
	mu          gosync.Mutex
	created     []models.JobKey
	transitions []string
	timeouts    []string
}

func (r *recordingNotifier) NotifyNewEntity(key models.JobKey, state models.JobState, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, key)
}

func (r *recordingNotifier) NotifyStateTransition(key models.JobKey, from, to models.JobState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, key.String()+":"+string(from)+"->"+string(to))
}

func (r *recordingNotifier) NotifySyncTimeout(hostname string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts = append(r.timeouts, hostname)
}

func (r *recordingNotifier) counts() (created, transitions, timeouts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.created), len(r.transitions), len(r.timeouts)
}

// eventRecorder collects ChangeEvents.
type eventRecorder struct {
	mu     gosync.Mutex
	events []ChangeEvent
}

func (e *eventRecorder) OnChange(ev ChangeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventRecorder) byReason(reason string) []ChangeEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []ChangeEvent
	for _, ev := range e.events {
		if ev.Reason == reason {
			out = append(out, ev)
		}
	}
	return out
}

// fakeTransport is an in-memory push connection.
type fakeTransport struct {
	mu      gosync.Mutex
	handler TransportHandler
	sent    []any
	closed  bool
}

func (t *fakeTransport) Send(msg any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// deliver simulates an inbound frame.
func (t *fakeTransport) deliver(data string) {
	t.handler.OnMessage([]byte(data))
}

// drop simulates the server closing the connection.
func (t *fakeTransport) drop() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.handler.OnClose(errors.New("connection reset"))
}

// fakeTransportFactory hands out fakeTransports, failing while fail is set.
type fakeTransportFactory struct {
	mu    gosync.Mutex
	fail  bool
	opens int
	conns []*fakeTransport
}

func (f *fakeTransportFactory) Open(ctx context.Context, h TransportHandler) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.fail {
		return nil, errors.New("connection refused")
	}
	t := &fakeTransport{handler: h}
	f.conns = append(f.conns, t)
	return t, nil
}

func (f *fakeTransportFactory) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeTransportFactory) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakeTransportFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

// harness wires a Synchronizer to fakes.
type harness struct {
	s        *Synchronizer
	clock    *FakeClock
	api      *fakeStatusAPI
	notifier *recordingNotifier
	events   *eventRecorder
	env      *ManualEnvironment
	push     *fakeTransportFactory
}

type harnessOption func(*Options, *harness)

func withPush() harnessOption {
	return func(o *Options, h *harness) {
		h.push = &fakeTransportFactory{}
		o.Transports = h.push
	}
}

func withEnvironment(foreground bool) harnessOption {
	return func(o *Options, h *harness) {
		h.env = NewManualEnvironment(foreground)
		o.Environment = h.env
	}
}

func withConfig(fn func(*config.Config)) harnessOption {
	return func(o *Options, h *harness) {
		cfg := &config.Config{Sync: o.Sync, Transport: o.Transport, TTL: o.TTL}
		fn(cfg)
		o.Sync, o.Transport, o.TTL = cfg.Sync, cfg.Transport, cfg.TTL
	}
}

// newHarness builds an uninitialized synchronizer on a fake clock.
func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := testConfig()
	h := &harness{
		clock:    NewFakeClock(testEpoch),
		api:      newFakeStatusAPI(),
		notifier: &recordingNotifier{},
		events:   &eventRecorder{},
	}
	o := Options{
		Sync:      cfg.Sync,
		Transport: cfg.Transport,
		TTL:       cfg.TTL,
		Client:    h.api,
		Notifier:  h.notifier,
		Clock:     h.clock,
	}
	for _, opt := range opts {
		opt(&o, h)
	}
	h.s = New(o)
	h.s.Subscribe(h.events)
	t.Cleanup(func() {
		h.s.Destroy()
		h.s.Wait()
	})
	return h
}

// start initializes the synchronizer and waits for the first sync.
func (h *harness) start(t *testing.T) {
	t.Helper()
	checkNoError(t, h.s.Initialize(context.Background()))
	h.s.Wait()
}

// flush lets the batch timer fire so queued updates are merged.
func (h *harness) flush() {
	h.clock.Advance(h.s.syncCfg.BatchDelay)
}

// advance moves the clock and waits for the syncs it triggered.
func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.s.Wait()
}
