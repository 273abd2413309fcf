// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/slurmdeck/internal/cache"
	"github.com/tomtom215/slurmdeck/internal/config"
	"github.com/tomtom215/slurmdeck/internal/logging"
	"github.com/tomtom215/slurmdeck/internal/metrics"
	"github.com/tomtom215/slurmdeck/internal/models"
)

var (
	// ErrHostTimeout is returned when a host fetch exceeds the host timeout.
	ErrHostTimeout = errors.New("host sync timed out")

	// ErrNotInitialized is returned by operations on a synchronizer that
	// has not been initialized or has been destroyed. Results of fetches
	// that straddle a Destroy are discarded with this error.
	ErrNotInitialized = errors.New("synchronizer not initialized")

	// ErrInvalidKey is returned for a job key missing a hostname or job ID.
	ErrInvalidKey = errors.New("invalid job key")

	// ErrPushDisabled is returned by Connect when no push endpoint is set.
	ErrPushDisabled = errors.New("push transport not configured")
)

// Options configures a Synchronizer. Zero-valued collaborators get
// production defaults.
type Options struct {
	Sync      config.SyncConfig
	Transport config.TransportConfig
	TTL       config.TTLConfig

	// Client defaults to a circuit-breaking StatusClient for Sync.APIBaseURL.
	Client StatusAPI

	// Transports defaults to a WebSocket factory when Transport.PushURL is
	// set. With neither, the synchronizer polls only.
	Transports TransportFactory

	// Notifier defaults to LogNotifier.
	Notifier Notifier

	// Environment is optional. Without one the synchronizer treats itself
	// as permanently foregrounded.
	Environment Environment

	// Clock defaults to RealClock.
	Clock Clock
}

// Synchronizer keeps the local job cache consistent with the cluster using
// a push transport and pull polling.
//
// All mutable state lives in one struct guarded by mu. Notifier and
// Observer callbacks always run after mu is released, and the arbiter is
// never called while mu is held.
type Synchronizer struct {
	syncCfg      config.SyncConfig
	transportCfg config.TransportConfig
	ttl          TTLPolicy

	clock      Clock
	client     StatusAPI
	transports TransportFactory
	notifier   Notifier
	env        Environment

	throughput *cache.SlidingWindowCounter

	mu sync.Mutex
	st syncState

	wg sync.WaitGroup
}

// syncState is everything the facade owns.
type syncState struct {
	initialized bool
	epoch       uint64
	ctx         context.Context
	cancel      context.CancelFunc
	arbiter     *HealthArbiter

	cache       *CacheStore
	queue       *updateQueue
	hosts       map[string]*models.HostSyncState
	currentView *models.JobKey

	merging       bool
	mergeAgainNow bool
	batchTimer    timerSlot
	graceTimer    timerSlot

	initialReceived bool
	pushSnapshotAt  map[string]time.Time

	observers    []observerEntry
	nextObserver uint64

	counters counters
}

type observerEntry struct {
	id  uint64
	obs Observer
}

type counters struct {
	ingested     uint64
	dropped      uint64
	passes       uint64
	applied      uint64
	rejected     uint64
	deduplicated uint64
}

// New creates a Synchronizer. Call Initialize to start it.
func New(opts Options) *Synchronizer {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	if opts.Client == nil {
		opts.Client = NewCircuitBreakerClient(NewStatusClient(opts.Sync), opts.Sync)
	}
	if opts.Transports == nil && opts.Transport.PushEnabled() {
		opts.Transports = NewWebSocketTransportFactory(opts.Transport)
	}

	ttl := NewTTLPolicy(opts.TTL)
	s := &Synchronizer{
		syncCfg:      opts.Sync,
		transportCfg: opts.Transport,
		ttl:          ttl,
		clock:        opts.Clock,
		client:       opts.Client,
		transports:   opts.Transports,
		notifier:     opts.Notifier,
		env:          opts.Environment,
		throughput:   cache.NewSlidingWindowCounter(time.Minute, 12, opts.Clock.Now),
	}
	s.st.cache = NewCacheStore(ttl)
	s.st.queue = newUpdateQueue(opts.Sync.DedupWindow)
	s.st.hosts = make(map[string]*models.HostSyncState)
	s.st.pushSnapshotAt = make(map[string]time.Time)

	if s.env != nil {
		s.env.OnActivity(s.NoteActivity)
		s.env.OnVisibilityChange(s.visibilityChanged)
	}
	return s
}

// Initialize resets all state, starts the transport arbiter and schedules
// the first full sync. With a push endpoint the first sync waits
// InitialGrace for a push snapshot and is skipped if one arrives.
func (s *Synchronizer) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.st.initialized {
		s.mu.Unlock()
		return nil
	}
	reset := s.resetLocked()
	s.st.initialized = true
	s.st.epoch++
	s.st.ctx, s.st.cancel = context.WithCancel(ctx)

	arb := newHealthArbiter(s.clock, s.transportCfg, s.transports, arbiterHooks{
		poll:         s.pollRequested,
		message:      s.HandlePushMessage,
		disconnected: s.transportLost,
	})
	s.st.arbiter = arb
	pushEnabled := s.transports != nil
	if pushEnabled {
		s.st.graceTimer.arm(s.clock, s.syncCfg.InitialGrace, s.graceExpired)
	}
	runCtx := s.st.ctx
	s.mu.Unlock()

	if reset != nil {
		s.publish(*reset)
	}

	foreground := s.env == nil || s.env.Foreground()
	arb.Start(runCtx, foreground)
	if !pushEnabled {
		s.background(func(ctx context.Context) { _ = s.SyncAllHosts(ctx, false) })
	}

	logging.Info().Bool("push", pushEnabled).Msg("Synchronizer initialized")
	return nil
}

// Destroy stops every timer, closes the transport and clears the cache.
// Fetches still in flight are canceled and their results discarded.
func (s *Synchronizer) Destroy() {
	s.mu.Lock()
	if !s.st.initialized {
		s.mu.Unlock()
		return
	}
	s.st.initialized = false
	s.st.epoch++
	s.st.batchTimer.stop()
	s.st.graceTimer.stop()
	arb := s.st.arbiter
	s.st.arbiter = nil
	cancel := s.st.cancel
	reset := s.resetLocked()
	s.mu.Unlock()

	if arb != nil {
		arb.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if reset != nil {
		s.publish(*reset)
	}
	logging.Info().Msg("Synchronizer destroyed")
}

// Wait blocks until background syncs started by timers and transport
// events have returned.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

// resetLocked empties the cache, queue and host table. It returns the
// reset event to publish, if anything was cached.
func (s *Synchronizer) resetLocked() *ChangeEvent {
	var removed []models.JobKey
	s.st.cache.Each(func(e *models.CacheEntry) {
		removed = append(removed, e.Record.Key())
	})
	s.st.cache.Reset()
	s.st.queue.reset()
	s.st.mergeAgainNow = false
	s.st.hosts = make(map[string]*models.HostSyncState)
	s.st.pushSnapshotAt = make(map[string]time.Time)
	s.st.currentView = nil
	s.st.initialReceived = false
	s.st.counters = counters{}
	s.throughput.Reset()
	metrics.UpdateQueueDepth.Set(0)
	s.publishHostCountsLocked()

	if len(removed) == 0 {
		return nil
	}
	return &ChangeEvent{Reason: "reset", Removed: removed, At: s.clock.Now()}
}

// Connect (re)opens the push transport and re-enables reconnects.
func (s *Synchronizer) Connect() error {
	arb := s.arbiter()
	if arb == nil {
		return ErrNotInitialized
	}
	return arb.Connect()
}

// Disconnect closes the push transport and falls back to polling until
// Connect is called.
func (s *Synchronizer) Disconnect() error {
	arb := s.arbiter()
	if arb == nil {
		return ErrNotInitialized
	}
	if s.transports == nil {
		return ErrPushDisabled
	}
	arb.Disconnect()
	return nil
}

// NoteActivity records viewer activity, lifting an idle pause.
func (s *Synchronizer) NoteActivity() {
	if arb := s.arbiter(); arb != nil {
		arb.Activity()
	}
}

func (s *Synchronizer) visibilityChanged(foreground bool) {
	if arb := s.arbiter(); arb != nil {
		arb.SetForeground(foreground)
	}
}

func (s *Synchronizer) arbiter() *HealthArbiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.arbiter
}

// SetCurrentViewJob marks the job the user is looking at. Push updates for
// it are merged immediately with realtime priority. A nil key clears it.
func (s *Synchronizer) SetCurrentViewJob(key *models.JobKey) error {
	if key != nil && !key.Valid() {
		return ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == nil {
		s.st.currentView = nil
		return nil
	}
	k := *key
	s.st.currentView = &k
	return nil
}

// CurrentViewJob returns the job set by SetCurrentViewJob.
func (s *Synchronizer) CurrentViewJob() (models.JobKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.currentView == nil {
		return models.JobKey{}, false
	}
	return *s.st.currentView, true
}

func (s *Synchronizer) isCurrentViewLocked(key models.JobKey) bool {
	return s.st.currentView != nil && *s.st.currentView == key
}

// Subscribe registers o for change events and returns a function that
// removes it.
func (s *Synchronizer) Subscribe(o Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.nextObserver++
	id := s.st.nextObserver
	s.st.observers = append(s.st.observers, observerEntry{id: id, obs: o})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.st.observers {
			if e.id == id {
				s.st.observers = append(s.st.observers[:i:i], s.st.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Synchronizer) publish(ev ChangeEvent) {
	s.mu.Lock()
	observers := make([]Observer, len(s.st.observers))
	for i, e := range s.st.observers {
		observers[i] = e.obs
	}
	s.mu.Unlock()

	for _, o := range observers {
		o.OnChange(ev)
	}
}

// SetJobOutput attaches side-channel output to a cached job. The output
// survives later record replacement.
func (s *Synchronizer) SetJobOutput(key models.JobKey, out models.OutputSnapshot) error {
	if !key.Valid() {
		return ErrInvalidKey
	}
	s.mu.Lock()
	if !s.st.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	if out.FetchedAt.IsZero() {
		out.FetchedAt = s.clock.Now()
	}
	ok := s.st.cache.SetOutput(key, out)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", key, ErrJobNotFound)
	}
	s.publish(ChangeEvent{Reason: "output", Changed: []models.JobKey{key}, At: out.FetchedAt})
	return nil
}

// HandlePushMessage ingests one push payload. Malformed payloads are
// logged and dropped.
func (s *Synchronizer) HandlePushMessage(data []byte) {
	msg, err := ParsePushMessage(data)
	if err != nil {
		metrics.UpdatesDropped.WithLabelValues("malformed").Inc()
		s.mu.Lock()
		s.st.counters.dropped++
		s.mu.Unlock()
		logging.Warn().Err(err).Int("bytes", len(data)).Msg("Dropping push message")
		return
	}
	metrics.PushMessagesReceived.WithLabelValues(msg.Type).Inc()

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = s.clock.Now()
	}

	switch msg.Type {
	case MsgInitial:
		s.applyPushSnapshot(msg.Snapshot, ts)

	case MsgJobUpdate, MsgStateChange:
		rec := msg.Records[0]
		s.mu.Lock()
		viewed := s.isCurrentViewLocked(rec.Key())
		s.mu.Unlock()

		priority := models.PriorityHigh
		if viewed {
			priority = models.PriorityRealtime
		}
		s.Ingest([]PendingUpdate{{
			Key:         rec.Key(),
			Record:      rec,
			Source:      models.SourcePush,
			Timestamp:   ts,
			Priority:    priority,
			MessageType: msg.Type,
		}}, viewed)

	case MsgBatchUpdate:
		updates := make([]PendingUpdate, 0, len(msg.Records))
		for _, rec := range msg.Records {
			updates = append(updates, PendingUpdate{
				Key:         rec.Key(),
				Record:      rec,
				Source:      models.SourcePush,
				Timestamp:   ts,
				Priority:    models.PriorityHigh,
				MessageType: msg.Type,
			})
		}
		s.Ingest(updates, false)
	}
}

// applyPushSnapshot supersedes the cached jobs of every host in snapshot:
// jobs the snapshot no longer lists are evicted and the rest replace their
// cached entries outright, keeping attached output.
func (s *Synchronizer) applyPushSnapshot(snapshot map[string][]models.JobRecord, ts time.Time) {
	s.mu.Lock()
	if !s.st.initialized {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	ev := ChangeEvent{Reason: "evict", At: now}
	var updates []PendingUpdate
	for host, records := range snapshot {
		keep := make(map[string]struct{}, len(records))
		for _, rec := range records {
			keep[rec.JobID] = struct{}{}
			updates = append(updates, PendingUpdate{
				Key:         rec.Key(),
				Record:      rec,
				Source:      models.SourcePush,
				Timestamp:   ts,
				Priority:    models.PriorityHigh,
				MessageType: MsgInitial,
				Force:       true,
			})
		}
		ev.Removed = append(ev.Removed, s.st.cache.EvictHostExcept(host, keep, time.Time{}, evictPushSnapshot)...)
		s.st.pushSnapshotAt[host] = now
	}
	s.st.initialReceived = true
	s.mu.Unlock()

	logging.Info().Int("hosts", len(snapshot)).Int("jobs", len(updates)).Int("evicted", len(ev.Removed)).Msg("Applied push snapshot")
	if len(ev.Removed) > 0 {
		s.publish(ev)
	}
	s.Ingest(updates, true)
}

// transportLost voids the push snapshot once the connection drops.
func (s *Synchronizer) transportLost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.initialReceived = false
	s.st.pushSnapshotAt = make(map[string]time.Time)
}

func (s *Synchronizer) graceExpired(seq uint64) {
	s.mu.Lock()
	if !s.st.graceTimer.claim(seq) || !s.st.initialized {
		s.mu.Unlock()
		return
	}
	received := s.st.initialReceived
	s.mu.Unlock()

	if received {
		logging.Debug().Msg("Push snapshot arrived first, skipping initial pull sync")
		return
	}
	s.background(func(ctx context.Context) { _ = s.SyncAllHosts(ctx, false) })
}

func (s *Synchronizer) pollRequested(force bool) {
	s.background(func(ctx context.Context) {
		var err error
		if force {
			err = s.ForceRefresh(ctx)
		} else {
			err = s.SyncAllHosts(ctx, false)
		}
		if err != nil && !errors.Is(err, ErrNotInitialized) {
			logging.Debug().Err(err).Bool("force", force).Msg("Poll completed with errors")
		}
	})
}

// background runs fn on its own goroutine with the lifecycle context.
func (s *Synchronizer) background(fn func(ctx context.Context)) {
	s.mu.Lock()
	if !s.st.initialized {
		s.mu.Unlock()
		return
	}
	ctx := s.st.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}
