// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package sync

import (
	"sort"
	"time"

	"github.com/tomtom215/slurmdeck/internal/models"
)

// ConnectionStatus combines the transport arbiter state with the facade's
// own lifecycle flags.
type ConnectionStatus struct {
	TransportStatus
	Initialized         bool `json:"initialized"`
	InitialDataReceived bool `json:"initial_data_received"`
}

// SyncMetrics are the counters exposed to the dashboard. They reset with
// Initialize; the Prometheus series do not.
type SyncMetrics struct {
	CacheHits    uint64  `json:"cache_hits"`
	CacheMisses  uint64  `json:"cache_misses"`
	HitRate      float64 `json:"hit_rate"`
	CacheEntries int     `json:"cache_entries"`
	QueueDepth   int     `json:"queue_depth"`

	MergePasses         uint64 `json:"merge_passes"`
	UpdatesIngested     uint64 `json:"updates_ingested"`
	UpdatesApplied      uint64 `json:"updates_applied"`
	UpdatesRejected     uint64 `json:"updates_rejected"`
	UpdatesDeduplicated uint64 `json:"updates_deduplicated"`
	UpdatesDropped      uint64 `json:"updates_dropped"`

	UpdatesLastMinute int64   `json:"updates_last_minute"`
	UpdatesPerSecond  float64 `json:"updates_per_second"`

	JobsByState map[models.JobState]int `json:"jobs_by_state"`
}

// AllJobs returns every cached job, newest submission first, then by host
// and job ID.
func (s *Synchronizer) AllJobs() []models.JobView {
	return s.collect(func(*models.CacheEntry) bool { return true })
}

// JobsByState returns the cached jobs in state, ordered like AllJobs.
func (s *Synchronizer) JobsByState(state models.JobState) []models.JobView {
	return s.collect(func(e *models.CacheEntry) bool { return e.Record.State == state })
}

// HostJobs returns the cached jobs of hostname, ordered like AllJobs.
func (s *Synchronizer) HostJobs(hostname string) []models.JobView {
	s.mu.Lock()
	now := s.clock.Now()
	keys := s.st.cache.HostKeys(hostname)
	views := make([]models.JobView, 0, len(keys))
	for _, key := range keys {
		views = append(views, s.viewLocked(s.st.cache.Get(key), now))
	}
	s.mu.Unlock()

	sortViews(views)
	return views
}

// Job returns the cached view of key.
func (s *Synchronizer) Job(key models.JobKey) (models.JobView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.st.cache.Get(key)
	if entry == nil {
		return models.JobView{}, false
	}
	return s.viewLocked(entry, s.clock.Now()), true
}

// IsValid reports whether key is cached and within its TTL. Each call
// counts toward the cache hit/miss metrics.
func (s *Synchronizer) IsValid(key models.JobKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.cache.IsValid(key, s.clock.Now())
}

// HostStates returns the sync state of every known host, by hostname.
func (s *Synchronizer) HostStates() []models.HostSyncState {
	s.mu.Lock()
	out := make([]models.HostSyncState, 0, len(s.st.hosts))
	for _, hs := range s.st.hosts {
		out = append(out, hs.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	return out
}

// HostState returns the sync state of one host.
func (s *Synchronizer) HostState(hostname string) (models.HostSyncState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hs, ok := s.st.hosts[hostname]
	if !ok {
		return models.HostSyncState{}, false
	}
	return hs.Clone(), true
}

// ConnectionStatus reports transport and polling state.
func (s *Synchronizer) ConnectionStatus() ConnectionStatus {
	s.mu.Lock()
	arb := s.st.arbiter
	status := ConnectionStatus{
		Initialized:         s.st.initialized,
		InitialDataReceived: s.st.initialReceived,
	}
	s.mu.Unlock()

	if arb != nil {
		status.TransportStatus = arb.Status()
	} else {
		status.TransportStatus = TransportStatus{
			PushEnabled: s.transports != nil,
			State:       TransportDisconnected,
		}
	}
	return status
}

// Metrics returns cache and merge counters plus update throughput.
func (s *Synchronizer) Metrics() SyncMetrics {
	s.mu.Lock()
	hits, misses := s.st.cache.Stats()
	m := SyncMetrics{
		CacheHits:           hits,
		CacheMisses:         misses,
		CacheEntries:        s.st.cache.Len(),
		QueueDepth:          s.st.queue.len(),
		MergePasses:         s.st.counters.passes,
		UpdatesIngested:     s.st.counters.ingested,
		UpdatesApplied:      s.st.counters.applied,
		UpdatesRejected:     s.st.counters.rejected,
		UpdatesDeduplicated: s.st.counters.deduplicated,
		UpdatesDropped:      s.st.counters.dropped,
		JobsByState:         make(map[models.JobState]int, len(models.AllStates)),
	}
	for _, state := range models.AllStates {
		m.JobsByState[state] = 0
	}
	s.st.cache.Each(func(e *models.CacheEntry) {
		m.JobsByState[e.Record.State]++
	})
	s.mu.Unlock()

	if total := hits + misses; total > 0 {
		m.HitRate = float64(hits) / float64(total)
	}
	m.UpdatesLastMinute = s.throughput.Count()
	m.UpdatesPerSecond = s.throughput.RatePerSecond()
	return m
}

func (s *Synchronizer) collect(match func(*models.CacheEntry) bool) []models.JobView {
	s.mu.Lock()
	now := s.clock.Now()
	views := make([]models.JobView, 0, s.st.cache.Len())
	s.st.cache.Each(func(e *models.CacheEntry) {
		if match(e) {
			views = append(views, s.viewLocked(e, now))
		}
	})
	s.mu.Unlock()

	sortViews(views)
	return views
}

func (s *Synchronizer) viewLocked(e *models.CacheEntry, now time.Time) models.JobView {
	view := models.JobView{
		Job:         e.Record.Clone(),
		LastUpdated: e.LastUpdated,
		Source:      e.LastSource,
		Valid:       s.ttl.Valid(e, now),
	}
	if e.Output != nil {
		out := *e.Output
		view.Output = &out
	}
	return view
}

func sortViews(views []models.JobView) {
	sort.Slice(views, func(i, j int) bool {
		a, b := views[i].Job, views[j].Job
		at, bt := submitted(a), submitted(b)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		if a.Hostname != b.Hostname {
			return a.Hostname < b.Hostname
		}
		return a.JobID < b.JobID
	})
}

func submitted(r models.JobRecord) time.Time {
	if r.SubmitTime != nil {
		return *r.SubmitTime
	}
	return time.Time{}
}
