// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

/*
host_sync.go - Host Sync Orchestrator

Pull-side reconciliation. SyncAllHosts fetches the roster and fans out one
SyncHost per host with bounded concurrency; every host settles on its own,
so one slow or failing host never blocks or fails the others.

SyncHost is skipped (unless forced) when the host synced successfully
within ActiveInterval or a push snapshot covered it within
PushSnapshotWindow. A failed fetch leaves the host's cached jobs in place.
*/

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/slurmdeck/internal/logging"
	"github.com/tomtom215/slurmdeck/internal/metrics"
	"github.com/tomtom215/slurmdeck/internal/models"
)

// IsTimeout reports whether err is a host timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrHostTimeout)
}

// ForceRefresh syncs every host, bypassing freshness checks and the push
// snapshot short-circuit. Results are merged immediately. The returned
// error joins every host failure; hosts that succeeded are applied anyway.
func (s *Synchronizer) ForceRefresh(ctx context.Context) error {
	return s.SyncAllHosts(ctx, true)
}

// SyncAllHosts fetches the host roster and syncs each host in parallel.
func (s *Synchronizer) SyncAllHosts(ctx context.Context, force bool) error {
	s.mu.Lock()
	if !s.st.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	epoch := s.st.epoch
	s.mu.Unlock()

	var roster []models.HostInfo
	err := s.withHostTimeout(ctx, func(ctx context.Context) error {
		var err error
		roster, err = s.client.Hosts(ctx)
		return err
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Host roster fetch failed")
		return fmt.Errorf("fetch host roster: %w", err)
	}

	s.mu.Lock()
	if s.st.epoch != epoch {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	for _, h := range roster {
		if _, ok := s.st.hosts[h.Hostname]; !ok {
			s.st.hosts[h.Hostname] = &models.HostSyncState{
				Hostname: h.Hostname,
				Status:   models.HostIdle,
				Jobs:     make(map[string]struct{}),
			}
		}
	}
	s.publishHostCountsLocked()
	s.mu.Unlock()

	var (
		errMu sync.Mutex
		errs  []error
	)
	var g errgroup.Group
	g.SetLimit(s.syncCfg.MaxParallelHosts)
	for _, h := range roster {
		hostname := h.Hostname
		g.Go(func() error {
			if err := s.SyncHost(ctx, hostname, force); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	metrics.FullSyncLastSuccess.SetToCurrentTime()
	logging.Debug().Int("hosts", len(roster)).Int("failed", len(errs)).Bool("force", force).Msg("Full sync finished")
	return errors.Join(errs...)
}

// SyncHost reconciles one host against the status API.
func (s *Synchronizer) SyncHost(ctx context.Context, hostname string, force bool) error {
	if hostname == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	if !s.st.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	hs := s.hostLocked(hostname)
	now := s.clock.Now()
	if !force {
		if reason := s.skipReasonLocked(hs, now); reason != "" {
			s.mu.Unlock()
			metrics.HostSyncSkipped.WithLabelValues(reason).Inc()
			return nil
		}
	}
	hs.Status = models.HostLoading
	s.publishHostCountsLocked()
	epoch := s.st.epoch
	s.mu.Unlock()

	start := time.Now()
	var groups []models.HostJobs
	err := s.withHostTimeout(ctx, func(ctx context.Context) error {
		var err error
		groups, err = s.client.HostStatus(ctx, hostname, force)
		return err
	})
	metrics.RecordHostSync(time.Since(start), classifySyncError(err))

	s.mu.Lock()
	if s.st.epoch != epoch {
		s.mu.Unlock()
		return fmt.Errorf("sync host %s: result discarded: %w", hostname, ErrNotInitialized)
	}
	hs = s.hostLocked(hostname)

	if err != nil {
		hs.Status = models.HostError
		hs.ErrorCount++
		hs.LastError = err.Error()
		hs.IsTimeout = IsTimeout(err)
		errorCount := hs.ErrorCount
		s.publishHostCountsLocked()
		s.mu.Unlock()

		logging.Warn().Err(err).Str("hostname", hostname).Int("error_count", errorCount).Msg("Host sync failed")
		if IsTimeout(err) {
			notification{kind: noteTimeout, hostname: hostname}.deliver(s.notifier)
		}
		return fmt.Errorf("sync host %s: %w", hostname, err)
	}

	var records []models.JobRecord
	for _, g := range groups {
		if g.Hostname != hostname {
			logging.Debug().Str("requested", hostname).Str("returned", g.Hostname).Msg("Ignoring jobs for another host")
			continue
		}
		records = append(records, g.Jobs...)
	}

	jobs := make(map[string]struct{}, len(records))
	updates := make([]PendingUpdate, 0, len(records))
	fetchedAt := s.clock.Now()
	for _, rec := range records {
		if rec.JobID == "" {
			continue
		}
		jobs[rec.JobID] = struct{}{}
		updates = append(updates, PendingUpdate{
			Key:         models.JobKey{Hostname: hostname, JobID: rec.JobID},
			Record:      rec,
			Source:      models.SourcePull,
			Timestamp:   fetchedAt,
			Priority:    models.PriorityNormal,
			MessageType: "host_status",
		})
	}

	hs.Status = models.HostConnected
	hs.ErrorCount = 0
	hs.LastError = ""
	hs.IsTimeout = false
	hs.LastSync = fetchedAt
	hs.Jobs = jobs
	removed := s.st.cache.EvictHostExcept(hostname, jobs, now, evictPullResync)
	s.publishHostCountsLocked()
	s.mu.Unlock()

	if len(removed) > 0 {
		s.publish(ChangeEvent{Reason: "evict", Removed: removed, At: fetchedAt})
	}
	s.Ingest(updates, force)

	logging.Debug().Str("hostname", hostname).Int("jobs", len(updates)).Int("evicted", len(removed)).Msg("Host synced")
	return nil
}

// FetchSingleJob fetches one job from its host and merges it immediately.
// It returns the cached view after the merge.
func (s *Synchronizer) FetchSingleJob(ctx context.Context, key models.JobKey) (models.JobView, error) {
	if !key.Valid() {
		return models.JobView{}, ErrInvalidKey
	}

	s.mu.Lock()
	if !s.st.initialized {
		s.mu.Unlock()
		return models.JobView{}, ErrNotInitialized
	}
	epoch := s.st.epoch
	viewed := s.isCurrentViewLocked(key)
	s.mu.Unlock()

	var rec *models.JobRecord
	err := s.withHostTimeout(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.client.Job(ctx, key.Hostname, key.JobID)
		return err
	})
	if err != nil {
		return models.JobView{}, fmt.Errorf("fetch job %s: %w", key, err)
	}

	s.mu.Lock()
	stale := s.st.epoch != epoch
	s.mu.Unlock()
	if stale {
		return models.JobView{}, fmt.Errorf("fetch job %s: result discarded: %w", key, ErrNotInitialized)
	}

	priority := models.PriorityHigh
	if viewed {
		priority = models.PriorityRealtime
	}
	s.Ingest([]PendingUpdate{{
		Key:         key,
		Record:      *rec,
		Source:      models.SourceManual,
		Timestamp:   s.clock.Now(),
		Priority:    priority,
		MessageType: "fetch_job",
		Force:       true,
	}}, true)

	view, ok := s.Job(key)
	if !ok {
		return models.JobView{}, fmt.Errorf("fetch job %s: %w", key, ErrJobNotFound)
	}
	return view, nil
}

// skipReasonLocked returns why a non-forced sync of hs can be skipped, or
// "" if it must run.
func (s *Synchronizer) skipReasonLocked(hs *models.HostSyncState, now time.Time) string {
	if hs.Status == models.HostLoading {
		return "in_flight"
	}
	if hs.Status == models.HostConnected && now.Sub(hs.LastSync) < s.syncCfg.ActiveInterval {
		return "fresh"
	}
	if at, ok := s.st.pushSnapshotAt[hs.Hostname]; ok && s.st.initialReceived && now.Sub(at) < s.syncCfg.PushSnapshotWindow {
		return "push_snapshot"
	}
	return ""
}

func (s *Synchronizer) hostLocked(hostname string) *models.HostSyncState {
	hs, ok := s.st.hosts[hostname]
	if !ok {
		hs = &models.HostSyncState{
			Hostname: hostname,
			Status:   models.HostIdle,
			Jobs:     make(map[string]struct{}),
		}
		s.st.hosts[hostname] = hs
	}
	return hs
}

func (s *Synchronizer) publishHostCountsLocked() {
	counts := make(map[string]int, 4)
	for _, hs := range s.st.hosts {
		counts[string(hs.Status)]++
	}
	metrics.SetHostStatusCounts(counts)
}

// withHostTimeout runs fn bounded by the host timeout, measured on the
// injected clock. On timeout fn's context is canceled and ErrHostTimeout
// returned without waiting for fn.
func (s *Synchronizer) withHostTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	expired := make(chan struct{})
	timer := s.clock.AfterFunc(s.syncCfg.HostTimeout, func() { close(expired) })
	defer timer.Stop()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrHostTimeout, err)
		}
		return err
	case <-expired:
		return fmt.Errorf("%w after %s", ErrHostTimeout, s.syncCfg.HostTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classifySyncError maps a fetch error to the host_sync_errors_total label.
func classifySyncError(err error) string {
	var statusErr *HTTPStatusError
	switch {
	case err == nil:
		return ""
	case IsTimeout(err):
		return "timeout"
	case isBreakerRejection(err):
		return "circuit_open"
	case errors.As(err, &statusErr):
		return "http"
	case errors.Is(err, errDecode):
		return "decode"
	default:
		return "network"
	}
}
