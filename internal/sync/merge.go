// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package sync

import (
	"time"

	"github.com/tomtom215/slurmdeck/internal/logging"
	"github.com/tomtom215/slurmdeck/internal/metrics"
	"github.com/tomtom215/slurmdeck/internal/models"
)

// Ingest queues updates for merging and returns how many were admitted.
// Updates without a hostname or job ID are dropped. A missing Key is taken
// from the record; a missing Timestamp defaults to now.
//
// Immediate updates are merged before Ingest returns unless another merge
// pass is running, in which case that pass picks them up without delay.
// Other updates are merged after the batch delay.
func (s *Synchronizer) Ingest(updates []PendingUpdate, immediate bool) int {
	if len(updates) == 0 {
		return 0
	}

	s.mu.Lock()
	if !s.st.initialized {
		s.st.counters.dropped += uint64(len(updates))
		s.mu.Unlock()
		metrics.UpdatesDropped.WithLabelValues("destroyed").Add(float64(len(updates)))
		return 0
	}

	now := s.clock.Now()
	admitted := 0
	for _, u := range updates {
		if !u.Key.Valid() {
			u.Key = u.Record.Key()
		}
		if !u.Key.Valid() {
			s.st.counters.dropped++
			metrics.UpdatesDropped.WithLabelValues("missing_identity").Inc()
			logging.Warn().Str("hostname", u.Key.Hostname).Str("job_id", u.Key.JobID).Str("source", string(u.Source)).Msg("Dropping update without job identity")
			continue
		}
		u.Record.Hostname = u.Key.Hostname
		u.Record.JobID = u.Key.JobID
		if u.Timestamp.IsZero() {
			u.Timestamp = now
		}
		if u.Source == "" {
			u.Source = models.SourceManual
		}

		s.st.queue.push(u)
		s.st.counters.ingested++
		metrics.UpdatesIngested.WithLabelValues(string(u.Source), u.Priority.String()).Inc()
		admitted++
	}
	metrics.UpdateQueueDepth.Set(float64(s.st.queue.len()))

	if admitted == 0 {
		s.mu.Unlock()
		return 0
	}
	s.throughput.Increment(int64(admitted))

	if !immediate && !s.st.batchTimer.pending() {
		s.st.batchTimer.arm(s.clock, s.syncCfg.BatchDelay, s.batchTimerFired)
	}
	s.mu.Unlock()

	if immediate {
		s.mergePending(true)
	}
	return admitted
}

func (s *Synchronizer) batchTimerFired(seq uint64) {
	s.mu.Lock()
	ok := s.st.batchTimer.claim(seq) && s.st.initialized
	s.mu.Unlock()
	if ok {
		s.mergePending(false)
	}
}

// mergePending runs merge passes. A batched run applies one pass of at
// most BatchSize updates and re-arms the batch timer for any remainder; an
// immediate run loops until the queue is empty. Only one run is active at
// a time; a caller arriving mid-run leaves its work to the active run.
func (s *Synchronizer) mergePending(immediate bool) {
	s.mu.Lock()
	if s.st.merging {
		if immediate {
			s.st.mergeAgainNow = true
		}
		s.mu.Unlock()
		return
	}
	s.st.merging = true
	if immediate {
		s.st.batchTimer.stop()
	}

	for {
		epoch := s.st.epoch
		batch, deduplicated := s.st.queue.drain(s.syncCfg.BatchSize)
		var out dispatchSet
		if len(batch) > 0 {
			out = s.applyLocked(batch, deduplicated)
		}
		metrics.UpdateQueueDepth.Set(float64(s.st.queue.len()))
		s.mu.Unlock()

		s.dispatch(out)

		s.mu.Lock()
		if !s.st.initialized || s.st.queue.len() == 0 {
			break
		}
		if s.st.epoch != epoch {
			// Reinitialized mid-run. Only requests from the new lifetime count.
			immediate = false
		}
		if immediate || s.st.mergeAgainNow {
			immediate = true
			s.st.mergeAgainNow = false
			continue
		}
		if !s.st.batchTimer.pending() {
			s.st.batchTimer.arm(s.clock, s.syncCfg.BatchDelay, s.batchTimerFired)
		}
		break
	}
	s.st.merging = false
	s.st.mergeAgainNow = false
	s.mu.Unlock()
}

// dispatchSet is what a merge pass hands out once the lock is released.
type dispatchSet struct {
	notes []notification
	event *ChangeEvent
}

func (s *Synchronizer) dispatch(out dispatchSet) {
	for _, n := range out.notes {
		n.deliver(s.notifier)
	}
	if out.event != nil {
		s.publish(*out.event)
	}
}

// applyLocked merges batch into the cache.
func (s *Synchronizer) applyLocked(batch []PendingUpdate, deduplicated int) dispatchSet {
	now := s.clock.Now()
	ev := ChangeEvent{Reason: "merge", At: now}
	var notes []notification
	applied, rejected := 0, 0

	for i := range batch {
		u := &batch[i]
		prev := s.st.cache.Get(u.Key)
		if !acceptUpdate(prev, u, s.ttl, now) {
			rejected++
			continue
		}

		s.st.cache.Put(models.CacheEntry{
			Record:          u.Record.Clone(),
			LastUpdated:     now,
			LastSource:      u.Source,
			SourceTimestamp: u.Timestamp,
		})
		applied++
		ev.Changed = append(ev.Changed, u.Key)

		if hs := s.st.hosts[u.Key.Hostname]; hs != nil {
			hs.Jobs[u.Key.JobID] = struct{}{}
		}

		switch {
		case prev == nil:
			ev.Created++
			notes = append(notes, notification{
				kind:  noteNewEntity,
				key:   u.Key,
				to:    u.Record.State,
				label: u.Record.Label(),
			})
		case prev.Record.State != u.Record.State:
			ev.Transitions++
			notes = append(notes, notification{
				kind: noteTransition,
				key:  u.Key,
				from: prev.Record.State,
				to:   u.Record.State,
			})
		}
	}

	s.st.counters.passes++
	s.st.counters.applied += uint64(applied)
	s.st.counters.rejected += uint64(rejected)
	s.st.counters.deduplicated += uint64(deduplicated)
	metrics.RecordMergePass(len(batch), applied, rejected, deduplicated)

	logging.Trace().Int("batch", len(batch)).Int("applied", applied).Int("rejected", rejected).Int("deduplicated", deduplicated).Msg("Merge pass")

	out := dispatchSet{notes: notes}
	if applied > 0 {
		out.event = &ev
	}
	return out
}

// acceptUpdate decides whether u replaces the cached entry prev.
//
// Accepted when there is no entry or u is forced; when push data replaces
// data from another source; when the same source sends a strictly newer
// producer timestamp; when the state differs; or when prev has outlived its
// TTL and u is not older than it.
func acceptUpdate(prev *models.CacheEntry, u *PendingUpdate, ttl TTLPolicy, now time.Time) bool {
	switch {
	case prev == nil, u.Force:
		return true
	case u.Source == models.SourcePush && prev.LastSource != models.SourcePush:
		return true
	case u.Source == prev.LastSource && u.Timestamp.After(prev.SourceTimestamp):
		return true
	case u.Record.State != prev.Record.State:
		return true
	case !ttl.Valid(prev, now) && !u.Timestamp.Before(prev.SourceTimestamp):
		return true
	}
	return false
}
