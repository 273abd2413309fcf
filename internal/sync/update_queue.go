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

// PendingUpdate is an update waiting for the next merge pass.
type PendingUpdate struct {
	Key    models.JobKey
	Record models.JobRecord
	Source models.UpdateSource

	// Timestamp is the producer time, used for ordering and dedup windows.
	Timestamp time.Time
	Priority  models.UpdatePriority

	// MessageType is the push message type or pull operation that produced
	// the update. Informational only.
	MessageType string

	// Force replaces the cached entry whatever its source or timestamp.
	// Set for authoritative reads such as a single-job fetch or a push
	// snapshot.
	Force bool

	seq uint64
}

// supersedes reports whether a should win over b when both fall in the
// same dedup window for one key.
//
// Order: realtime beats everything else; push beats pull at an equal or
// later timestamp; otherwise the later timestamp wins, then the higher
// priority; a full tie goes to the update that arrived last.
func supersedes(a, b *PendingUpdate) bool {
	aRT := a.Priority == models.PriorityRealtime
	bRT := b.Priority == models.PriorityRealtime
	if aRT != bRT {
		return aRT
	}

	if a.Source == models.SourcePush && b.Source == models.SourcePull && !a.Timestamp.Before(b.Timestamp) {
		return true
	}
	if b.Source == models.SourcePush && a.Source == models.SourcePull && !b.Timestamp.Before(a.Timestamp) {
		return false
	}

	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.seq > b.seq
}

// updateQueue buffers pending updates. Like CacheStore it is owned by the
// Synchronizer and guarded by its lock.
type updateQueue struct {
	pending []PendingUpdate
	nextSeq uint64
	window  time.Duration
}

func newUpdateQueue(window time.Duration) *updateQueue {
	return &updateQueue{window: window}
}

func (q *updateQueue) push(u PendingUpdate) {
	q.nextSeq++
	u.seq = q.nextSeq
	q.pending = append(q.pending, u)
}

func (q *updateQueue) len() int {
	return len(q.pending)
}

func (q *updateQueue) reset() {
	q.pending = nil
}

// drain collapses the queue and removes up to limit winners, oldest
// producer timestamp first. A limit <= 0 drains everything. The remaining
// winners stay queued with their arrival sequence intact.
func (q *updateQueue) drain(limit int) (batch []PendingUpdate, deduplicated int) {
	if len(q.pending) == 0 {
		return nil, 0
	}
	before := len(q.pending)
	winners := collapse(q.pending, q.window)
	deduplicated = before - len(winners)

	if limit <= 0 || limit >= len(winners) {
		q.pending = nil
		return winners, deduplicated
	}
	batch = winners[:limit:limit]
	q.pending = append([]PendingUpdate(nil), winners[limit:]...)
	return batch, deduplicated
}

// collapse groups updates by key, splits each group into windows of at most
// window by producer timestamp, and keeps one update per window. The result
// is ordered by timestamp, then arrival.
func collapse(updates []PendingUpdate, window time.Duration) []PendingUpdate {
	groups := make(map[models.JobKey][]PendingUpdate)
	var order []models.JobKey
	for _, u := range updates {
		if _, seen := groups[u.Key]; !seen {
			order = append(order, u.Key)
		}
		groups[u.Key] = append(groups[u.Key], u)
	}

	out := make([]PendingUpdate, 0, len(groups))
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Timestamp.Equal(group[j].Timestamp) {
				return group[i].seq < group[j].seq
			}
			return group[i].Timestamp.Before(group[j].Timestamp)
		})

		start := group[0].Timestamp
		best := group[0]
		for _, u := range group[1:] {
			if u.Timestamp.Sub(start) > window {
				out = append(out, best)
				start = u.Timestamp
				best = u
				continue
			}
			if supersedes(&u, &best) {
				best = u
			}
		}
		out = append(out, best)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].seq < out[j].seq
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
