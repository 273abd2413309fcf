// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

/*
Package sync keeps a local view of batch jobs consistent across many
cluster hosts.

Jobs arrive from two unreliable sources: a WebSocket push channel and a
REST status API polled as a fallback. Either may deliver partial,
reordered or duplicate data. The package merges both into one keyed cache
whose entries expire according to the job's lifecycle state.

Key Components:

  - Synchronizer: the facade. Snapshot queries, ingestion entry points and
    lifecycle controls (Initialize, Destroy, ForceRefresh, Connect).
  - CacheStore and TTLPolicy: one entry per (hostname, job ID), valid for a
    state-dependent duration after its last ingestion.
  - Update queue and merger: pending updates are collapsed per job within
    a dedup window, then applied in batches under the merge acceptance
    rule (merge.go, update_queue.go).
  - Host sync orchestrator: parallel per-host fetches with a timeout,
    per-host status and error tracking (host_sync.go).
  - HealthArbiter: push connection lifecycle, heartbeat staleness and the
    polling cadence, including the idle pause (health_arbiter.go).
  - StatusClient and CircuitBreakerClient: the REST data source, rate
    limited, with one gobreaker breaker per host.

Data Flow:

	push frame / host fetch
	        |
	   PendingUpdate --> update queue --(dedup, batch)--> merge pass
	                                                        |
	                               CacheStore <-------------+
	                                   |
	            Notifier (new job, state change), Observer (ChangeEvent)

Conflict Resolution:

Within one dedup window a realtime update (the job the user is viewing)
wins; otherwise push beats pull at an equal or later producer timestamp,
then the later timestamp wins, then the higher priority, then the update
that arrived last.

Against the cache an update is accepted when there is no entry or the
update is forced (single-job fetches and push snapshots). Otherwise it needs
one of: push data replacing another source, a newer timestamp from the same
source, a changed state, or an expired entry that is not newer than the
update.

Concurrency:

The Synchronizer owns all cache, queue and host state behind a single
mutex. Network calls and callbacks never run with it held. Timers come
from an injected Clock; FakeClock drives them deterministically in tests.

Usage Example:

	s := sync.New(sync.Options{
	    Sync:      cfg.Sync,
	    Transport: cfg.Transport,
	    TTL:       cfg.TTL,
	})
	if err := s.Initialize(ctx); err != nil {
	    return err
	}
	defer s.Destroy()

	unsubscribe := s.Subscribe(sync.ObserverFunc(func(ev sync.ChangeEvent) {
	    log.Printf("%s: %d changed, %d removed", ev.Reason, len(ev.Changed), len(ev.Removed))
	}))
	defer unsubscribe()

	running := s.JobsByState(models.StateRunning)

See Also:

  - internal/models: job records, cache entries, host sync state
  - internal/config: sync, transport and TTL settings
  - internal/websocket: dashboard broadcast and viewer Environment
*/
package sync
