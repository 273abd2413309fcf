// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

/*
Package metrics defines the Prometheus metrics exported at /metrics.

Metric families:

  - job_cache_*: validity hits and misses, entry count, evictions by reason
  - job_updates_*, job_merge_*: queue admission, depth, per-pass outcomes
  - host_sync_*, hosts_by_status: pull sync latency, failures and skips
  - push_*, pull_polling_active, sync_paused: transport arbiter state
  - circuit_breaker_*: per-host status API breakers
  - api_*, websocket_*: HTTP API and dashboard fan-out

All collectors are registered with the default registry through promauto.
Tests read values with prometheus/testutil:

	before := testutil.ToFloat64(metrics.JobCacheHits)
	store.IsValid(key)
	after := testutil.ToFloat64(metrics.JobCacheHits)
*/
package metrics
