// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

/*
Package models defines the data structures shared by the synchronizer, the
HTTP API and the dashboard WebSocket hub.

Key Components:

  - JobRecord: one job as reported by a host, with unknown fields preserved
  - JobKey: the (hostname, job id) identity of a job
  - JobState: normalized lifecycle category (pending, running, ...)
  - CacheEntry: a cached JobRecord plus provenance (source, ingestion time)
  - HostSyncState: pull-sync health of a single host
  - APIResponse: standard HTTP response envelope

Job IDs arrive from host agents as JSON strings or numbers; JobRecord always
stores them as strings so keys compare consistently:

	var rec models.JobRecord
	_ = json.Unmarshal([]byte(`{"job_id": 4242, "hostname": "hpc1", "state": "R"}`), &rec)
	rec.Key()   // {hpc1 4242}
	rec.State   // models.StateRunning
*/
package models
