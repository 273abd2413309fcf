// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package models

import (
	"time"
)

// APIResponse is the envelope used by every HTTP endpoint.
//
// Status is "success" or "error". On error, Error is populated and Data is nil.
//
// Example successful response:
//
//	{
//	  "status": "success",
//	  "data": {"jobs": [...], "total": 12},
//	  "metadata": {
//	    "timestamp": "2026-03-02T12:00:00Z",
//	    "query_time_ms": 1,
//	    "cached": true
//	  }
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata describes how a response was produced.
//
// Cached is true when every job in the response was still within its TTL, so
// the answer came from the local cache without reaching a host.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError carries a machine-readable code plus a human-readable message.
//
// Common error codes:
//   - VALIDATION_ERROR: invalid path or query parameters
//   - NOT_FOUND: job or host unknown to the cache
//   - SYNC_ERROR: a host fetch failed
//   - SYNC_TIMEOUT: a host fetch exceeded its deadline
//   - SERVICE_UNAVAILABLE: the synchronizer is not running
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// JobListResponse is the payload of job listing endpoints.
type JobListResponse struct {
	Jobs  []JobView `json:"jobs"`
	Total int       `json:"total"`
}

// JobView is a job together with its cache provenance.
type JobView struct {
	Job         JobRecord       `json:"job"`
	LastUpdated time.Time       `json:"last_updated"`
	Source      UpdateSource    `json:"source"`
	Valid       bool            `json:"valid"`
	Output      *OutputSnapshot `json:"output,omitempty"`
}

// ViewRequest selects the job the dashboard is currently showing. Sending an
// empty body (or null fields) clears the selection.
type ViewRequest struct {
	Hostname string `json:"hostname" validate:"required_with=JobID,omitempty,clusterhost"`
	JobID    string `json:"job_id" validate:"required_with=Hostname,omitempty,jobid"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status     string  `json:"status"`
	Version    string  `json:"version"`
	Transport  string  `json:"transport"`
	Polling    bool    `json:"polling"`
	Paused     bool    `json:"paused"`
	HostsTotal int     `json:"hosts_total"`
	HostsError int     `json:"hosts_error"`
	Uptime     float64 `json:"uptime_seconds"`
}
