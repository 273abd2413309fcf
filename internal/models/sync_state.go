// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package models

import "time"

// UpdateSource records which transport delivered a record.
type UpdateSource string

const (
	SourcePush   UpdateSource = "push"
	SourcePull   UpdateSource = "pull"
	SourceManual UpdateSource = "manual"
)

// UpdatePriority orders competing updates for the same job.
// realtime > high > normal > low.
type UpdatePriority int

const (
	PriorityLow UpdatePriority = iota
	PriorityNormal
	PriorityHigh
	PriorityRealtime
)

// String implements fmt.Stringer.
func (p UpdatePriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityRealtime:
		return "realtime"
	default:
		return "unknown"
	}
}

// MarshalText encodes the priority by name.
func (p UpdatePriority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// OutputSnapshot is side-channel data cached alongside a job (for example the
// tail of its stdout file). It survives record replacement.
type OutputSnapshot struct {
	Content   string    `json:"content"`
	FetchedAt time.Time `json:"fetched_at"`
	Truncated bool      `json:"truncated,omitempty"`
}

// CacheEntry is the cached view of one job plus its provenance.
type CacheEntry struct {
	Record JobRecord `json:"record"`

	// LastUpdated is the ingestion time, never the producer time.
	LastUpdated time.Time    `json:"last_updated"`
	LastSource  UpdateSource `json:"last_source"`

	// SourceTimestamp is the producer timestamp of the accepted update.
	SourceTimestamp time.Time `json:"source_timestamp"`

	Output *OutputSnapshot `json:"output,omitempty"`
}

// HostStatus is the pull-sync status of one host.
type HostStatus string

const (
	HostIdle      HostStatus = "idle"
	HostLoading   HostStatus = "loading"
	HostConnected HostStatus = "connected"
	HostError     HostStatus = "error"
)

// HostSyncState tracks pull-sync health for one host.
type HostSyncState struct {
	Hostname   string     `json:"hostname"`
	Status     HostStatus `json:"status"`
	LastSync   time.Time  `json:"last_sync"`
	ErrorCount int        `json:"error_count"`
	LastError  string     `json:"last_error,omitempty"`
	IsTimeout  bool       `json:"is_timeout"`

	// Jobs indexes the job IDs the host reported in its last snapshot.
	Jobs map[string]struct{} `json:"-"`
}

// JobCount returns the size of the host's job index.
func (h *HostSyncState) JobCount() int {
	return len(h.Jobs)
}

// Clone returns a copy whose job index can be read without locking.
func (h *HostSyncState) Clone() HostSyncState {
	out := *h
	out.Jobs = make(map[string]struct{}, len(h.Jobs))
	for id := range h.Jobs {
		out.Jobs[id] = struct{}{}
	}
	return out
}

// HostInfo is one entry of the host roster.
type HostInfo struct {
	Hostname string `json:"hostname"`
}

// HostJobs is the per-host status payload returned by the pull endpoint.
type HostJobs struct {
	Hostname string      `json:"hostname"`
	Jobs     []JobRecord `json:"jobs"`
}
