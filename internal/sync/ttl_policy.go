// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package sync

import (
	"time"

	"github.com/tomtom215/slurmdeck/internal/config"
	"github.com/tomtom215/slurmdeck/internal/models"
)

// TTLPolicy maps a job's lifecycle state to how long its cache entry stays
// valid. Validity depends on nothing but the state and the entry age.
type TTLPolicy struct {
	byState map[models.JobState]time.Duration
}

// NewTTLPolicy builds a policy from configuration.
func NewTTLPolicy(cfg config.TTLConfig) TTLPolicy {
	return TTLPolicy{byState: map[models.JobState]time.Duration{
		models.StatePending:   cfg.Pending,
		models.StateRunning:   cfg.Running,
		models.StateSuspended: cfg.Suspended,
		models.StateCompleted: cfg.Completed,
		models.StateFailed:    cfg.Failed,
		models.StateUnknown:   cfg.Unknown,
	}}
}

// DefaultTTLPolicy returns the policy built from the default configuration.
func DefaultTTLPolicy() TTLPolicy {
	return NewTTLPolicy(config.Default().TTL)
}

// TTL returns the lifetime for state. States outside the known set use the
// unknown-state lifetime.
func (p TTLPolicy) TTL(state models.JobState) time.Duration {
	if d, ok := p.byState[state]; ok {
		return d
	}
	return p.byState[models.StateUnknown]
}

// Valid reports whether entry is still fresh at now.
func (p TTLPolicy) Valid(entry *models.CacheEntry, now time.Time) bool {
	if entry == nil {
		return false
	}
	return now.Sub(entry.LastUpdated) < p.TTL(entry.Record.State)
}

// ExpiresAt returns the instant entry stops being valid.
func (p TTLPolicy) ExpiresAt(entry *models.CacheEntry) time.Time {
	return entry.LastUpdated.Add(p.TTL(entry.Record.State))
}
