// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package sync

import (
	"time"

	"github.com/tomtom215/slurmdeck/internal/metrics"
	"github.com/tomtom215/slurmdeck/internal/models"
)

// Eviction reasons, used as the metrics label.
const (
	evictPushSnapshot = "push_snapshot"
	evictPullResync   = "pull_resync"
	evictReset        = "reset"
)

// CacheStore holds one entry per job key plus a per-host index.
//
// CacheStore is not safe for concurrent use. The Synchronizer owns it and
// only touches it while holding its lock.
type CacheStore struct {
	entries map[models.JobKey]*models.CacheEntry
	byHost  map[string]map[string]struct{}
	ttl     TTLPolicy

	hits   uint64
	misses uint64
}

// NewCacheStore creates an empty store using ttl for validity checks.
func NewCacheStore(ttl TTLPolicy) *CacheStore {
	return &CacheStore{
		entries: make(map[models.JobKey]*models.CacheEntry),
		byHost:  make(map[string]map[string]struct{}),
		ttl:     ttl,
	}
}

// Get returns the entry for key, or nil.
func (c *CacheStore) Get(key models.JobKey) *models.CacheEntry {
	return c.entries[key]
}

// Put stores entry under its record key and returns the entry it replaced.
// LastUpdated never moves backwards and side-channel output carries over
// from the replaced entry when the new one has none.
func (c *CacheStore) Put(entry models.CacheEntry) *models.CacheEntry {
	key := entry.Record.Key()
	prev := c.entries[key]
	if prev != nil {
		if entry.LastUpdated.Before(prev.LastUpdated) {
			entry.LastUpdated = prev.LastUpdated
		}
		if entry.Output == nil {
			entry.Output = prev.Output
		}
	}
	c.entries[key] = &entry

	ids := c.byHost[key.Hostname]
	if ids == nil {
		ids = make(map[string]struct{})
		c.byHost[key.Hostname] = ids
	}
	ids[key.JobID] = struct{}{}

	metrics.JobCacheEntries.Set(float64(len(c.entries)))
	return prev
}

// SetOutput attaches side-channel output to an existing entry.
func (c *CacheStore) SetOutput(key models.JobKey, out models.OutputSnapshot) bool {
	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	entry.Output = &out
	return true
}

// IsValid reports whether key is cached and within its TTL at now. Every
// call counts as a hit or a miss.
func (c *CacheStore) IsValid(key models.JobKey, now time.Time) bool {
	valid := c.ttl.Valid(c.entries[key], now)
	if valid {
		c.hits++
	} else {
		c.misses++
	}
	metrics.RecordCacheLookup(valid)
	return valid
}

// Valid checks freshness without touching the hit/miss counters.
func (c *CacheStore) Valid(key models.JobKey, now time.Time) bool {
	return c.ttl.Valid(c.entries[key], now)
}

// Delete removes key and returns whether it existed.
func (c *CacheStore) Delete(key models.JobKey, reason string) bool {
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	if ids := c.byHost[key.Hostname]; ids != nil {
		delete(ids, key.JobID)
		if len(ids) == 0 {
			delete(c.byHost, key.Hostname)
		}
	}
	metrics.JobCacheEvictions.WithLabelValues(reason).Inc()
	metrics.JobCacheEntries.Set(float64(len(c.entries)))
	return true
}

// EvictHost removes every entry of hostname.
func (c *CacheStore) EvictHost(hostname, reason string) []models.JobKey {
	return c.EvictHostExcept(hostname, nil, time.Time{}, reason)
}

// EvictHostExcept removes entries of hostname whose job ID is not in keep.
// A non-zero before spares entries updated at or after that instant.
func (c *CacheStore) EvictHostExcept(hostname string, keep map[string]struct{}, before time.Time, reason string) []models.JobKey {
	var removed []models.JobKey
	for id := range c.byHost[hostname] {
		if _, ok := keep[id]; ok {
			continue
		}
		key := models.JobKey{Hostname: hostname, JobID: id}
		if !before.IsZero() && !c.entries[key].LastUpdated.Before(before) {
			continue
		}
		removed = append(removed, key)
	}
	for _, key := range removed {
		c.Delete(key, reason)
	}
	return removed
}

// HostKeys returns the keys cached for hostname.
func (c *CacheStore) HostKeys(hostname string) []models.JobKey {
	ids := c.byHost[hostname]
	keys := make([]models.JobKey, 0, len(ids))
	for id := range ids {
		keys = append(keys, models.JobKey{Hostname: hostname, JobID: id})
	}
	return keys
}

// Hosts returns every hostname with at least one cached entry.
func (c *CacheStore) Hosts() []string {
	hosts := make([]string, 0, len(c.byHost))
	for h := range c.byHost {
		hosts = append(hosts, h)
	}
	return hosts
}

// Each calls fn for every entry. fn must not modify the store.
func (c *CacheStore) Each(fn func(*models.CacheEntry)) {
	for _, e := range c.entries {
		fn(e)
	}
}

// Len returns the number of entries.
func (c *CacheStore) Len() int {
	return len(c.entries)
}

// Stats returns the hit and miss counts.
func (c *CacheStore) Stats() (hits, misses uint64) {
	return c.hits, c.misses
}

// Reset drops every entry and zeroes the counters.
func (c *CacheStore) Reset() {
	if n := len(c.entries); n > 0 {
		metrics.JobCacheEvictions.WithLabelValues(evictReset).Add(float64(n))
	}
	c.entries = make(map[models.JobKey]*models.CacheEntry)
	c.byHost = make(map[string]map[string]struct{})
	c.hits, c.misses = 0, 0
	metrics.JobCacheEntries.Set(0)
}
