// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package cache

import (
	"sync"
	"time"
)

// NowFunc supplies the current time. Counters take one so tests can drive
// them with a fake clock.
type NowFunc func() time.Time

// SlidingWindowCounter counts events over a trailing window using a ring of
// fixed-size buckets.
//
// Complexity:
//   - Increment: O(1)
//   - Count: O(k) where k = number of buckets
//   - Memory: O(k)
type SlidingWindowCounter struct {
	mu         sync.Mutex
	buckets    []int64
	bucketSize time.Duration
	windowSize time.Duration
	numBuckets int
	current    int
	bucketTime time.Time // start of the current bucket
	now        NowFunc
}

// NewSlidingWindowCounter creates a counter over windowSize split into
// numBuckets buckets. A nil now uses time.Now.
//
// Example: NewSlidingWindowCounter(time.Minute, 12, nil) keeps a one minute
// window with 5 second resolution.
func NewSlidingWindowCounter(windowSize time.Duration, numBuckets int, now NowFunc) *SlidingWindowCounter {
	if numBuckets <= 0 {
		numBuckets = 10
	}
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &SlidingWindowCounter{
		buckets:    make([]int64, numBuckets),
		bucketSize: windowSize / time.Duration(numBuckets),
		windowSize: windowSize,
		numBuckets: numBuckets,
		bucketTime: now(),
		now:        now,
	}
}

// Increment adds delta to the current bucket.
func (sw *SlidingWindowCounter) Increment(delta int64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.advance()
	sw.buckets[sw.current] += delta
}

// Count returns the number of events in the window.
func (sw *SlidingWindowCounter) Count() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.advance()
	var total int64
	for _, c := range sw.buckets {
		total += c
	}
	return total
}

// RatePerSecond returns Count divided by the window length.
func (sw *SlidingWindowCounter) RatePerSecond() float64 {
	return float64(sw.Count()) / sw.windowSize.Seconds()
}

// Window returns the configured window length.
func (sw *SlidingWindowCounter) Window() time.Duration {
	return sw.windowSize
}

// Reset clears all buckets.
func (sw *SlidingWindowCounter) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	for i := range sw.buckets {
		sw.buckets[i] = 0
	}
	sw.current = 0
	sw.bucketTime = sw.now()
}

// advance rotates out buckets that fell behind the window. Must be called
// with mu held.
func (sw *SlidingWindowCounter) advance() {
	elapsed := sw.now().Sub(sw.bucketTime)
	steps := int(elapsed / sw.bucketSize)
	if steps <= 0 {
		return
	}

	if steps >= sw.numBuckets {
		for i := range sw.buckets {
			sw.buckets[i] = 0
		}
		sw.current = 0
	} else {
		for i := 0; i < steps; i++ {
			sw.current = (sw.current + 1) % sw.numBuckets
			sw.buckets[sw.current] = 0
		}
	}
	// Keep bucket boundaries aligned so partial buckets are not lost.
	sw.bucketTime = sw.bucketTime.Add(time.Duration(steps) * sw.bucketSize)
}

// SlidingWindowStore keeps one counter per key, for example per host.
//
//	store := NewSlidingWindowStore(time.Minute, 12, 0, nil)
//	store.IncrementBy("hpc1", 10)
//	store.Count("hpc1")
type SlidingWindowStore struct {
	mu         sync.RWMutex
	counters   map[string]*SlidingWindowCounter
	windowSize time.Duration
	numBuckets int
	maxKeys    int
	now        NowFunc
}

// NewSlidingWindowStore creates a store. maxKeys of 0 means unlimited.
func NewSlidingWindowStore(windowSize time.Duration, numBuckets, maxKeys int, now NowFunc) *SlidingWindowStore {
	return &SlidingWindowStore{
		counters:   make(map[string]*SlidingWindowCounter),
		windowSize: windowSize,
		numBuckets: numBuckets,
		maxKeys:    maxKeys,
		now:        now,
	}
}

// IncrementBy adds delta to the counter for key, creating it if needed.
func (s *SlidingWindowStore) IncrementBy(key string, delta int64) {
	s.mu.Lock()
	counter, exists := s.counters[key]
	if !exists {
		if s.maxKeys > 0 && len(s.counters) >= s.maxKeys {
			s.evictIdle()
		}
		counter = NewSlidingWindowCounter(s.windowSize, s.numBuckets, s.now)
		s.counters[key] = counter
	}
	s.mu.Unlock()

	counter.Increment(delta)
}

// Count returns the windowed count for key.
func (s *SlidingWindowStore) Count(key string) int64 {
	s.mu.RLock()
	counter, exists := s.counters[key]
	s.mu.RUnlock()

	if !exists {
		return 0
	}
	return counter.Count()
}

// Snapshot returns the windowed count of every key with a non-zero count.
func (s *SlidingWindowStore) Snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64, len(s.counters))
	for key, counter := range s.counters {
		if c := counter.Count(); c > 0 {
			out[key] = c
		}
	}
	return out
}

// Remove drops the counter for key.
func (s *SlidingWindowStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
}

// Len returns the number of tracked keys.
func (s *SlidingWindowStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.counters)
}

// Clear removes every counter.
func (s *SlidingWindowStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[string]*SlidingWindowCounter)
}

// evictIdle drops counters with an empty window, or an arbitrary one if all
// are active. Must be called with mu held.
func (s *SlidingWindowStore) evictIdle() {
	for key, counter := range s.counters {
		if counter.Count() == 0 {
			delete(s.counters, key)
			return
		}
	}
	for key := range s.counters {
		delete(s.counters, key)
		return
	}
}
