// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package cache

import (
	"sync"
	"testing"
	"time"
)

// manualNow is a settable time source.
type manualNow struct {
	mu sync.Mutex
	t  time.Time
}

func newManualNow() *manualNow {
	return &manualNow{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (m *manualNow) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

func (m *manualNow) Add(d time.Duration) {
	m.mu.Lock()
	m.t = m.t.Add(d)
	m.mu.Unlock()
}

func TestSlidingWindowCounter_BasicOperations(t *testing.T) {
	clock := newManualNow()
	sw := NewSlidingWindowCounter(time.Minute, 6, clock.Now)

	sw.Increment(1)
	sw.Increment(4)
	if got := sw.Count(); got != 5 {
		t.Errorf("Count() = %d, want 5", got)
	}
	if got := sw.RatePerSecond(); got != 5.0/60.0 {
		t.Errorf("RatePerSecond() = %v", got)
	}
}

func TestSlidingWindowCounter_WindowExpiration(t *testing.T) {
	clock := newManualNow()
	sw := NewSlidingWindowCounter(time.Minute, 6, clock.Now)

	sw.Increment(10)
	clock.Add(61 * time.Second)
	if got := sw.Count(); got != 0 {
		t.Errorf("Count() after window = %d, want 0", got)
	}
}

func TestSlidingWindowCounter_PartialExpiration(t *testing.T) {
	clock := newManualNow()
	sw := NewSlidingWindowCounter(time.Minute, 6, clock.Now)

	sw.Increment(3) // bucket 0
	clock.Add(25 * time.Second)
	sw.Increment(2) // bucket 2
	clock.Add(40 * time.Second)

	// 65s after the first increment: bucket 0 has rotated out, bucket 2 has not.
	if got := sw.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}

func TestSlidingWindowCounter_SubBucketStepsAccumulate(t *testing.T) {
	clock := newManualNow()
	sw := NewSlidingWindowCounter(time.Minute, 6, clock.Now)

	sw.Increment(1)
	for i := 0; i < 14; i++ {
		clock.Add(5 * time.Second)
		sw.Count()
	}
	// 70s have passed in 5s steps; the first increment must be gone.
	if got := sw.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestSlidingWindowCounter_Reset(t *testing.T) {
	sw := NewSlidingWindowCounter(time.Minute, 6, nil)
	sw.Increment(7)
	sw.Reset()
	if got := sw.Count(); got != 0 {
		t.Errorf("Count() after Reset = %d", got)
	}
}

func TestSlidingWindowCounter_Concurrent(t *testing.T) {
	sw := NewSlidingWindowCounter(time.Minute, 6, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sw.Increment(1)
			}
		}()
	}
	wg.Wait()

	if got := sw.Count(); got != 2000 {
		t.Errorf("Count() = %d, want 2000", got)
	}
}

func TestSlidingWindowStore(t *testing.T) {
	clock := newManualNow()
	store := NewSlidingWindowStore(time.Minute, 6, 2, clock.Now)

	store.IncrementBy("hpc1", 3)
	store.IncrementBy("hpc2", 1)
	if store.Count("hpc1") != 3 || store.Count("missing") != 0 {
		t.Errorf("unexpected counts: %v", store.Snapshot())
	}

	clock.Add(2 * time.Minute)
	store.IncrementBy("hpc3", 5) // evicts an idle key
	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Len())
	}

	snap := store.Snapshot()
	if len(snap) != 1 || snap["hpc3"] != 5 {
		t.Errorf("Snapshot() = %v", snap)
	}

	store.Remove("hpc3")
	store.Clear()
	if store.Len() != 0 {
		t.Error("Clear() left counters behind")
	}
}
