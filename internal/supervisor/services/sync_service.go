// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package services

import (
	"context"
	"fmt"
)

// Lifecycle matches the job synchronizer's lifecycle.
//
// Satisfied by *sync.Synchronizer:
//   - Initialize(ctx) resets state and starts transports and timers
//   - Destroy() stops everything and clears the cache
//   - Wait() blocks until background host syncs return
type Lifecycle interface {
	Initialize(ctx context.Context) error
	Destroy()
	Wait()
}

// SyncService wraps the job synchronizer as a supervised service.
//
// Each Serve call is one synchronizer lifetime:
//  1. Initialize(ctx) starts the push transport or polling
//  2. Serve blocks until the context is canceled
//  3. Destroy and Wait drain in-flight host fetches
//
// A restart by the supervisor therefore starts from an empty cache.
type SyncService struct {
	sync Lifecycle
	name string
}

// NewSyncService creates a new sync service wrapper.
func NewSyncService(s Lifecycle) *SyncService {
	return &SyncService{
		sync: s,
		name: "job-synchronizer",
	}
}

// Serve implements suture.Service.
func (s *SyncService) Serve(ctx context.Context) error {
	if err := s.sync.Initialize(ctx); err != nil {
		return fmt.Errorf("synchronizer initialize failed: %w", err)
	}

	<-ctx.Done()

	s.sync.Destroy()
	s.sync.Wait()
	return ctx.Err()
}

// String implements fmt.Stringer for logging.
func (s *SyncService) String() string {
	return s.name
}
