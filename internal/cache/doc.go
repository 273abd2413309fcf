// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

// Package cache provides time-windowed counters used for update throughput
// reporting. Counters accept a NowFunc so they follow the same clock as the
// synchronizer.
package cache
