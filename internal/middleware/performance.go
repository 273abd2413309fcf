// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package middleware

import (
	"net/http"
	"sort"
	"sync"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tomtom215/slurmdeck/internal/logging"
)

// RequestMetrics is one observed API request.
type RequestMetrics struct {
	Route      string
	Method     string
	DurationMS int64
	StatusCode int
	Timestamp  time.Time
}

// PerformanceMonitor keeps a window of recent requests and summarizes
// latency per route.
type PerformanceMonitor struct {
	mu          sync.RWMutex
	metrics     []RequestMetrics
	maxMetrics  int
	slowRequest time.Duration
}

// EndpointStats summarizes one route over the monitor's window.
type EndpointStats struct {
	Endpoint     string  `json:"endpoint"`
	RequestCount int64   `json:"request_count"`
	ErrorCount   int64   `json:"error_count"`
	AvgDuration  float64 `json:"avg_ms"`
	P50Duration  int64   `json:"p50_ms"`
	P95Duration  int64   `json:"p95_ms"`
	P99Duration  int64   `json:"p99_ms"`
	MaxDuration  int64   `json:"max_ms"`
}

// NewPerformanceMonitor keeps the last maxMetrics requests and warns about
// any request slower than slowRequest.
func NewPerformanceMonitor(maxMetrics int, slowRequest time.Duration) *PerformanceMonitor {
	return &PerformanceMonitor{
		metrics:     make([]RequestMetrics, 0, maxMetrics),
		maxMetrics:  maxMetrics,
		slowRequest: slowRequest,
	}
}

// RecordRequest adds a request to the window, evicting the oldest.
func (pm *PerformanceMonitor) RecordRequest(metric RequestMetrics) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.metrics = append(pm.metrics, metric)
	if len(pm.metrics) > pm.maxMetrics {
		pm.metrics = pm.metrics[1:]
	}
}

// GetStats returns per-route statistics, busiest route first.
func (pm *PerformanceMonitor) GetStats() []EndpointStats {
	pm.mu.RLock()
	byRoute := make(map[string][]RequestMetrics)
	for _, m := range pm.metrics {
		key := m.Method + " " + m.Route
		byRoute[key] = append(byRoute[key], m)
	}
	pm.mu.RUnlock()

	stats := make([]EndpointStats, 0, len(byRoute))
	for endpoint, reqs := range byRoute {
		sorted := make([]int64, len(reqs))
		var sum, errs int64
		for i, m := range reqs {
			sorted[i] = m.DurationMS
			sum += m.DurationMS
			if m.StatusCode >= http.StatusInternalServerError {
				errs++
			}
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		stats = append(stats, EndpointStats{
			Endpoint:     endpoint,
			RequestCount: int64(len(sorted)),
			ErrorCount:   errs,
			AvgDuration:  float64(sum) / float64(len(sorted)),
			P50Duration:  percentile(sorted, 0.50),
			P95Duration:  percentile(sorted, 0.95),
			P99Duration:  percentile(sorted, 0.99),
			MaxDuration:  sorted[len(sorted)-1],
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].RequestCount != stats[j].RequestCount {
			return stats[i].RequestCount > stats[j].RequestCount
		}
		return stats[i].Endpoint < stats[j].Endpoint
	})
	return stats
}

// Middleware records every request passing through it.
func (pm *PerformanceMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := routePattern(r)
		pm.RecordRequest(RequestMetrics{
			Route:      route,
			Method:     r.Method,
			DurationMS: elapsed.Milliseconds(),
			StatusCode: statusOf(ww),
			Timestamp:  start,
		})

		if pm.slowRequest > 0 && elapsed > pm.slowRequest {
			logging.Ctx(r.Context()).Warn().
				Str("method", r.Method).
				Str("route", route).
				Dur("duration", elapsed).
				Msg("Slow request detected")
		}
	})
}

// percentile calculates the percentile value from a sorted slice
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}
