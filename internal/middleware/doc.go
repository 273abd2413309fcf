// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

/*
Package middleware provides chi-compatible HTTP middleware for the API.

Key Components:

  - RequestID: reuses or generates X-Request-ID and seeds the logging context
  - PrometheusMetrics: request count, latency and in-flight gauge, labeled by
    chi route pattern
  - PerformanceMonitor: rolling latency percentiles per route, served by
    /api/v1/stats
  - Compression: gzip for clients that accept it
  - Activity: reports every request to the synchronizer as user activity

Typical stack:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Use(perfMon.Middleware)
	r.Use(middleware.Activity(s.NoteActivity))
	r.Use(middleware.Compression)

All middleware is safe for concurrent use.
*/
package middleware
