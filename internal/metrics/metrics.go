// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Job cache
	JobCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "job_cache_hits_total",
			Help: "Validity checks that found a fresh cache entry",
		},
	)

	JobCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "job_cache_misses_total",
			Help: "Validity checks that found no entry or an expired one",
		},
	)

	JobCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "job_cache_entries",
			Help: "Current number of cached jobs",
		},
	)

	JobCacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_cache_evictions_total",
			Help: "Cache entries removed, by reason",
		},
		[]string{"reason"}, // "push_snapshot", "pull_resync", "reset"
	)

	// Update queue and merger
	UpdatesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_updates_ingested_total",
			Help: "Updates admitted to the merge queue",
		},
		[]string{"source", "priority"},
	)

	UpdatesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_updates_dropped_total",
			Help: "Updates rejected before queuing",
		},
		[]string{"reason"}, // "missing_identity", "malformed", "destroyed"
	)

	UpdateQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "job_update_queue_depth",
			Help: "Updates waiting for the next merge pass",
		},
	)

	MergePasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "job_merge_passes_total",
			Help: "Merge passes that applied at least one update",
		},
	)

	MergeOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_merge_outcomes_total",
			Help: "Per-update merge decisions",
		},
		[]string{"outcome"}, // "applied", "rejected", "deduplicated"
	)

	MergeBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "job_merge_batch_size",
			Help:    "Updates consumed per merge pass",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// Host sync
	HostSyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "host_sync_duration_seconds",
			Help:    "Duration of per-host status fetches",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"result"}, // "success", "error", "timeout"
	)

	HostSyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "host_sync_errors_total",
			Help: "Failed host syncs, by error type",
		},
		[]string{"error_type"}, // "timeout", "http", "circuit_open", "decode", "network"
	)

	HostSyncSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "host_sync_skipped_total",
			Help: "Host syncs skipped without reaching the network",
		},
		[]string{"reason"}, // "fresh", "push_snapshot", "in_flight"
	)

	HostsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hosts_by_status",
			Help: "Known hosts per pull-sync status",
		},
		[]string{"status"},
	)

	FullSyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "full_sync_last_success_timestamp",
			Help: "Unix timestamp of the last roster sync that completed",
		},
	)

	// Push transport and health arbiter
	TransportState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "push_transport_state",
			Help: "Push transport state (0=disconnected, 1=connecting, 2=healthy, 3=stale)",
		},
	)

	PollingActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pull_polling_active",
			Help: "1 when fallback polling is running",
		},
	)

	SyncPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_paused",
			Help: "1 while idle-paused",
		},
	)

	PushMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_messages_received_total",
			Help: "Push messages received, by type",
		},
		[]string{"type"},
	)

	PushReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "push_reconnect_attempts_total",
			Help: "Reconnect attempts of the push transport",
		},
	)

	PushStaleTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "push_stale_transitions_total",
			Help: "Times the push transport was demoted to stale",
		},
	)

	// Notifications
	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_notifications_total",
			Help: "Notifications emitted by the merge pass and host sync",
		},
		[]string{"kind"}, // "new_job", "state_transition", "sync_timeout"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 30},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Dashboard WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of connected dashboard viewers",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordAPIRequest records one completed HTTP request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordCacheLookup counts one validity check.
func RecordCacheLookup(hit bool) {
	if hit {
		JobCacheHits.Inc()
	} else {
		JobCacheMisses.Inc()
	}
}

// RecordMergePass records the outcome of one merge pass.
func RecordMergePass(consumed, applied, rejected, deduplicated int) {
	MergePasses.Inc()
	MergeBatchSize.Observe(float64(consumed))
	MergeOutcomes.WithLabelValues("applied").Add(float64(applied))
	MergeOutcomes.WithLabelValues("rejected").Add(float64(rejected))
	MergeOutcomes.WithLabelValues("deduplicated").Add(float64(deduplicated))
}

// RecordHostSync records a finished host fetch. errorType is "" on success.
func RecordHostSync(duration time.Duration, errorType string) {
	switch errorType {
	case "":
		HostSyncDuration.WithLabelValues("success").Observe(duration.Seconds())
	case "timeout":
		HostSyncDuration.WithLabelValues("timeout").Observe(duration.Seconds())
		HostSyncErrors.WithLabelValues(errorType).Inc()
	default:
		HostSyncDuration.WithLabelValues("error").Observe(duration.Seconds())
		HostSyncErrors.WithLabelValues(errorType).Inc()
	}
}

// SetHostStatusCounts replaces the hosts_by_status gauge values.
func SetHostStatusCounts(counts map[string]int) {
	for _, status := range []string{"idle", "loading", "connected", "error"} {
		HostsByStatus.WithLabelValues(status).Set(float64(counts[status]))
	}
}

// transportStateValues maps arbiter state names to gauge values.
var transportStateValues = map[string]float64{
	"disconnected":      0,
	"connecting":        1,
	"connected_healthy": 2,
	"connected_stale":   3,
}

// SetTransportState publishes the arbiter state.
func SetTransportState(state string) {
	TransportState.Set(transportStateValues[state])
}

// SetPolling publishes the polling flag.
func SetPolling(active bool) {
	PollingActive.Set(boolToFloat(active))
}

// SetPaused publishes the idle-pause flag.
func SetPaused(paused bool) {
	SyncPaused.Set(boolToFloat(paused))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
