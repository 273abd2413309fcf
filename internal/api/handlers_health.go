// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/slurmdeck/internal/middleware"
	"github.com/tomtom215/slurmdeck/internal/models"
	syncpkg "github.com/tomtom215/slurmdeck/internal/sync"
)

// Health handles health check requests
//
// A running synchronizer is "healthy" when every host synced on its last
// attempt and "degraded" otherwise. Before Initialize (or after Destroy)
// the endpoint answers 503 "unavailable".
//
// @Summary Get system health status
// @Tags Core
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.HealthResponse} "Health status retrieved successfully"
// @Failure 503 {object} models.APIResponse{data=models.HealthResponse} "Synchronizer not running"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.sync.ConnectionStatus()
	hosts := h.sync.HostStates()

	health := models.HealthResponse{
		Status:     "healthy",
		Version:    h.version,
		Transport:  string(status.State),
		Polling:    status.Polling,
		Paused:     status.Paused,
		HostsTotal: len(hosts),
		Uptime:     time.Since(h.startTime).Seconds(),
	}
	for _, hs := range hosts {
		if hs.Status == models.HostError {
			health.HostsError++
		}
	}

	code := http.StatusOK
	switch {
	case !status.Initialized:
		health.Status = "unavailable"
		code = http.StatusServiceUnavailable
	case health.HostsError > 0:
		health.Status = "degraded"
	}

	respondJSON(w, code, &models.APIResponse{
		Status: "success",
		Data:   health,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// Status reports the push transport and polling state.
//
// @Summary Get transport status
// @Tags Core
// @Produce json
// @Success 200 {object} models.APIResponse{data=sync.ConnectionStatus}
// @Router /api/v1/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, h.sync.ConnectionStatus(), time.Now(), false)
}

// StatsResponse is the payload of /api/v1/stats.
type StatsResponse struct {
	Sync      syncpkg.SyncMetrics        `json:"sync"`
	Endpoints []middleware.EndpointStats `json:"endpoints"`
}

// Stats returns cache and merge counters plus per-endpoint latency.
//
// @Summary Get sync and API statistics
// @Tags Core
// @Produce json
// @Success 200 {object} models.APIResponse{data=StatsResponse}
// @Router /api/v1/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondSuccess(w, StatsResponse{
		Sync:      h.sync.Metrics(),
		Endpoints: h.perfMon.GetStats(),
	}, start, false)
}
