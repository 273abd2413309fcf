// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/slurmdeck/internal/models"
)

// HostView is a host's sync state as served by the API.
type HostView struct {
	models.HostSyncState
	JobCount int `json:"job_count"`
}

func hostView(hs models.HostSyncState) HostView {
	return HostView{HostSyncState: hs, JobCount: hs.JobCount()}
}

// Hosts lists the pull-sync state of every known host.
//
// @Summary List hosts
// @Tags Hosts
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]HostView}
// @Router /api/v1/hosts [get]
func (h *Handler) Hosts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	states := h.sync.HostStates()
	hosts := make([]HostView, 0, len(states))
	for _, hs := range states {
		hosts = append(hosts, hostView(hs))
	}
	respondSuccess(w, hosts, start, false)
}

// HostJobs lists the cached jobs of one host.
//
// @Summary List a host's jobs
// @Tags Hosts
// @Produce json
// @Param hostname path string true "Cluster host"
// @Success 200 {object} models.APIResponse{data=models.JobListResponse}
// @Failure 400 {object} models.APIResponse "Invalid hostname"
// @Failure 404 {object} models.APIResponse "Unknown host"
// @Router /api/v1/hosts/{hostname}/jobs [get]
func (h *Handler) HostJobs(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	hostname, apiErr := hostnameParam(r)
	if apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	views := h.sync.HostJobs(hostname)
	if len(views) == 0 {
		if _, ok := h.sync.HostState(hostname); !ok {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Unknown host", nil)
			return
		}
	}
	respondSuccess(w, models.JobListResponse{Jobs: views, Total: len(views)}, start, allValid(views))
}

// SyncHost pulls one host's job snapshot. Without force=true the request is
// skipped while the host is already loading or was synced recently.
//
// @Summary Sync one host
// @Tags Hosts
// @Produce json
// @Param hostname path string true "Cluster host"
// @Param force query bool false "Ignore the minimum sync interval"
// @Success 200 {object} models.APIResponse{data=HostView}
// @Failure 400 {object} models.APIResponse "Invalid hostname"
// @Failure 502 {object} models.APIResponse "Host fetch failed"
// @Failure 503 {object} models.APIResponse "Synchronizer not running"
// @Failure 504 {object} models.APIResponse "Host fetch timed out"
// @Router /api/v1/hosts/{hostname}/sync [post]
func (h *Handler) SyncHost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	hostname, apiErr := hostnameParam(r)
	if apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	if err := h.sync.SyncHost(r.Context(), hostname, getBoolParam(r, "force")); err != nil {
		respondSyncError(w, err)
		return
	}

	hs, _ := h.sync.HostState(hostname)
	respondSuccess(w, hostView(hs), start, false)
}
