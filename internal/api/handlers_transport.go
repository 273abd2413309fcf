// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/slurmdeck/internal/logging"
)

// Refresh force-syncs every host, ignoring the minimum sync interval.
// Hosts that fail are reported in the error; the others are still merged.
//
// @Summary Refresh all hosts
// @Tags Transport
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]HostView}
// @Failure 502 {object} models.APIResponse "One or more hosts failed"
// @Failure 503 {object} models.APIResponse "Synchronizer not running"
// @Router /api/v1/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := h.sync.ForceRefresh(r.Context()); err != nil {
		respondSyncError(w, err)
		return
	}

	logging.Ctx(r.Context()).Info().Dur("duration", time.Since(start)).Msg("manual refresh completed")

	states := h.sync.HostStates()
	hosts := make([]HostView, 0, len(states))
	for _, hs := range states {
		hosts = append(hosts, hostView(hs))
	}
	respondSuccess(w, hosts, start, false)
}

// Connect re-enables the push transport after a manual disconnect.
//
// @Summary Connect the push transport
// @Tags Transport
// @Produce json
// @Success 200 {object} models.APIResponse{data=sync.ConnectionStatus}
// @Failure 409 {object} models.APIResponse "Push transport not configured"
// @Failure 503 {object} models.APIResponse "Synchronizer not running"
// @Router /api/v1/transport/connect [post]
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := h.sync.Connect(); err != nil {
		respondSyncError(w, err)
		return
	}
	logging.Ctx(r.Context()).Info().Msg("push transport connect requested")
	respondSuccess(w, h.sync.ConnectionStatus(), start, false)
}

// Disconnect closes the push transport and falls back to polling.
//
// @Summary Disconnect the push transport
// @Tags Transport
// @Produce json
// @Success 200 {object} models.APIResponse{data=sync.ConnectionStatus}
// @Failure 409 {object} models.APIResponse "Push transport not configured"
// @Failure 503 {object} models.APIResponse "Synchronizer not running"
// @Router /api/v1/transport/disconnect [post]
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := h.sync.Disconnect(); err != nil {
		respondSyncError(w, err)
		return
	}
	logging.Ctx(r.Context()).Info().Msg("push transport disconnected by request")
	respondSuccess(w, h.sync.ConnectionStatus(), start, false)
}
