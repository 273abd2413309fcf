// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/slurmdeck/internal/config"
	"github.com/tomtom215/slurmdeck/internal/logging"
	"github.com/tomtom215/slurmdeck/internal/middleware"
	"github.com/tomtom215/slurmdeck/internal/models"
	syncpkg "github.com/tomtom215/slurmdeck/internal/sync"
	ws "github.com/tomtom215/slurmdeck/internal/websocket"
)

// JobService is the part of the synchronizer the API serves.
// *sync.Synchronizer implements it.
type JobService interface {
	AllJobs() []models.JobView
	JobsByState(state models.JobState) []models.JobView
	HostJobs(hostname string) []models.JobView
	Job(key models.JobKey) (models.JobView, bool)
	HostStates() []models.HostSyncState
	HostState(hostname string) (models.HostSyncState, bool)
	ConnectionStatus() syncpkg.ConnectionStatus
	Metrics() syncpkg.SyncMetrics

	ForceRefresh(ctx context.Context) error
	SyncHost(ctx context.Context, hostname string, force bool) error
	FetchSingleJob(ctx context.Context, key models.JobKey) (models.JobView, error)
	SetCurrentViewJob(key *models.JobKey) error
	SetJobOutput(key models.JobKey, out models.OutputSnapshot) error
	Connect() error
	Disconnect() error
	NoteActivity()
}

var _ JobService = (*syncpkg.Synchronizer)(nil)

// Handler contains dependencies for API handlers
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, WebSocket upgrade
//   - handlers_helpers.go: response and parameter helpers
//   - handlers_jobs.go: job listing, lookup, output and view selection
//   - handlers_hosts.go: host listing and per-host sync
//   - handlers_transport.go: refresh and push transport control
//   - handlers_health.go: health, status and stats
type Handler struct {
	sync      JobService
	wsHub     *ws.Hub
	config    *config.Config
	perfMon   *middleware.PerformanceMonitor
	version   string
	startTime time.Time
}

// NewHandler creates a Handler. wsHub may be nil, in which case /ws answers
// 503.
func NewHandler(svc JobService, wsHub *ws.Hub, cfg *config.Config, version string) *Handler {
	return &Handler{
		sync:      svc,
		wsHub:     wsHub,
		config:    cfg,
		perfMon:   middleware.NewPerformanceMonitor(1000, cfg.Server.SlowRequest),
		version:   version,
		startTime: time.Now(),
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin allows same-origin requests and configured CORS
// origins.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	if origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	for _, allowed := range h.config.Server.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected: origin not allowed")
	return false
}

// WebSocket attaches a dashboard viewer to the hub.
//
// @Summary Attach a dashboard viewer
// @Description Upgrades to a WebSocket that streams jobs_changed, job_created, job_transition and sync_timeout messages. Viewer messages count as activity; view_job selects the job shown in the detail pane.
// @Tags Realtime
// @Success 101 {string} string "Switching Protocols"
// @Failure 503 {object} models.APIResponse "WebSocket hub not available"
// @Router /ws [get]
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "WebSocket service unavailable", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	h.wsHub.Register <- client
	client.Start()
}
