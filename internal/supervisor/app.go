// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package supervisor

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/slurmdeck/internal/api"
	"github.com/tomtom215/slurmdeck/internal/config"
	"github.com/tomtom215/slurmdeck/internal/logging"
	"github.com/tomtom215/slurmdeck/internal/models"
	"github.com/tomtom215/slurmdeck/internal/supervisor/services"
	jobsync "github.com/tomtom215/slurmdeck/internal/sync"
	ws "github.com/tomtom215/slurmdeck/internal/websocket"
)

// App holds the wired components of the dashboard backend.
//
// The WebSocket hub is the synchronizer's environment: the synchronizer is
// foregrounded while a viewer is attached, viewer messages count as
// activity, and a viewer's view_job message selects the job whose updates
// bypass batching. The hub also receives every cache change and
// notification for fan-out to viewers.
type App struct {
	Config       *config.Config
	Synchronizer *jobsync.Synchronizer
	Hub          *ws.Hub
	Handler      http.Handler
}

// NewApp wires the synchronizer, hub and HTTP router from cfg.
func NewApp(cfg *config.Config, version string) *App {
	hub := ws.NewHub()
	s := jobsync.New(jobsync.Options{
		Sync:        cfg.Sync,
		Transport:   cfg.Transport,
		TTL:         cfg.TTL,
		Notifier:    jobsync.MultiNotifier{jobsync.LogNotifier{}, hub},
		Environment: hub,
	})
	s.Subscribe(hub)
	hub.OnViewJob(func(key *models.JobKey) {
		if err := s.SetCurrentViewJob(key); err != nil {
			logging.Debug().Err(err).Msg("ignoring invalid view_job selection")
		}
	})

	handler := api.NewHandler(s, hub, cfg, version)
	return &App{
		Config:       cfg,
		Synchronizer: s,
		Hub:          hub,
		Handler:      api.NewRouter(handler, nil).SetupChi(),
	}
}

// HTTPServer builds the server for the configured address.
func (a *App) HTTPServer() *http.Server {
	srv := a.Config.Server
	return &http.Server{
		Addr:              net.JoinHostPort(srv.Host, strconv.Itoa(srv.Port)),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       srv.Timeout,
		WriteTimeout:      srv.Timeout,
		IdleTimeout:       2 * time.Minute,
	}
}

// Register adds the synchronizer, hub and HTTP server to tree.
func (a *App) Register(tree *SupervisorTree) {
	tree.AddSyncService(services.NewSyncService(a.Synchronizer))
	tree.AddMessagingService(services.NewWebSocketHubService(a.Hub))
	tree.AddAPIService(services.NewHTTPServerService(a.HTTPServer(), a.Config.Supervisor.ShutdownTimeout))
}
