// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/slurmdeck/internal/middleware"
)

// Router wires the handlers to their routes.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router. A nil mw uses the handler's server config.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(ChiMiddlewareConfigFromServer(handler.config.Server))
	}
	return &Router{handler: handler, chiMiddleware: mw}
}

// SetupChi configures all HTTP routes using Chi router.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()
	h := router.handler

	// Global middleware, applied to every route in order
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // CORS must be global to handle OPTIONS preflight

	r.With(router.chiMiddleware.RateLimitHealth(), APISecurityHeaders()).Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket upgrades bypass compression and latency tracking; the
	// connection outlives the request.
	r.With(router.chiMiddleware.RateLimitWebSocket()).Get("/ws", h.WebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(h.perfMon.Middleware)
		r.Use(middleware.Activity(h.sync.NoteActivity))
		r.Use(middleware.Compression)

		r.Get("/jobs", h.Jobs)
		r.Get("/jobs/{hostname}/{jobID}", h.Job)
		r.Put("/jobs/{hostname}/{jobID}/output", h.SetJobOutput)
		r.Put("/view", h.SetView)

		r.Get("/hosts", h.Hosts)
		r.Get("/hosts/{hostname}/jobs", h.HostJobs)
		r.With(router.chiMiddleware.RateLimitSync()).Post("/hosts/{hostname}/sync", h.SyncHost)

		r.With(router.chiMiddleware.RateLimitSync()).Post("/refresh", h.Refresh)
		r.Post("/transport/connect", h.Connect)
		r.Post("/transport/disconnect", h.Disconnect)

		r.Get("/status", h.Status)
		r.Get("/stats", h.Stats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return r
}
