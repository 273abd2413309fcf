// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

/*
Package api provides the HTTP layer of the Slurmdeck dashboard.

It serves the synchronizer's job cache to the dashboard frontend and
exposes the manual controls the frontend needs: forcing a refresh, syncing
one host, selecting the viewed job and toggling the push transport.

Routes:

	GET  /health                                 health summary
	GET  /metrics                                Prometheus metrics
	GET  /ws                                     dashboard viewer WebSocket
	GET  /api/v1/jobs[?state=&limit=&offset=]    cached jobs
	GET  /api/v1/jobs/{hostname}/{jobID}         one job, fetched when stale
	PUT  /api/v1/jobs/{hostname}/{jobID}/output  attach captured output
	PUT  /api/v1/view                            select the viewed job
	GET  /api/v1/hosts                           per-host sync state
	GET  /api/v1/hosts/{hostname}/jobs           one host's cached jobs
	POST /api/v1/hosts/{hostname}/sync           pull one host
	POST /api/v1/refresh                         pull every host
	POST /api/v1/transport/connect               reconnect push
	POST /api/v1/transport/disconnect            disconnect push
	GET  /api/v1/status                          transport state
	GET  /api/v1/stats                           cache counters and latency

Every JSON response uses the models.APIResponse envelope. Synchronizer
errors map to statuses in respondSyncError: a host timeout is 504, any
other host failure 502, and a stopped synchronizer 503.

Requests under /api/v1 count as viewer activity and lift an idle pause.
*/
package api
