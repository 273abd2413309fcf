// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

/*
Package services provides suture.Service wrappers for Slurmdeck components.

Each wrapper translates a component's lifecycle into suture's context-aware
Serve method and names the service for supervisor logs:

  - SyncService: Initialize/Destroy/Wait of the job synchronizer
  - WebSocketHubService: RunWithContext of the dashboard hub
  - HTTPServerService: ListenAndServe/Shutdown of the API server

Returning ctx.Err() on cancellation tells suture the stop was requested;
any other error triggers a restart under the tree's backoff policy.
*/
package services
