// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

/*
Package websocket connects dashboard viewers to the job synchronizer.

The Hub keeps the set of attached viewers and plays three roles for the
synchronizer:

  - Environment: the dashboard is foregrounded while at least one viewer
    is attached, and every inbound viewer message counts as activity.
  - Observer: cache change batches are broadcast as jobs_changed.
  - Notifier: new jobs, state transitions and host timeouts are broadcast
    as job_created, job_transition and sync_timeout.

Each Client runs a read goroutine and a write goroutine, as in the usual
gorilla/websocket hub pattern. Broadcasts never block the caller: when the
hub buffer is full the message is dropped, and a viewer whose own buffer
is full is disconnected.

Viewer messages:

  - ping: answered with pong
  - activity: no payload, resets the idle timer
  - view_job: {"hostname": "...", "job_id": "..."} opens a job detail
    view; a null or empty payload closes it

Usage:

	hub := websocket.NewHub()
	s := sync.New(sync.Options{Environment: hub, Notifier: hub})
	hub.OnViewJob(func(k *models.JobKey) { _ = s.SetCurrentViewJob(k) })
	unsubscribe := s.Subscribe(hub)
	defer unsubscribe()
	go hub.RunWithContext(ctx)
*/
package websocket
