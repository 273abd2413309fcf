// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

/*
Package supervisor provides process supervision for Slurmdeck using suture v4.

The tree organizes long-running services into three layers:

	RootSupervisor ("slurmdeck")
	├── SyncSupervisor ("sync-layer")
	│   └── SyncService (job synchronizer)
	├── MessagingSupervisor ("messaging-layer")
	│   └── WebSocketHubService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A failing layer is restarted with backoff without touching the others.
Supervisor events are logged through sutureslog.

App wires the components together:

	app := supervisor.NewApp(cfg, version)
	tree, _ := supervisor.NewSupervisorTree(logger, supervisor.TreeConfigFromConfig(cfg.Supervisor))
	app.Register(tree)
	err := tree.Serve(ctx)
*/
package supervisor
