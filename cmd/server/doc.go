// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

/*
Package main is the entry point for the Slurmdeck server.

Slurmdeck keeps a local cache of batch jobs from every host of a Slurm-style
cluster and serves it to dashboard viewers over REST and WebSocket. Job
state arrives over a push transport when one is configured and is otherwise
polled from the cluster status API.

# Application Architecture

The server runs its components under a Suture v4 supervisor tree:

	RootSupervisor ("slurmdeck")
	├── SyncSupervisor ("sync-layer")
	│   └── Job synchronizer (cache, update queue, host sync, health arbiter)
	├── MessagingSupervisor ("messaging-layer")
	│   └── WebSocket Hub (viewer fan-out, foreground and activity signals)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (chi router, /api/v1, /health, /metrics, /ws)

Startup order:

 1. Configuration: Koanf v2 defaults, optional YAML file, environment
 2. Logging: zerolog with JSON or console output
 3. Supervisor tree with sutureslog event logging
 4. App wiring (supervisor.NewApp) and service registration
 5. Serve until SIGINT or SIGTERM

# Configuration

Common environment variables:

	SLURM_API_URL     status API root (default http://127.0.0.1:8000/api)
	SLURM_PUSH_URL    push transport WebSocket URL; empty means poll only
	POLL_FOREGROUND   poll interval while a viewer is attached (default 30s)
	POLL_BACKGROUND   poll interval with no viewer (default 120s)
	IDLE_THRESHOLD    inactivity before polling pauses (default 5m)
	HTTP_PORT         listen port (default 8420)
	LOG_LEVEL         trace, debug, info, warn or error
	CONFIG_PATH       YAML config file

# Signal Handling

On SIGINT or SIGTERM the supervisor cancels every service. The HTTP server
drains in-flight requests, the hub closes viewer connections and the
synchronizer stops its transports and waits for in-flight host fetches.
Services that miss the shutdown timeout are logged.

# Example Usage

	export SLURM_API_URL=http://slurm-gw:8000/api
	export SLURM_PUSH_URL=ws://slurm-gw:8000/ws/jobs
	./slurmdeck
*/
package main
