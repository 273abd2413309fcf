// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

/*
Package config loads Slurmdeck configuration with Koanf v2.

Sources, lowest to highest priority: built-in defaults, an optional YAML file
(CONFIG_PATH, ./config.yaml or /etc/slurmdeck/config.yaml), environment
variables.

Environment Variables:

Sync:
  - SLURM_API_URL: status API base URL (required in production)
  - SYNC_ACTIVE_INTERVAL: host freshness window (default: 30s)
  - SYNC_HOST_TIMEOUT: per-host fetch timeout (default: 30s)
  - SYNC_MAX_PARALLEL_HOSTS: fan-out limit (default: 8)
  - SYNC_BATCH_SIZE / SYNC_BATCH_DELAY: merge batching (default: 50 / 100ms)

Transport:
  - SLURM_PUSH_URL: ws:// or wss:// push endpoint (empty: poll only)
  - PUSH_HEARTBEAT / PUSH_HEALTH: heartbeat and staleness (default: 10s / 45s)
  - RECONNECT_STRATEGY: constant or exponential (default: constant)
  - POLL_FOREGROUND / POLL_BACKGROUND: poll cadence (default: 30s / 2m)

TTL:
  - TTL_PENDING, TTL_RUNNING, TTL_SUSPENDED, TTL_COMPLETED, TTL_FAILED, TTL_UNKNOWN

Server and logging:
  - HTTP_PORT (default: 8420), HTTP_HOST, CORS_ORIGINS (comma-separated)
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER

Example config.yaml:

	sync:
	  api_base_url: https://hpc-gateway.example.org/api
	  max_parallel_hosts: 16
	transport:
	  push_url: wss://hpc-gateway.example.org/ws
	  reconnect_strategy: exponential
	ttl:
	  running: 45s
*/
package config
