// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package config

import (
	"time"
)

// Config holds all application configuration.
//
// Loading order (see LoadWithKoanf):
//  1. Defaults from defaultConfig
//  2. Optional YAML file (CONFIG_PATH or one of DefaultConfigPaths)
//  3. Environment variables
//
// Config is immutable after loading and safe for concurrent reads.
type Config struct {
	Sync       SyncConfig       `koanf:"sync"`
	Transport  TransportConfig  `koanf:"transport"`
	TTL        TTLConfig        `koanf:"ttl"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// SyncConfig controls pull synchronization against the cluster status API
// and the update merge pipeline.
type SyncConfig struct {
	// APIBaseURL is the status API root; /hosts, /status/{host} and
	// /jobs/{host}/{id} are resolved against it.
	APIBaseURL string `koanf:"api_base_url" validate:"required,url"`

	// ActiveInterval is how long a successful host sync stays fresh.
	ActiveInterval time.Duration `koanf:"active_interval" validate:"gt=0"`

	// HostTimeout bounds a single host fetch.
	HostTimeout time.Duration `koanf:"host_timeout" validate:"gt=0"`

	// MaxParallelHosts bounds the fan-out of a full sync.
	MaxParallelHosts int `koanf:"max_parallel_hosts" validate:"min=1,max=256"`

	// PushSnapshotWindow skips non-forced pull syncs right after the push
	// transport delivered a full snapshot.
	PushSnapshotWindow time.Duration `koanf:"push_snapshot_window" validate:"gte=0"`

	// InitialGrace is how long startup waits for a push snapshot before
	// running the first full pull sync.
	InitialGrace time.Duration `koanf:"initial_grace" validate:"gte=0"`

	DedupWindow time.Duration `koanf:"dedup_window" validate:"gt=0"`
	BatchSize   int           `koanf:"batch_size" validate:"min=1,max=10000"`
	BatchDelay  time.Duration `koanf:"batch_delay" validate:"gt=0"`

	// RequestsPerSecond and RequestBurst rate limit calls to the status API.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`
	RequestBurst      int     `koanf:"request_burst" validate:"min=1"`

	// BreakerFailures consecutive failures open a host's circuit breaker for
	// BreakerTimeout.
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"min=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// TransportConfig controls the push (WebSocket) transport and the health
// arbiter that decides when to fall back to polling.
type TransportConfig struct {
	// PushURL is the ws:// or wss:// endpoint. Empty runs in poll-only mode.
	PushURL string `koanf:"push_url" validate:"omitempty,url"`

	HandshakeTimeout  time.Duration `koanf:"handshake_timeout" validate:"gt=0"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval" validate:"gt=0"`
	HealthThreshold   time.Duration `koanf:"health_threshold" validate:"gtfield=HeartbeatInterval"`

	ReconnectStrategy string        `koanf:"reconnect_strategy" validate:"oneof=constant exponential"`
	ReconnectDelay    time.Duration `koanf:"reconnect_delay" validate:"gt=0"`
	MaxReconnectDelay time.Duration `koanf:"max_reconnect_delay" validate:"gtefield=ReconnectDelay"`

	PollForeground time.Duration `koanf:"poll_foreground" validate:"gt=0"`
	PollBackground time.Duration `koanf:"poll_background" validate:"gtefield=PollForeground"`
	IdleThreshold  time.Duration `koanf:"idle_threshold" validate:"gt=0"`
}

// PushEnabled reports whether a push endpoint is configured.
func (t TransportConfig) PushEnabled() bool {
	return t.PushURL != ""
}

// TTLConfig sets how long a cached job stays valid, per lifecycle state.
type TTLConfig struct {
	Pending   time.Duration `koanf:"pending" validate:"gt=0"`
	Running   time.Duration `koanf:"running" validate:"gt=0"`
	Suspended time.Duration `koanf:"suspended" validate:"gt=0"`
	Completed time.Duration `koanf:"completed" validate:"gt=0"`
	Failed    time.Duration `koanf:"failed" validate:"gt=0"`
	Unknown   time.Duration `koanf:"unknown" validate:"gt=0"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	CORSOrigins []string `koanf:"cors_origins"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// SlowRequest is the latency above which a request is logged as slow.
	SlowRequest time.Duration `koanf:"slow_request" validate:"gte=0"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled"`

	// Format is json or console.
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller adds file:line to each entry.
	Caller bool `koanf:"caller"`
}

// SupervisorConfig tunes the suture supervisor tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}
