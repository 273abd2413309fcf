// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/slurmdeck/config.yaml",
	"/etc/slurmdeck/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			APIBaseURL:         "http://127.0.0.1:8000/api",
			ActiveInterval:     30 * time.Second,
			HostTimeout:        30 * time.Second,
			MaxParallelHosts:   8,
			PushSnapshotWindow: 5 * time.Second,
			InitialGrace:       500 * time.Millisecond,
			DedupWindow:        500 * time.Millisecond,
			BatchSize:          50,
			BatchDelay:         100 * time.Millisecond,
			RequestsPerSecond:  20,
			RequestBurst:       10,
			BreakerFailures:    5,
			BreakerTimeout:     60 * time.Second,
		},
		Transport: TransportConfig{
			PushURL:           "",
			HandshakeTimeout:  10 * time.Second,
			HeartbeatInterval: 10 * time.Second,
			HealthThreshold:   45 * time.Second,
			ReconnectStrategy: "constant",
			ReconnectDelay:    5 * time.Second,
			MaxReconnectDelay: 60 * time.Second,
			PollForeground:    30 * time.Second,
			PollBackground:    120 * time.Second,
			IdleThreshold:     5 * time.Minute,
		},
		TTL: TTLConfig{
			Pending:   30 * time.Second,
			Running:   60 * time.Second,
			Suspended: 60 * time.Second,
			Completed: 5 * time.Minute,
			Failed:    5 * time.Minute,
			Unknown:   2 * time.Minute,
		},
		Server: ServerConfig{
			Port:            8420,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
			SlowRequest:     time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5.0,
			FailureDecay:     30.0,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Default returns the built-in configuration without consulting files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

// LoadWithKoanf loads configuration with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// SLURM_API_URL -> sync.api_base_url, POLL_FOREGROUND -> transport.poll_foreground
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when set via env.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	// Pull sync
	"slurm_api_url":             "sync.api_base_url",
	"sync_active_interval":      "sync.active_interval",
	"sync_host_timeout":         "sync.host_timeout",
	"sync_max_parallel_hosts":   "sync.max_parallel_hosts",
	"sync_push_snapshot_window": "sync.push_snapshot_window",
	"sync_initial_grace":        "sync.initial_grace",
	"sync_dedup_window":         "sync.dedup_window",
	"sync_batch_size":           "sync.batch_size",
	"sync_batch_delay":          "sync.batch_delay",
	"sync_requests_per_second":  "sync.requests_per_second",
	"sync_request_burst":        "sync.request_burst",
	"sync_breaker_failures":     "sync.breaker_failures",
	"sync_breaker_timeout":      "sync.breaker_timeout",

	// Push transport and health arbiter
	"slurm_push_url":      "transport.push_url",
	"push_handshake":      "transport.handshake_timeout",
	"push_heartbeat":      "transport.heartbeat_interval",
	"push_health":         "transport.health_threshold",
	"reconnect_strategy":  "transport.reconnect_strategy",
	"reconnect_delay":     "transport.reconnect_delay",
	"reconnect_max_delay": "transport.max_reconnect_delay",
	"poll_foreground":     "transport.poll_foreground",
	"poll_background":     "transport.poll_background",
	"idle_threshold":      "transport.idle_threshold",

	// Cache TTL
	"ttl_pending":   "ttl.pending",
	"ttl_running":   "ttl.running",
	"ttl_suspended": "ttl.suspended",
	"ttl_completed": "ttl.completed",
	"ttl_failed":    "ttl.failed",
	"ttl_unknown":   "ttl.unknown",

	// Server
	"http_port":           "server.port",
	"http_host":           "server.host",
	"http_timeout":        "server.timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",
	"slow_request":        "server.slow_request",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Returning "" tells koanf to skip the variable.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
