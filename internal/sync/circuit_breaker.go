// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/slurmdeck/internal/config"
	"github.com/tomtom215/slurmdeck/internal/logging"
	"github.com/tomtom215/slurmdeck/internal/metrics"
	"github.com/tomtom215/slurmdeck/internal/models"
)

// CircuitBreakerClient wraps a StatusAPI with one circuit breaker per host
// plus one for the roster endpoint, so a dead host stops costing a request
// timeout on every poll without affecting the others.
//
// Breakers use real time (via sony/gobreaker) for their open timeout. Tests
// that need deterministic timing should exercise the wrapped client.
type CircuitBreakerClient struct {
	client StatusAPI

	failures uint32
	timeout  time.Duration

	roster *gobreaker.CircuitBreaker[interface{}]

	mu    sync.Mutex
	hosts map[string]*gobreaker.CircuitBreaker[interface{}]
}

var _ StatusAPI = (*CircuitBreakerClient)(nil)

// NewCircuitBreakerClient wraps client. A breaker opens after
// cfg.BreakerFailures consecutive failures and half-opens after
// cfg.BreakerTimeout.
func NewCircuitBreakerClient(client StatusAPI, cfg config.SyncConfig) *CircuitBreakerClient {
	cbc := &CircuitBreakerClient{
		client:   client,
		failures: cfg.BreakerFailures,
		timeout:  cfg.BreakerTimeout,
		hosts:    make(map[string]*gobreaker.CircuitBreaker[interface{}]),
	}
	cbc.roster = cbc.newBreaker("status-api:roster")
	return cbc
}

func (cbc *CircuitBreakerClient) newBreaker(name string) *gobreaker.CircuitBreaker[interface{}] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	threshold := cbc.failures
	return gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0, // counts reset only on state change
		Timeout:     cbc.timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			shouldTrip := counts.ConsecutiveFailures >= threshold
			if shouldTrip {
				logging.Warn().Str("breaker", name).Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		// A missing job is an answer, not a host failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrJobNotFound)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()

			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})
}

// hostBreaker returns the breaker of hostname, creating it on first use.
func (cbc *CircuitBreakerClient) hostBreaker(hostname string) *gobreaker.CircuitBreaker[interface{}] {
	cbc.mu.Lock()
	defer cbc.mu.Unlock()
	cb, ok := cbc.hosts[hostname]
	if !ok {
		cb = cbc.newBreaker("status-api:" + hostname)
		cbc.hosts[hostname] = cb
	}
	return cb
}

// execute runs fn through cb and records the outcome.
func execute(cb *gobreaker.CircuitBreaker[interface{}], fn func() (interface{}, error)) (interface{}, error) {
	result, err := cb.Execute(fn)

	name := cb.Name()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
			logging.Debug().Str("breaker", name).Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
			counts := cb.Counts()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(float64(counts.ConsecutiveFailures))
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
	return result, nil
}

// castResult type-casts a breaker result.
func castResult[T any](result interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Hosts fetches the roster through the roster breaker.
func (cbc *CircuitBreakerClient) Hosts(ctx context.Context) ([]models.HostInfo, error) {
	return castResult[[]models.HostInfo](execute(cbc.roster, func() (interface{}, error) {
		return cbc.client.Hosts(ctx)
	}))
}

// HostStatus fetches one host's snapshot through that host's breaker.
func (cbc *CircuitBreakerClient) HostStatus(ctx context.Context, hostname string, force bool) ([]models.HostJobs, error) {
	return castResult[[]models.HostJobs](execute(cbc.hostBreaker(hostname), func() (interface{}, error) {
		return cbc.client.HostStatus(ctx, hostname, force)
	}))
}

// Job fetches one job through its host's breaker.
func (cbc *CircuitBreakerClient) Job(ctx context.Context, hostname, jobID string) (*models.JobRecord, error) {
	return castResult[*models.JobRecord](execute(cbc.hostBreaker(hostname), func() (interface{}, error) {
		return cbc.client.Job(ctx, hostname, jobID)
	}))
}

// BreakerStates returns the state name of every host breaker.
func (cbc *CircuitBreakerClient) BreakerStates() map[string]string {
	cbc.mu.Lock()
	defer cbc.mu.Unlock()
	out := make(map[string]string, len(cbc.hosts))
	for host, cb := range cbc.hosts {
		out[host] = stateToString(cb.State())
	}
	return out
}

// isBreakerRejection reports whether err came from an open breaker.
func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
