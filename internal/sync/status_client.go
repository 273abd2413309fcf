// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

/*
status_client.go - Cluster Status API Client

REST client for the pull side of synchronization:

	GET {base}/hosts                                  -> [{hostname}]
	GET {base}/status/{hostname}?force_refresh=bool   -> {hostname, jobs} or [{hostname, jobs}]
	GET {base}/jobs/{hostname}/{jobId}                -> job record

Requests share one token-bucket limiter so a full sync across many hosts
cannot flood the status API.
*/

package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/slurmdeck/internal/config"
	"github.com/tomtom215/slurmdeck/internal/models"
)

// StatusAPI is the pull data source. StatusClient talks HTTP;
// CircuitBreakerClient wraps any StatusAPI with per-host breakers.
type StatusAPI interface {
	Hosts(ctx context.Context) ([]models.HostInfo, error)
	HostStatus(ctx context.Context, hostname string, force bool) ([]models.HostJobs, error)
	Job(ctx context.Context, hostname, jobID string) (*models.JobRecord, error)
}

var _ StatusAPI = (*StatusClient)(nil)

// ErrJobNotFound is returned by Job when the host does not know the job.
var ErrJobNotFound = errors.New("job not found")

// errDecode marks responses that could not be parsed.
var errDecode = errors.New("decode response")

// HTTPStatusError is returned for any non-2xx response.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("status api returned %d: %s", e.StatusCode, e.Body)
}

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

// StatusClient is the HTTP implementation of StatusAPI.
type StatusClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewStatusClient creates a client for cfg.APIBaseURL. The per-request
// timeout is enforced by the caller's context; the http.Client timeout is
// a backstop at twice the host timeout.
func NewStatusClient(cfg config.SyncConfig) *StatusClient {
	return &StatusClient{
		baseURL: strings.TrimSuffix(cfg.APIBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: 2 * cfg.HostTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestBurst),
	}
}

// Hosts fetches the host roster.
func (c *StatusClient) Hosts(ctx context.Context) ([]models.HostInfo, error) {
	body, err := c.get(ctx, "/hosts", nil)
	if err != nil {
		return nil, fmt.Errorf("host roster request failed: %w", err)
	}

	var hosts []models.HostInfo
	if err := json.Unmarshal(body, &hosts); err != nil {
		return nil, fmt.Errorf("%w: host roster: %v", errDecode, err)
	}

	out := hosts[:0]
	for _, h := range hosts {
		h.Hostname = strings.TrimSpace(h.Hostname)
		if h.Hostname != "" {
			out = append(out, h)
		}
	}
	return out, nil
}

// HostStatus fetches the job snapshot of one host. Records without a
// hostname inherit the one of their enclosing group.
func (c *StatusClient) HostStatus(ctx context.Context, hostname string, force bool) ([]models.HostJobs, error) {
	q := url.Values{}
	q.Set("force_refresh", strconv.FormatBool(force))

	body, err := c.get(ctx, "/status/"+url.PathEscape(hostname), q)
	if err != nil {
		return nil, fmt.Errorf("status request for %s failed: %w", hostname, err)
	}

	var groups []models.HostJobs
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &groups)
	} else {
		var one models.HostJobs
		err = json.Unmarshal(trimmed, &one)
		groups = []models.HostJobs{one}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: status of %s: %v", errDecode, hostname, err)
	}

	for i := range groups {
		if groups[i].Hostname == "" {
			groups[i].Hostname = hostname
		}
		for j := range groups[i].Jobs {
			if groups[i].Jobs[j].Hostname == "" {
				groups[i].Jobs[j].Hostname = groups[i].Hostname
			}
		}
	}
	return groups, nil
}

// Job fetches a single job.
func (c *StatusClient) Job(ctx context.Context, hostname, jobID string) (*models.JobRecord, error) {
	body, err := c.get(ctx, "/jobs/"+url.PathEscape(hostname)+"/"+url.PathEscape(jobID), nil)
	if err != nil {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s/%s: %w", hostname, jobID, ErrJobNotFound)
		}
		return nil, fmt.Errorf("job request for %s/%s failed: %w", hostname, jobID, err)
	}

	var job models.JobRecord
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("%w: job %s/%s: %v", errDecode, hostname, jobID, err)
	}
	if job.Hostname == "" {
		job.Hostname = hostname
	}
	if job.JobID == "" {
		job.JobID = jobID
	}
	return &job, nil
}

// get performs a rate-limited GET and returns the body of a 2xx response.
func (c *StatusClient) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	resp, err := c.doRequest(ctx, endpoint, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func (c *StatusClient) doRequest(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	fullURL := c.baseURL + endpoint
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}
