// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package config

import (
	"fmt"
	"net/url"

	"github.com/tomtom215/slurmdeck/internal/validation"
)

// Validate checks field constraints declared in struct tags, then the
// cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}
	if err := validateHTTPURL(c.Sync.APIBaseURL, "SLURM_API_URL"); err != nil {
		return err
	}
	if c.Transport.PushEnabled() {
		if err := validatePushURL(c.Transport.PushURL); err != nil {
			return err
		}
	}
	return c.validateTTL()
}

// validateHTTPURL accepts http/https URLs with a host. A path is allowed
// since the status API is usually mounted below a prefix.
func validateHTTPURL(rawURL, fieldName string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if parsed.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsed.RawQuery)
	}
	return nil
}

func validatePushURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("SLURM_PUSH_URL failed to parse URL: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("SLURM_PUSH_URL scheme must be ws or wss, got: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("SLURM_PUSH_URL host is required")
	}
	return nil
}

// validateTTL rejects tables where an active job outlives a finished one;
// that would keep terminal jobs refreshing more often than running ones.
func (c *Config) validateTTL() error {
	active := c.TTL.Pending
	if c.TTL.Running > active {
		active = c.TTL.Running
	}
	if c.TTL.Suspended > active {
		active = c.TTL.Suspended
	}
	if c.TTL.Completed < active || c.TTL.Failed < active {
		return fmt.Errorf("terminal TTLs (completed=%s failed=%s) must not be shorter than active TTLs (max %s)",
			c.TTL.Completed, c.TTL.Failed, active)
	}
	return nil
}
