// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

/*
Package logging provides the process-wide zerolog logger.

Initialize once from main:

	logging.Init(logging.Config{Level: "info", Format: "json"})

Log with structured fields and always terminate the chain with Msg or Send:

	logging.Info().Str("hostname", h).Int("jobs", n).Msg("Host synced")
	logging.Warn().Err(err).Str("hostname", h).Msg("Host sync failed")

HTTP handlers log through the request context so request and correlation
IDs are attached:

	logging.Ctx(r.Context()).Warn().Err(err).Msg("serving stale job")

Environment Variables:
  - LOG_LEVEL: read at package init so logging is usable before Init
*/
package logging
