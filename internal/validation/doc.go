// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

// Package validation wraps go-playground/validator v10 with a shared,
// lazily-initialized instance and two scheduler-specific rules:
//
//   - jobid: Slurm job ids including array (4242_7) and het-job (4242+1) forms
//   - clusterhost: cluster host names, allowing underscores
//
// Validation failures convert to the API's VALIDATION_ERROR body via
// RequestValidationError.ToAPIError.
package validation
