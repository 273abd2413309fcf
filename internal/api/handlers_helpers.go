// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/slurmdeck/internal/logging"
	"github.com/tomtom215/slurmdeck/internal/models"
	syncpkg "github.com/tomtom215/slurmdeck/internal/sync"
	"github.com/tomtom215/slurmdeck/internal/validation"
)

// maxBodyBytes caps request bodies. Output snapshots are the largest.
const maxBodyBytes = 1 << 20

// sanitizeLogValue removes control characters from strings to prevent log injection attacks.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON sends a JSON response with proper headers. Job data changes
// under the client's feet, so responses are never cached by intermediaries.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("ETag", generateETag(data))
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondSuccess wraps data in a success envelope.
func respondSuccess(w http.ResponseWriter, data interface{}, start time.Time, cached bool) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
			Cached:      cached,
		},
	})
}

// generateETag creates a simple ETag from data using FNV-1a hash
func generateETag(data []byte) string {
	hash := uint32(2166136261)
	for _, b := range data {
		hash ^= uint32(b)
		hash *= 16777619
	}
	return `"` + strconv.FormatUint(uint64(hash), 16) + `"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", sanitizeLogValue(code)).Str("error", sanitizeLogValue(err.Error())).Msg("API Error")
	}

	respondJSON(w, status, &models.APIResponse{
		Status: "error",
		Data:   nil,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
	})
}

// respondSyncError maps synchronizer errors to HTTP statuses.
func respondSyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, syncpkg.ErrNotInitialized):
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Synchronizer is not running", nil)
	case errors.Is(err, syncpkg.ErrInvalidKey):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid job key", nil)
	case errors.Is(err, syncpkg.ErrJobNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
	case errors.Is(err, syncpkg.ErrPushDisabled):
		respondError(w, http.StatusConflict, "PUSH_DISABLED", "Push transport is not configured", nil)
	case syncpkg.IsTimeout(err):
		respondError(w, http.StatusGatewayTimeout, "SYNC_TIMEOUT", "Host did not answer in time", err)
	default:
		respondError(w, http.StatusBadGateway, "SYNC_ERROR", "Host sync failed", err)
	}
}

// validateRequest validates a struct using go-playground/validator.
// Returns nil if validation passes.
func validateRequest(v interface{}) *models.APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}

	apiErr := validationErr.ToAPIError()
	return &models.APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}

// respondValidation writes a 400 for a failed validation.
func respondValidation(w http.ResponseWriter, apiErr *models.APIError) {
	respondJSON(w, http.StatusBadRequest, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now()},
		Error:    apiErr,
	})
}

// jobKeyParam reads and validates the {hostname}/{jobID} path parameters.
func jobKeyParam(r *http.Request) (models.JobKey, *models.APIError) {
	key := models.JobKey{
		Hostname: chi.URLParam(r, "hostname"),
		JobID:    chi.URLParam(r, "jobID"),
	}
	if apiErr := validateRequest(&key); apiErr != nil {
		return models.JobKey{}, apiErr
	}
	return key, nil
}

// hostnameParam reads and validates the {hostname} path parameter.
func hostnameParam(r *http.Request) (string, *models.APIError) {
	hostname := chi.URLParam(r, "hostname")
	if err := validation.ValidateVar(hostname, "required,clusterhost"); err != nil {
		return "", &models.APIError{
			Code:    "VALIDATION_ERROR",
			Message: "hostname must be a valid hostname",
		}
	}
	return hostname, nil
}

// getIntParam extracts an integer query parameter with a default value
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// getBoolParam extracts a boolean query parameter; anything unparsable is false.
func getBoolParam(r *http.Request, key string) bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && b
}

// decodeBody decodes a JSON request body of at most maxBodyBytes. An empty
// body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// allValid reports whether every view is within its TTL.
func allValid(views []models.JobView) bool {
	for _, v := range views {
		if !v.Valid {
			return false
		}
	}
	return true
}
