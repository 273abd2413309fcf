// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/slurmdeck/internal/logging"
	"github.com/tomtom215/slurmdeck/internal/models"
)

// maxPageSize bounds the limit query parameter of job listings.
const maxPageSize = 5000

// OutputRequest is the body of PUT /api/v1/jobs/{hostname}/{jobID}/output.
type OutputRequest struct {
	Content   string `json:"content" validate:"max=1048576"`
	Truncated bool   `json:"truncated"`
}

// Jobs lists cached jobs.
//
// @Summary List cached jobs
// @Description Returns every cached job, newest submission first. Optionally filtered by normalized state and paginated.
// @Tags Jobs
// @Produce json
// @Param state query string false "Job state (pending, running, suspended, completed, failed, unknown)"
// @Param limit query int false "Page size (0 = all)"
// @Param offset query int false "Page offset"
// @Success 200 {object} models.APIResponse{data=models.JobListResponse}
// @Failure 400 {object} models.APIResponse "Invalid state or paging"
// @Router /api/v1/jobs [get]
func (h *Handler) Jobs(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var views []models.JobView
	if raw := r.URL.Query().Get("state"); raw != "" {
		state := models.NormalizeState(raw)
		if state == models.StateUnknown && raw != string(models.StateUnknown) {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown job state: "+sanitizeLogValue(raw), nil)
			return
		}
		views = h.sync.JobsByState(state)
	} else {
		views = h.sync.AllJobs()
	}

	limit := getIntParam(r, "limit", 0)
	offset := getIntParam(r, "offset", 0)
	if limit < 0 || limit > maxPageSize || offset < 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be 0-5000 and offset non-negative", nil)
		return
	}

	total := len(views)
	page := paginate(views, limit, offset)
	respondSuccess(w, models.JobListResponse{Jobs: page, Total: total}, start, allValid(page))
}

// paginate returns views[offset:offset+limit]; limit 0 means no limit.
func paginate(views []models.JobView, limit, offset int) []models.JobView {
	if offset >= len(views) {
		return []models.JobView{}
	}
	views = views[offset:]
	if limit > 0 && limit < len(views) {
		views = views[:limit]
	}
	return views
}

// Job returns one job, fetching it from its host when the cached copy is
// missing, expired or refresh=true is passed. A failed fetch falls back to
// the stale cached copy when one exists.
//
// @Summary Get a job
// @Tags Jobs
// @Produce json
// @Param hostname path string true "Cluster host"
// @Param jobID path string true "Job ID"
// @Param refresh query bool false "Bypass the cache"
// @Success 200 {object} models.APIResponse{data=models.JobView}
// @Failure 400 {object} models.APIResponse "Invalid job key"
// @Failure 404 {object} models.APIResponse "Job not found"
// @Failure 502 {object} models.APIResponse "Host fetch failed"
// @Failure 504 {object} models.APIResponse "Host fetch timed out"
// @Router /api/v1/jobs/{hostname}/{jobID} [get]
func (h *Handler) Job(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	key, apiErr := jobKeyParam(r)
	if apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	cached, ok := h.sync.Job(key)
	if ok && cached.Valid && !getBoolParam(r, "refresh") {
		respondSuccess(w, cached, start, true)
		return
	}

	view, err := h.sync.FetchSingleJob(r.Context(), key)
	if err != nil {
		if ok {
			logging.Ctx(r.Context()).Warn().Err(err).Str("job", key.String()).Msg("serving stale job after failed fetch")
			respondSuccess(w, cached, start, false)
			return
		}
		respondSyncError(w, err)
		return
	}
	respondSuccess(w, view, start, false)
}

// SetJobOutput attaches output captured by the dashboard to a cached job.
//
// @Summary Attach job output
// @Tags Jobs
// @Accept json
// @Produce json
// @Param hostname path string true "Cluster host"
// @Param jobID path string true "Job ID"
// @Param request body OutputRequest true "Output snapshot"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Failure 404 {object} models.APIResponse "Job not cached"
// @Router /api/v1/jobs/{hostname}/{jobID}/output [put]
func (h *Handler) SetJobOutput(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	key, apiErr := jobKeyParam(r)
	if apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	var req OutputRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	snapshot := models.OutputSnapshot{Content: req.Content, Truncated: req.Truncated}
	if err := h.sync.SetJobOutput(key, snapshot); err != nil {
		respondSyncError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"job": key.String()}, start, false)
}

// SetView selects the job shown in the dashboard's detail pane. The selected
// job's updates bypass batching. An empty body clears the selection.
//
// @Summary Select the viewed job
// @Tags Jobs
// @Accept json
// @Produce json
// @Param request body models.ViewRequest false "Job to view"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Router /api/v1/view [put]
func (h *Handler) SetView(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.ViewRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	var key *models.JobKey
	if req.Hostname != "" {
		key = &models.JobKey{Hostname: req.Hostname, JobID: req.JobID}
	}
	if err := h.sync.SetCurrentViewJob(key); err != nil {
		respondSyncError(w, err)
		return
	}
	respondSuccess(w, req, start, false)
}
