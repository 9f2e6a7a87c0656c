// Package handler implements the HTTP endpoints of the classification API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/phrasetracker/internal/api/response"
	"github.com/kiranshivaraju/phrasetracker/internal/jobs"
	"github.com/kiranshivaraju/phrasetracker/internal/queue"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

// maxBodyBytes caps submissions; a two hour call transcript is well under 1MB.
const maxBodyBytes = 5 << 20

// JobService defines the job operations the handlers depend on.
type JobService interface {
	Submit(ctx context.Context, params jobs.SubmitParams) (*jobs.Submission, error)
	Status(ctx context.Context, id string) (*jobs.StatusView, error)
	Peek(ctx context.Context, id string) (models.JobStatus, error)
}

type submitRequest struct {
	TranscriptText *string `json:"transcriptText"`
	JobID          string  `json:"jobId"`
}

type submitResponse struct {
	Success bool `json:"success"`
	*jobs.Submission
}

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/classify.
func NewSubmitHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body is too large", nil)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.TranscriptText == nil || strings.TrimSpace(*req.TranscriptText) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "transcriptText is required", nil)
			return
		}
		if req.JobID != "" {
			if err := jobs.ValidateJobID(req.JobID); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
		}

		sub, err := svc.Submit(r.Context(), jobs.SubmitParams{
			TranscriptText: *req.TranscriptText,
			JobID:          req.JobID,
		})
		if err != nil {
			switch {
			case errors.Is(err, jobs.ErrInvalidJobID):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			case errors.Is(err, jobs.ErrDuplicateJob):
				response.Error(w, http.StatusConflict, "DUPLICATE_JOB",
					"A job with this id already exists", nil)
			case errors.Is(err, queue.ErrQueueFull):
				w.Header().Set("Retry-After", "30")
				response.Error(w, http.StatusServiceUnavailable, "QUEUE_FULL",
					"Too many jobs are waiting; retry later", nil)
			default:
				slog.Error("job submission failed", "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Flat(w, http.StatusAccepted, submitResponse{Success: true, Submission: sub})
	}
}

// NewStatusHandler returns an http.HandlerFunc for GET /api/v1/classify/status/{jobID}.
func NewStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, ok := loadView(w, r, svc)
		if !ok {
			return
		}
		response.Flat(w, http.StatusOK, view)
	}
}

// loadView resolves {jobID} and writes the error response when it cannot.
func loadView(w http.ResponseWriter, r *http.Request, svc JobService) (*jobs.StatusView, bool) {
	id := chi.URLParam(r, "jobID")
	view, err := svc.Status(r.Context(), id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
		return nil, false
	}
	if err != nil {
		slog.Error("job status lookup failed", "job_id", id, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
		return nil, false
	}
	return view, true
}
