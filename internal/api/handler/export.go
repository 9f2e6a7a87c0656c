package handler

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/phrasetracker/internal/api/response"
	"github.com/kiranshivaraju/phrasetracker/internal/export"
	"github.com/kiranshivaraju/phrasetracker/internal/jobs"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

// NewExportHandler returns an http.HandlerFunc for
// GET /api/v1/classify/status/{jobID}/export.
func NewExportHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")

		// the status alone decides 409, so results are loaded only for completed jobs
		status, err := svc.Peek(r.Context(), id)
		if errors.Is(err, jobs.ErrJobNotFound) {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			slog.Error("job status lookup failed", "job_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if status != models.JobStatusCompleted {
			notCompleted(w, status)
			return
		}

		view, ok := loadView(w, r, svc)
		if !ok {
			return
		}
		if view.Status != models.JobStatusCompleted {
			notCompleted(w, view.Status)
			return
		}

		var buf bytes.Buffer
		if err := export.WriteXLSX(&buf, view); err != nil {
			slog.Error("xlsx export failed", "job_id", view.JobID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		w.Header().Set("Content-Type", export.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, view.JobID))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

func notCompleted(w http.ResponseWriter, status models.JobStatus) {
	response.Error(w, http.StatusConflict, "JOB_NOT_COMPLETED",
		"Export is available once the job has completed",
		map[string]string{"status": string(status)})
}
