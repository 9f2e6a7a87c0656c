package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/phrasetracker/internal/cache"
	"github.com/kiranshivaraju/phrasetracker/internal/store"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

// StatusView is the polling response for one job.
type StatusView struct {
	JobID                  string           `json:"jobId"`
	Status                 models.JobStatus `json:"status"`
	Progress               models.Progress  `json:"progress"`
	CreatedAt              time.Time        `json:"createdAt"`
	StartedAt              *time.Time       `json:"startedAt,omitempty"`
	CompletedAt            *time.Time       `json:"completedAt,omitempty"`
	EstimatedTimeRemaining string           `json:"estimatedTimeRemaining,omitempty"`
	Error                  string           `json:"error,omitempty"`
	FailedChunks           int              `json:"failedChunks"`
	Degraded               bool             `json:"degraded"`

	// completed jobs only
	ClassifiedTranscript []models.ClassifiedSentence `json:"classifiedTranscript,omitzero"`
	TotalSentences       *int                        `json:"totalSentences,omitempty"`
	TrackerCounts        map[models.Tracker]int      `json:"trackerCounts,omitempty"`

	// in-flight and failed jobs
	PartialResults *int                        `json:"partialResults,omitempty"`
	PreviewResults []models.ClassifiedSentence `json:"previewResults,omitzero"`
}

// Terminal reports whether the view describes a finished job.
func (v *StatusView) Terminal() bool { return v.Status.IsTerminal() }

// Status returns the current view of a job, or ErrJobNotFound.
// Views of finished jobs are served from the cache once rendered.
func (s *Service) Status(ctx context.Context, id string) (*StatusView, error) {
	if view, ok := s.cachedView(ctx, id); ok {
		return view, nil
	}

	job, err := s.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}

	view := BuildView(job, s.now(), s.opts.PreviewSize)
	if view.Terminal() {
		s.cacheView(ctx, view)
	}
	return view, nil
}

// Peek returns a job's status without loading its results. The status
// mirror kept in the cache answers first and the store is the fallback.
func (s *Service) Peek(ctx context.Context, id string) (models.JobStatus, error) {
	status, ok, err := s.cache.GetJobStatus(ctx, id)
	if err != nil {
		slog.Warn("job status cache read failed", "job_id", id, "error", err)
	}
	if err == nil && ok {
		return models.JobStatus(status), nil
	}

	job, err := s.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrJobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("loading job %s: %w", id, err)
	}
	return job.Status, nil
}

func (s *Service) cachedView(ctx context.Context, id string) (*StatusView, bool) {
	data, ok, err := s.cache.Get(ctx, cache.JobViewKey(id))
	if err != nil {
		slog.Warn("job view cache read failed", "job_id", id, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var view StatusView
	if err := json.Unmarshal(data, &view); err != nil {
		slog.Warn("discarding malformed cached job view", "job_id", id, "error", err)
		return nil, false
	}
	return &view, true
}

func (s *Service) cacheView(ctx context.Context, view *StatusView) {
	data, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.JobViewKey(view.JobID), data, s.opts.TTL); err != nil {
		slog.Warn("job view cache write failed", "job_id", view.JobID, "error", err)
	}
}

// BuildView derives the polling view from a job record as of now.
func BuildView(job *models.Job, now time.Time, previewSize int) *StatusView {
	view := &StatusView{
		JobID:        job.ID,
		Status:       job.Status,
		Progress:     models.NewProgress(job.Progress.Completed, job.Progress.Total),
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		FailedChunks: job.FailedChunks,
		Degraded:     job.FailedChunks > 0,
	}
	if job.ErrorMessage != nil {
		view.Error = *job.ErrorMessage
	}

	switch job.Status {
	case models.JobStatusCompleted:
		view.Progress.Percentage = 100
		results := job.Results
		if results == nil {
			results = []models.ClassifiedSentence{}
		}
		total := job.TotalSentences
		view.ClassifiedTranscript = results
		view.TotalSentences = &total
		view.TrackerCounts = CountTrackers(results)

	case models.JobStatusProcessing, models.JobStatusFailed:
		partial := len(job.Results)
		view.PartialResults = &partial
		view.PreviewResults = preview(job.Results, previewSize)
		if job.Status == models.JobStatusProcessing {
			if eta, ok := remaining(job, now); ok {
				view.EstimatedTimeRemaining = FormatDuration(eta)
			}
		}
	}
	return view
}

// CountTrackers tallies sentences per tracker.
func CountTrackers(results []models.ClassifiedSentence) map[models.Tracker]int {
	counts := make(map[models.Tracker]int)
	for _, r := range results {
		counts[r.Tracker]++
	}
	return counts
}

func preview(results []models.ClassifiedSentence, n int) []models.ClassifiedSentence {
	if len(results) == 0 {
		return nil
	}
	if len(results) > n {
		results = results[len(results)-n:]
	}
	out := make([]models.ClassifiedSentence, len(results))
	copy(out, results)
	return out
}

// remaining extrapolates the time per finished chunk over the chunks left.
// It is undefined until at least one chunk has finished.
func remaining(job *models.Job, now time.Time) (time.Duration, bool) {
	done, total := job.Progress.Completed, job.Progress.Total
	if done < 1 || job.StartedAt == nil || total <= done {
		return 0, false
	}
	elapsed := now.Sub(*job.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	perChunk := elapsed / time.Duration(done)
	return perChunk * time.Duration(total-done), true
}

// FormatDuration renders d as XhYm, XmYs or Xs, rounded to the second.
func FormatDuration(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	if secs < 0 {
		secs = 0
	}
	h, m, sec := secs/3600, (secs%3600)/60, secs%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}
