// Package jobs runs transcript classification jobs in the background: it
// accepts submissions, schedules chunk classification in waves, and renders
// the status view clients poll.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/phrasetracker/internal/cache"
	"github.com/kiranshivaraju/phrasetracker/internal/queue"
	"github.com/kiranshivaraju/phrasetracker/internal/store"
	"github.com/kiranshivaraju/phrasetracker/internal/transcript"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrDuplicateJob = errors.New("job id already exists")
	ErrInvalidJobID = errors.New("job id must match [A-Za-z0-9_-]{1,128}")
)

var reJobID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateJobID reports whether a client supplied id is acceptable.
func ValidateJobID(id string) error {
	if !reJobID.MatchString(id) {
		return ErrInvalidJobID
	}
	return nil
}

// Classifier labels the sentences of one chunk. *ai.Classifier satisfies it.
type Classifier interface {
	ClassifyChunk(ctx context.Context, chunk transcript.Chunk, tl transcript.Timeline) ([]models.ClassifiedSentence, error)
}

// Options tunes scheduling and retention. Zero values select the defaults.
type Options struct {
	ChunkSize       int           // sentences per chunk; default 25
	WaveSize        int           // chunks classified concurrently; default 5
	WaveDelay       time.Duration // pause between waves; negative disables it
	AssumedDuration time.Duration // call length used for timestamps; default 30m
	TTL             time.Duration // retention of terminal jobs and cached views; default 24h

	// EstimatedWaveDuration is the expected wall time of one wave, used for
	// the estimate returned at submission. Default 8s.
	EstimatedWaveDuration time.Duration
	PreviewSize           int    // default 5
	PollPath              string // default /api/v1/classify/status/
}

func (o Options) withDefaults() Options {
	if o.ChunkSize < 1 {
		o.ChunkSize = transcript.DefaultChunkSize
	}
	if o.WaveSize < 1 {
		o.WaveSize = 5
	}
	if o.WaveDelay == 0 {
		o.WaveDelay = time.Second
	}
	if o.WaveDelay < 0 {
		o.WaveDelay = 0
	}
	if o.AssumedDuration <= 0 {
		o.AssumedDuration = transcript.DefaultAssumedDuration
	}
	if o.TTL <= 0 {
		o.TTL = 24 * time.Hour
	}
	if o.EstimatedWaveDuration <= 0 {
		o.EstimatedWaveDuration = 8 * time.Second
	}
	if o.PreviewSize < 1 {
		o.PreviewSize = 5
	}
	if o.PollPath == "" {
		o.PollPath = "/api/v1/classify/status/"
	}
	return o
}

// Service owns the job lifecycle. Handlers call Submit and Status; workers call Run.
type Service struct {
	store      store.Store
	cache      cache.Cache
	queue      queue.Queue
	classifier Classifier
	opts       Options
	now        func() time.Time
}

// NewService creates a Service.
func NewService(st store.Store, ca cache.Cache, q queue.Queue, classifier Classifier, opts Options) *Service {
	return &Service{
		store:      st,
		cache:      ca,
		queue:      q,
		classifier: classifier,
		opts:       opts.withDefaults(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SubmitParams holds a validated submission.
type SubmitParams struct {
	TranscriptText string
	JobID          string // optional; generated when empty
}

// Submission is returned to the client as soon as the job is queued.
type Submission struct {
	JobID         string `json:"jobId"`
	Status        string `json:"status"`
	PollURL       string `json:"pollUrl"`
	EstimatedTime string `json:"estimatedTime"`
}

// Submit records a pending job and queues it. It returns before any
// classification work starts.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*Submission, error) {
	id := params.JobID
	if id == "" {
		id = s.newJobID()
	} else if err := ValidateJobID(id); err != nil {
		return nil, err
	}

	now := s.now()
	job := &models.Job{
		ID:             id,
		Status:         models.JobStatusPending,
		TranscriptText: params.TranscriptText,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrDuplicateJob
		}
		return nil, fmt.Errorf("creating job: %w", err)
	}
	s.mirrorStatus(ctx, id, models.JobStatusPending)

	if err := s.queue.Enqueue(ctx, id); err != nil {
		s.fail(ctx, id, fmt.Sprintf("enqueue: %v", err))
		return nil, fmt.Errorf("queueing job %s: %w", id, err)
	}

	slog.Info("job submitted", "job_id", id, "transcript_chars", len(params.TranscriptText))

	return &Submission{
		JobID:         id,
		Status:        string(models.JobStatusProcessing),
		PollURL:       s.opts.PollPath + id,
		EstimatedTime: FormatDuration(s.estimate(params.TranscriptText)),
	}, nil
}

// estimate predicts total processing time from the number of waves the
// transcript will need.
func (s *Service) estimate(text string) time.Duration {
	sentences := 0
	for range transcript.Segment(text) {
		sentences++
	}
	chunks := (sentences + s.opts.ChunkSize - 1) / s.opts.ChunkSize
	waves := (chunks + s.opts.WaveSize - 1) / s.opts.WaveSize
	if waves == 0 {
		return 0
	}
	return time.Duration(waves)*s.opts.EstimatedWaveDuration + time.Duration(waves-1)*s.opts.WaveDelay
}

func (s *Service) newJobID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("job_%d_%s", s.now().UnixMilli(), suffix)
}

// mirrorStatus copies the status into the cache for Peek. When the write
// fails the old mirror is dropped so Peek falls back to the store.
func (s *Service) mirrorStatus(ctx context.Context, id string, status models.JobStatus) {
	if err := s.cache.SetJobStatus(ctx, id, string(status), s.opts.TTL); err != nil {
		slog.Warn("failed to cache job status", "job_id", id, "status", status, "error", err)
		_ = s.cache.Delete(ctx, cache.JobStatusKey(id))
	}
}

// fail moves a job to failed. It runs on a detached context so a cancelled
// run still records its outcome.
func (s *Service) fail(ctx context.Context, id, msg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := s.store.UpdateJobStatus(ctx, id, models.JobStatusFailed, store.WithErrorMessage(msg))
	if err != nil {
		slog.Error("failed to mark job failed", "job_id", id, "error", err)
		return
	}
	s.mirrorStatus(ctx, id, models.JobStatusFailed)
	slog.Error("job failed", "job_id", id, "reason", msg)
}
