package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/phrasetracker/internal/store"
	"github.com/kiranshivaraju/phrasetracker/internal/transcript"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
	"golang.org/x/sync/errgroup"
)

// ChunkOutcome is the result of classifying one chunk. Err is set when the
// chunk failed; Results is then empty.
type ChunkOutcome struct {
	Chunk   transcript.Chunk
	Results []models.ClassifiedSentence
	Err     error
}

// Run processes one queued job to a terminal state. A job that is no longer
// pending, or no longer exists, is skipped so redelivered ids are harmless.
// The returned error is informational; the job record already reflects it.
func (s *Service) Run(ctx context.Context, jobID string) (err error) {
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("queued job no longer exists", "job_id", jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}
	if job.Status != models.JobStatusPending {
		slog.Debug("skipping job that is not pending", "job_id", jobID, "status", job.Status)
		return nil
	}

	if err := s.store.UpdateJobStatus(ctx, jobID, models.JobStatusProcessing); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			// another worker claimed it first
			return nil
		}
		return fmt.Errorf("starting job %s: %w", jobID, err)
	}
	s.mirrorStatus(ctx, jobID, models.JobStatusProcessing)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in job run", "error", r, "job_id", jobID)
			s.fail(ctx, jobID, fmt.Sprintf("panic: %v", r))
			err = fmt.Errorf("job %s panicked: %v", jobID, r)
		}
	}()

	started := time.Now()
	if err := s.process(ctx, job); err != nil {
		s.fail(ctx, jobID, err.Error())
		return err
	}

	if err := s.store.UpdateJobStatus(ctx, jobID, models.JobStatusCompleted); err != nil {
		s.fail(ctx, jobID, fmt.Sprintf("completing job: %v", err))
		return fmt.Errorf("completing job %s: %w", jobID, err)
	}
	s.mirrorStatus(ctx, jobID, models.JobStatusCompleted)
	slog.Info("job completed", "job_id", jobID, "duration", time.Since(started))
	return nil
}

// process segments the transcript and classifies it wave by wave, saving
// each wave's results before the next one starts.
func (s *Service) process(ctx context.Context, job *models.Job) error {
	sentences := transcript.Sentences(job.TranscriptText)
	chunks := transcript.Chunks(sentences, s.opts.ChunkSize)
	if err := s.store.SetJobTotals(ctx, job.ID, len(chunks), len(sentences)); err != nil {
		return fmt.Errorf("recording totals: %w", err)
	}

	tl := transcript.NewTimeline(len(sentences), s.opts.AssumedDuration)
	waves := transcript.Partition(chunks, s.opts.WaveSize)

	slog.Info("job started",
		"job_id", job.ID,
		"sentences", len(sentences),
		"chunks", len(chunks),
		"waves", len(waves),
	)

	for i, wave := range waves {
		if i > 0 {
			if err := sleepCtx(ctx, s.opts.WaveDelay); err != nil {
				return err
			}
		}

		outcomes := s.classifyWave(ctx, wave, tl)
		if err := ctx.Err(); err != nil {
			return err
		}

		result := models.WaveResult{Completed: len(outcomes)}
		for _, o := range outcomes {
			if o.Err != nil {
				result.Failed++
				slog.Warn("chunk classification failed",
					"job_id", job.ID,
					"chunk", o.Chunk.Start/s.opts.ChunkSize,
					"start", o.Chunk.Start,
					"error", o.Err,
				)
				continue
			}
			result.Results = append(result.Results, o.Results...)
		}

		if err := s.store.AppendResults(ctx, job.ID, result); err != nil {
			return fmt.Errorf("saving wave %d: %w", i+1, err)
		}
		slog.Debug("wave finished", "job_id", job.ID, "wave", i+1, "failed", result.Failed)
	}
	return nil
}

// classifyWave classifies every chunk of a wave concurrently. Per-chunk
// failures, including panics, are captured in the outcome rather than
// aborting the wave.
func (s *Service) classifyWave(ctx context.Context, wave []transcript.Chunk, tl transcript.Timeline) []ChunkOutcome {
	outcomes := make([]ChunkOutcome, len(wave))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range wave {
		g.Go(func() error {
			outcomes[i] = s.classifyChunk(gctx, chunk, tl)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (s *Service) classifyChunk(ctx context.Context, chunk transcript.Chunk, tl transcript.Timeline) (out ChunkOutcome) {
	out.Chunk = chunk
	defer func() {
		if r := recover(); r != nil {
			out.Results = nil
			out.Err = fmt.Errorf("classifier panic: %v", r)
		}
	}()

	results, err := s.classifier.ClassifyChunk(ctx, chunk, tl)
	if err != nil {
		out.Err = err
		return out
	}
	out.Results = results
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
