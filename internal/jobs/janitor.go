package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

// Recover reconciles jobs left behind by a previous process. Pending jobs are
// queued again; processing jobs lost their worker and are marked failed.
func (s *Service) Recover(ctx context.Context) error {
	pending, err := s.store.ListJobsByStatus(ctx, models.JobStatusPending)
	if err != nil {
		return fmt.Errorf("listing pending jobs: %w", err)
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(ctx, job.ID); err != nil {
			slog.Error("failed to requeue pending job", "job_id", job.ID, "error", err)
			s.fail(ctx, job.ID, fmt.Sprintf("requeue after restart: %v", err))
		}
	}

	processing, err := s.store.ListJobsByStatus(ctx, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("listing processing jobs: %w", err)
	}
	for _, job := range processing {
		s.fail(ctx, job.ID, "interrupted by restart")
	}

	if len(pending)+len(processing) > 0 {
		slog.Info("recovered jobs", "requeued", len(pending), "failed", len(processing))
	}
	return nil
}

// expirer is implemented by caches that hold expired entries until swept.
type expirer interface {
	DeleteExpired() int
}

// Sweep deletes terminal jobs that finished more than ttl ago, along with
// expired cache entries when the cache keeps them in process.
func (s *Service) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	n, err := s.store.DeleteJobsCompletedBefore(ctx, s.now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("deleting expired jobs: %w", err)
	}
	if c, ok := s.cache.(expirer); ok {
		if evicted := c.DeleteExpired(); evicted > 0 {
			slog.Debug("evicted expired cache entries", "count", evicted)
		}
	}
	return n, nil
}

// StartJanitor sweeps expired jobs every interval until ctx is done.
func (s *Service) StartJanitor(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.Sweep(ctx, ttl)
				if err != nil {
					slog.Error("job janitor sweep failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("evicted expired jobs", "count", n)
				}
			}
		}
	}()
}
