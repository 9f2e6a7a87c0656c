package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

// MemoryStore implements Store in process memory. Jobs do not survive a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*models.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrDuplicateKey
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := job.Clone()
	slices.SortStableFunc(out.Results, func(a, b models.ClassifiedSentence) int { return a.Index - b.Index })
	return out, nil
}

func (s *MemoryStore) UpdateJobStatus(_ context.Context, id string, status models.JobStatus, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !CanTransition(job.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}

	now := s.now()
	job.Status = status
	job.UpdatedAt = now
	if status == models.JobStatusProcessing && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if status.IsTerminal() && job.CompletedAt == nil {
		job.CompletedAt = &now
	}
	if params.ErrorMessage != nil {
		msg := *params.ErrorMessage
		job.ErrorMessage = &msg
	}
	return nil
}

func (s *MemoryStore) SetJobTotals(_ context.Context, id string, totalChunks, totalSentences int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.Progress = models.NewProgress(job.Progress.Completed, totalChunks)
	job.TotalSentences = totalSentences
	job.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) AppendResults(_ context.Context, id string, wave models.WaveResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != models.JobStatusProcessing {
		return fmt.Errorf("%w: cannot append results to %s job", ErrInvalidTransition, job.Status)
	}

	job.Results = append(job.Results, wave.Results...)
	completed := min(job.Progress.Completed+wave.Completed, job.Progress.Total)
	job.Progress = models.NewProgress(completed, job.Progress.Total)
	job.FailedChunks += wave.Failed
	job.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) ListJobsByStatus(_ context.Context, status models.JobStatus) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Job
	for _, job := range s.jobs {
		if job.Status != status {
			continue
		}
		c := job.Clone()
		c.Results = nil
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *models.Job) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteJobsCompletedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, job := range s.jobs {
		if job.Status.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

var _ Store = (*MemoryStore)(nil)
