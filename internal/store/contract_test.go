package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/phrasetracker/internal/store"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		job := newJob("job_create")
		require.NoError(t, s.CreateJob(ctx, job))

		got, err := s.GetJob(ctx, "job_create")
		require.NoError(t, err)
		assert.Equal(t, "job_create", got.ID)
		assert.Equal(t, models.JobStatusPending, got.Status)
		assert.Equal(t, job.TranscriptText, got.TranscriptText)
		assert.Equal(t, models.Progress{}, got.Progress)
		assert.Nil(t, got.StartedAt)
		assert.Nil(t, got.CompletedAt)
		assert.Nil(t, got.ErrorMessage)
		assert.Empty(t, got.Results)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.CreateJob(ctx, newJob("job_dup")))
		err := s.CreateJob(ctx, newJob("job_dup"))
		assert.ErrorIs(t, err, store.ErrDuplicateKey)
	})

	t.Run("GetUnknown", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetJob(context.Background(), "job_missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Lifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateJob(ctx, newJob("job_life")))

		require.NoError(t, s.UpdateJobStatus(ctx, "job_life", models.JobStatusProcessing))
		require.NoError(t, s.SetJobTotals(ctx, "job_life", 2, 30))

		require.NoError(t, s.AppendResults(ctx, "job_life", models.WaveResult{
			Results:   sentences(0, 25),
			Completed: 1,
		}))
		mid, err := s.GetJob(ctx, "job_life")
		require.NoError(t, err)
		assert.Equal(t, models.Progress{Completed: 1, Total: 2, Percentage: 50}, mid.Progress)
		assert.Len(t, mid.Results, 25)
		require.NotNil(t, mid.StartedAt)

		require.NoError(t, s.AppendResults(ctx, "job_life", models.WaveResult{
			Completed: 1,
			Failed:    1,
		}))
		require.NoError(t, s.UpdateJobStatus(ctx, "job_life", models.JobStatusCompleted))

		done, err := s.GetJob(ctx, "job_life")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, done.Status)
		assert.Equal(t, models.Progress{Completed: 2, Total: 2, Percentage: 100}, done.Progress)
		assert.Equal(t, 1, done.FailedChunks)
		assert.Equal(t, 30, done.TotalSentences)
		require.NotNil(t, done.CompletedAt)
		assert.False(t, done.CompletedAt.Before(*done.StartedAt))
		assert.Nil(t, done.ErrorMessage)
	})

	t.Run("ResultsOrderedByIndex", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateJob(ctx, newJob("job_order")))
		require.NoError(t, s.UpdateJobStatus(ctx, "job_order", models.JobStatusProcessing))
		require.NoError(t, s.SetJobTotals(ctx, "job_order", 2, 4))

		// second chunk's results land before the first's
		require.NoError(t, s.AppendResults(ctx, "job_order", models.WaveResult{
			Results:   append(sentences(2, 2), sentences(0, 2)...),
			Completed: 2,
		}))

		got, err := s.GetJob(ctx, "job_order")
		require.NoError(t, err)
		require.Len(t, got.Results, 4)
		for i, r := range got.Results {
			assert.Equal(t, i, r.Index)
			assert.NotEmpty(t, r.Timestamp)
		}
	})

	t.Run("CompletedClampedToTotal", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateJob(ctx, newJob("job_clamp")))
		require.NoError(t, s.UpdateJobStatus(ctx, "job_clamp", models.JobStatusProcessing))
		require.NoError(t, s.SetJobTotals(ctx, "job_clamp", 1, 3))

		require.NoError(t, s.AppendResults(ctx, "job_clamp", models.WaveResult{Completed: 5}))
		got, err := s.GetJob(ctx, "job_clamp")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Progress.Completed)
		assert.Equal(t, 100, got.Progress.Percentage)
	})

	t.Run("InvalidTransitions", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateJob(ctx, newJob("job_bad")))

		err := s.UpdateJobStatus(ctx, "job_bad", models.JobStatusCompleted)
		assert.ErrorIs(t, err, store.ErrInvalidTransition)

		require.NoError(t, s.UpdateJobStatus(ctx, "job_bad", models.JobStatusProcessing))
		err = s.UpdateJobStatus(ctx, "job_bad", models.JobStatusProcessing)
		assert.ErrorIs(t, err, store.ErrInvalidTransition)

		require.NoError(t, s.UpdateJobStatus(ctx, "job_bad", models.JobStatusFailed, store.WithErrorMessage("boom")))
		err = s.UpdateJobStatus(ctx, "job_bad", models.JobStatusCompleted)
		assert.ErrorIs(t, err, store.ErrInvalidTransition)

		got, err := s.GetJob(ctx, "job_bad")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusFailed, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "boom", *got.ErrorMessage)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("PendingCanFail", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateJob(ctx, newJob("job_pf")))
		require.NoError(t, s.UpdateJobStatus(ctx, "job_pf", models.JobStatusFailed, store.WithErrorMessage("queue full")))
	})

	t.Run("UpdateUnknown", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdateJobStatus(context.Background(), "job_nope", models.JobStatusProcessing)
		assert.ErrorIs(t, err, store.ErrNotFound)
		err = s.SetJobTotals(context.Background(), "job_nope", 1, 1)
		assert.ErrorIs(t, err, store.ErrNotFound)
		err = s.AppendResults(context.Background(), "job_nope", models.WaveResult{})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("AppendAfterFailureRejected", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateJob(ctx, newJob("job_late")))
		require.NoError(t, s.UpdateJobStatus(ctx, "job_late", models.JobStatusProcessing))
		require.NoError(t, s.SetJobTotals(ctx, "job_late", 3, 60))
		require.NoError(t, s.UpdateJobStatus(ctx, "job_late", models.JobStatusFailed, store.WithErrorMessage("x")))

		err := s.AppendResults(ctx, "job_late", models.WaveResult{Results: sentences(0, 1), Completed: 1})
		assert.ErrorIs(t, err, store.ErrInvalidTransition)

		got, err := s.GetJob(ctx, "job_late")
		require.NoError(t, err)
		assert.Equal(t, 0, got.Progress.Completed)
		assert.Empty(t, got.Results)
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateJob(ctx, newJob("job_conc")))
		require.NoError(t, s.UpdateJobStatus(ctx, "job_conc", models.JobStatusProcessing))
		require.NoError(t, s.SetJobTotals(ctx, "job_conc", 10, 100))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(chunk int) {
				defer wg.Done()
				err := s.AppendResults(ctx, "job_conc", models.WaveResult{
					Results:   sentences(chunk*10, 10),
					Completed: 1,
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := s.GetJob(ctx, "job_conc")
		require.NoError(t, err)
		assert.Len(t, got.Results, 100)
		assert.Equal(t, 10, got.Progress.Completed)
	})

	t.Run("ListJobsByStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			require.NoError(t, s.CreateJob(ctx, newJob(fmt.Sprintf("job_list_%d", i))))
		}
		require.NoError(t, s.UpdateJobStatus(ctx, "job_list_1", models.JobStatusProcessing))

		pending, err := s.ListJobsByStatus(ctx, models.JobStatusPending)
		require.NoError(t, err)
		assert.Len(t, pending, 2)

		processing, err := s.ListJobsByStatus(ctx, models.JobStatusProcessing)
		require.NoError(t, err)
		require.Len(t, processing, 1)
		assert.Equal(t, "job_list_1", processing[0].ID)
	})

	t.Run("DeleteJobsCompletedBefore", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateJob(ctx, newJob("job_old")))
		require.NoError(t, s.UpdateJobStatus(ctx, "job_old", models.JobStatusFailed, store.WithErrorMessage("x")))
		require.NoError(t, s.CreateJob(ctx, newJob("job_active")))

		n, err := s.DeleteJobsCompletedBefore(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		n, err = s.DeleteJobsCompletedBefore(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.GetJob(ctx, "job_old")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetJob(ctx, "job_active")
		assert.NoError(t, err)
	})
}

func newJob(id string) *models.Job {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Job{
		ID:             id,
		Status:         models.JobStatusPending,
		TranscriptText: "Welcome to the clinic today. What brings you in this afternoon?",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func sentences(from, n int) []models.ClassifiedSentence {
	out := make([]models.ClassifiedSentence, n)
	for i := range out {
		idx := from + i
		out[i] = models.ClassifiedSentence{
			Index:      idx,
			Text:       fmt.Sprintf("Sentence number %d of the call.", idx),
			Tracker:    models.TrackerDiscovery,
			Confidence: 0.9,
			Start:      int64(idx) * 1000,
			End:        int64(idx+1) * 1000,
			Timestamp:  fmt.Sprintf("00:%02d", idx%60),
		}
	}
	return out
}
