package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All job persistence goes through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	// GetJob returns the job with its results ordered by sentence index.
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, opts ...JobUpdateOption) error
	SetJobTotals(ctx context.Context, id string, totalChunks, totalSentences int) error
	// AppendResults records a finished wave. Only processing jobs accept results.
	AppendResults(ctx context.Context, id string, wave models.WaveResult) error

	// ListJobsByStatus returns matching jobs without their results.
	ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)
	// DeleteJobsCompletedBefore removes terminal jobs finished before cutoff.
	DeleteJobsCompletedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

var validTransitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusPending:    {models.JobStatusProcessing, models.JobStatusFailed},
	models.JobStatusProcessing: {models.JobStatusCompleted, models.JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to models.JobStatus) bool {
	return slices.Contains(validTransitions[from], to)
}

// sourcesOf lists the statuses from which to is reachable.
func sourcesOf(to models.JobStatus) []string {
	var from []string
	for src, targets := range validTransitions {
		if slices.Contains(targets, to) {
			from = append(from, string(src))
		}
	}
	slices.Sort(from)
	return from
}

type jobUpdateParams struct {
	ErrorMessage *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}
