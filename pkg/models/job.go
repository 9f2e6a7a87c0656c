package models

import (
	"math"
	"time"
)

// JobStatus is the lifecycle state of a classification job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Progress counts finished chunks. A chunk is finished once its wave has
// returned, whether the chunk succeeded or not.
type Progress struct {
	Completed  int `json:"completed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// NewProgress builds a Progress with the percentage derived from the counters.
func NewProgress(completed, total int) Progress {
	return Progress{
		Completed:  completed,
		Total:      total,
		Percentage: Percentage(completed, total),
	}
}

// Percentage returns round(completed/total*100), or 0 when total is 0.
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	if completed > total {
		completed = total
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// Job is one end-to-end classification run over a single submitted transcript.
// The client submits with POST /api/v1/classify and polls
// GET /api/v1/classify/status/{job_id} until status is completed or failed.
type Job struct {
	ID             string               `db:"id"               json:"id"`
	Status         JobStatus            `db:"status"           json:"status"`
	TranscriptText string               `db:"transcript_text"  json:"-"`
	Progress       Progress             `db:"-"                json:"progress"`
	FailedChunks   int                  `db:"failed_chunks"    json:"failed_chunks"`
	TotalSentences int                  `db:"total_sentences"  json:"total_sentences"`
	Results        []ClassifiedSentence `db:"-"                json:"results"`
	ErrorMessage   *string              `db:"error_message"    json:"error_message,omitempty"`
	CreatedAt      time.Time            `db:"created_at"       json:"created_at"`
	StartedAt      *time.Time           `db:"started_at"       json:"started_at,omitempty"`
	CompletedAt    *time.Time           `db:"completed_at"     json:"completed_at,omitempty"`
	UpdatedAt      time.Time            `db:"updated_at"       json:"updated_at"`
}

// Clone returns a deep copy so callers can read a job without holding locks.
func (j *Job) Clone() *Job {
	c := *j
	if j.Results != nil {
		c.Results = make([]ClassifiedSentence, len(j.Results))
		copy(c.Results, j.Results)
	}
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		c.ErrorMessage = &msg
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// WaveResult is what one finished wave contributes to a job.
type WaveResult struct {
	Results   []ClassifiedSentence
	Completed int
	Failed    int
}
