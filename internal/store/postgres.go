package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/phrasetracker/internal/transcript"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, status, transcript_text, total_chunks, completed_chunks, failed_chunks,
	total_sentences, error_message, created_at, started_at, completed_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	var total, completed int
	err := row.Scan(&j.ID, &j.Status, &j.TranscriptText, &total, &completed, &j.FailedChunks,
		&j.TotalSentences, &j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Progress = models.NewProgress(completed, total)
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, transcript_text, total_chunks, completed_chunks, failed_chunks,
		                   total_sentences, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.Status, job.TranscriptText, job.Progress.Total, job.Progress.Completed,
		job.FailedChunks, job.TotalSentences, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT sentence_index, text, tracker, confidence, start_ms, end_ms
		 FROM classified_sentences WHERE job_id = $1 ORDER BY sentence_index`, id)
	if err != nil {
		return nil, fmt.Errorf("get job results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.ClassifiedSentence
		if err := rows.Scan(&r.Index, &r.Text, &r.Tracker, &r.Confidence, &r.Start, &r.End); err != nil {
			return nil, fmt.Errorf("scan classified sentence: %w", err)
		}
		r.Timestamp = transcript.FormatTimestamp(r.Start)
		job.Results = append(job.Results, r)
	}
	return job, rows.Err()
}

// UpdateJobStatus applies the transition in a single conditional UPDATE so
// concurrent writers cannot both move the job out of the same state.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status == models.JobStatusProcessing {
		query += fmt.Sprintf(", started_at = COALESCE(started_at, $%d)", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status.IsTerminal() {
		query += fmt.Sprintf(", completed_at = COALESCE(completed_at, $%d)", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}

	query += fmt.Sprintf(" WHERE id = $1 AND status = ANY($%d)", argIdx)
	args = append(args, sourcesOf(status))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current models.JobStatus
	err = s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
}

func (s *PostgresStore) SetJobTotals(ctx context.Context, id string, totalChunks, totalSentences int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET total_chunks = $2, total_sentences = $3, updated_at = NOW() WHERE id = $1`,
		id, totalChunks, totalSentences)
	if err != nil {
		return fmt.Errorf("set job totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendResults inserts a wave's sentences with COPY and bumps the counters in
// the same transaction, holding the job row lock throughout.
func (s *PostgresStore) AppendResults(ctx context.Context, id string, wave models.WaveResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append results: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var status models.JobStatus
	err = tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock job: %w", err)
	}
	if status != models.JobStatusProcessing {
		return fmt.Errorf("%w: cannot append results to %s job", ErrInvalidTransition, status)
	}

	if len(wave.Results) > 0 {
		rows := make([][]any, len(wave.Results))
		for i, r := range wave.Results {
			rows[i] = []any{id, r.Index, r.Text, string(r.Tracker), r.Confidence, r.Start, r.End}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"classified_sentences"},
			[]string{"job_id", "sentence_index", "text", "tracker", "confidence", "start_ms", "end_ms"},
			pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy classified sentences: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE jobs SET completed_chunks = LEAST(completed_chunks + $2, total_chunks),
		                 failed_chunks = failed_chunks + $3,
		                 updated_at = NOW()
		 WHERE id = $1`, id, wave.Completed, wave.Failed)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append results: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) DeleteJobsCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs WHERE status IN ('completed', 'failed') AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
