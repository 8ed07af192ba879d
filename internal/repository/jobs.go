package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// Job is a row in the background job queue.
type Job struct {
	ID           uuid.UUID
	JobType      string
	Payload      []byte
	Status       string
	Priority     int32
	Attempts     int32
	MaxAttempts  int32
	ScheduledAt  time.Time
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
	ErrorMessage sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EnqueueJobParams describes a job to insert.
type EnqueueJobParams struct {
	JobType     string
	Payload     []byte
	Priority    int32
	MaxAttempts int32
	ScheduledAt time.Time
}

const enqueueJob = `
INSERT INTO jobs (job_type, payload, priority, max_attempts, scheduled_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, job_type, payload, status, priority, attempts, max_attempts,
          scheduled_at, started_at, completed_at, error_message, created_at, updated_at
`

// EnqueueJob inserts a pending job.
func (q *Queries) EnqueueJob(ctx context.Context, params EnqueueJobParams) (Job, error) {
	payload := params.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	raw := pqtype.NullRawMessage{RawMessage: payload, Valid: json.Valid(payload)}

	row := q.db.QueryRowContext(ctx, enqueueJob,
		params.JobType, raw, params.Priority, params.MaxAttempts, params.ScheduledAt)
	return scanJob(row)
}

const dequeueJob = `
SELECT id, job_type, payload, status, priority, attempts, max_attempts,
       scheduled_at, started_at, completed_at, error_message, created_at, updated_at
FROM jobs
WHERE status = 'pending' AND scheduled_at <= now()
ORDER BY priority DESC, scheduled_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED
`

// DequeueJob locks and returns the next runnable job. Must be called inside
// a transaction. Returns sql.ErrNoRows when the queue is empty.
func (q *Queries) DequeueJob(ctx context.Context) (Job, error) {
	return scanJob(q.db.QueryRowContext(ctx, dequeueJob))
}

const updateJobStarted = `
UPDATE jobs
SET status = 'running', started_at = now(), attempts = attempts + 1, updated_at = now()
WHERE id = $1
`

// UpdateJobStarted marks a dequeued job as running.
func (q *Queries) UpdateJobStarted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, updateJobStarted, id)
	if err != nil {
		return fmt.Errorf("update job started: %w", err)
	}
	return nil
}

const updateJobCompleted = `
UPDATE jobs
SET status = 'completed', completed_at = now(), updated_at = now()
WHERE id = $1
`

// UpdateJobCompleted marks a job as successfully finished.
func (q *Queries) UpdateJobCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, updateJobCompleted, id)
	if err != nil {
		return fmt.Errorf("update job completed: %w", err)
	}
	return nil
}

// UpdateJobFailedParams describes a failure to record.
type UpdateJobFailedParams struct {
	ID           uuid.UUID
	ErrorMessage sql.NullString
	Permanent    bool
}

const updateJobFailed = `
UPDATE jobs
SET status = CASE WHEN $3 OR attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
    scheduled_at = CASE WHEN $3 OR attempts >= max_attempts THEN scheduled_at
                        ELSE now() + (interval '30 seconds' * power(2, attempts - 1)) END,
    completed_at = CASE WHEN $3 OR attempts >= max_attempts THEN now() ELSE NULL END,
    error_message = $2,
    updated_at = now()
WHERE id = $1
`

// UpdateJobFailed records a failure. Transient failures are rescheduled
// with exponential backoff until max_attempts; permanent failures stop
// immediately.
func (q *Queries) UpdateJobFailed(ctx context.Context, params UpdateJobFailedParams) error {
	_, err := q.db.ExecContext(ctx, updateJobFailed, params.ID, params.ErrorMessage, params.Permanent)
	if err != nil {
		return fmt.Errorf("update job failed: %w", err)
	}
	return nil
}

const recoverStaleJobs = `
UPDATE jobs
SET status = 'pending', started_at = NULL, updated_at = now()
WHERE status = 'running'
  AND started_at < now() - (interval '1 second' * $1)
`

// RecoverStaleJobs resets running jobs whose worker likely crashed.
// Returns the number of recovered jobs.
func (q *Queries) RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error) {
	res, err := q.db.ExecContext(ctx, recoverStaleJobs, thresholdSeconds)
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}
	return res.RowsAffected()
}

const countJobsByStatus = `
SELECT status, count(*) FROM jobs GROUP BY status
`

// CountJobsByStatus returns job counts per status for sync metadata.
func (q *Queries) CountJobsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := q.db.QueryContext(ctx, countJobsByStatus)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanJob(row rowScanner) (Job, error) {
	var (
		j       Job
		payload pqtype.NullRawMessage
	)
	err := row.Scan(
		&j.ID, &j.JobType, &payload, &j.Status, &j.Priority, &j.Attempts,
		&j.MaxAttempts, &j.ScheduledAt, &j.StartedAt, &j.CompletedAt,
		&j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return Job{}, err
	}
	if payload.Valid {
		j.Payload = payload.RawMessage
	}
	return j, nil
}
