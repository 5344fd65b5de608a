package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Job statuses as stored in job_queue.status.
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

const maxJobRetries = 5

// Job is one queued unit of background work.
type Job struct {
	ID         string          `db:"id"`
	Type       string          `db:"type"`
	Payload    json.RawMessage `db:"payload"`
	Status     string          `db:"status"`
	RunAfter   time.Time       `db:"run_after"`
	RetryCount int             `db:"retry_count"`
	LastError  sql.NullString  `db:"last_error"`
}

// EnqueueJob inserts a queued job runnable at runAfter.
func (s *Store) EnqueueJob(ctx context.Context, jobType string, payload any, runAfter time.Time) (string, error) {
	if jobType == "" {
		return "", errors.New("postgres: job type must be non-empty")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("postgres: encode job payload: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO job_queue (id, type, payload, status, run_after)
		 VALUES ($1, $2, $3, 'queued', $4)`,
		id, jobType, raw, runAfter,
	)
	if err != nil {
		return "", fmt.Errorf("postgres: enqueue job: %w", err)
	}
	return id, nil
}

// ClaimNextJob takes the oldest runnable queued job, flips it to running
// and returns it. SKIP LOCKED lets several workers poll the same table
// without tripping over each other. Returns nil when nothing is runnable.
func (s *Store) ClaimNextJob(ctx context.Context) (*Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: claim job: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	job, err := claimInTx(ctx, tx, s.now())
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("postgres: claim job: %w", err)
	}
	return job, nil
}

func claimInTx(ctx context.Context, tx *sqlx.Tx, now time.Time) (*Job, error) {
	var job Job
	err := tx.GetContext(ctx, &job,
		`SELECT id::text AS id, type, payload, status, run_after, retry_count, last_error
		   FROM job_queue
		  WHERE status = 'queued' AND run_after <= $1
		  ORDER BY run_after ASC, created_at ASC
		  LIMIT 1
		  FOR UPDATE SKIP LOCKED`,
		now,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: claim job: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE job_queue SET status = 'running', locked_at = $1 WHERE id = $2::uuid`,
		now, job.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: claim job: %w", err)
	}
	job.Status = JobRunning
	return &job, nil
}

// MarkJobDone finalizes a completed job.
func (s *Store) MarkJobDone(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE job_queue SET status = 'done', locked_at = NULL WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark job done: %w", err)
	}
	return nil
}

// MarkJobFailed requeues a failed job with exponential backoff, or parks
// it as failed once the retry budget is spent.
func (s *Store) MarkJobFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	var retries int
	err := s.db.GetContext(ctx, &retries,
		`SELECT retry_count FROM job_queue WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark job failed: %w", err)
	}
	if retries+1 >= maxJobRetries {
		_, err = s.db.ExecContext(ctx,
			`UPDATE job_queue
			    SET status = 'failed', retry_count = retry_count + 1,
			        last_error = $2, locked_at = NULL
			  WHERE id = $1::uuid`,
			id, msg,
		)
	} else {
		backoff := time.Duration(30<<retries) * time.Second
		_, err = s.db.ExecContext(ctx,
			`UPDATE job_queue
			    SET status = 'queued', retry_count = retry_count + 1,
			        last_error = $2, run_after = $3, locked_at = NULL
			  WHERE id = $1::uuid`,
			id, msg, s.now().Add(backoff),
		)
	}
	if err != nil {
		return fmt.Errorf("postgres: mark job failed: %w", err)
	}
	return nil
}
