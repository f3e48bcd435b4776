package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"spendsync/internal/domain/refresh"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type RefreshJobRepository struct {
	db Querier
}

var _ refresh.Repository = (*RefreshJobRepository)(nil)

func NewRefreshJobRepository(db Querier) *RefreshJobRepository {
	return &RefreshJobRepository{db: db}
}

const refreshJobColumns = `id, user_id, status, job_type, queue_job_id, last_refresh_time,
		       next_scheduled_time, error_message, created_at, updated_at`

func (r *RefreshJobRepository) CreateJob(ctx context.Context, userID int64, jobType refresh.JobType) (*refresh.Job, error) {
	query := `
		INSERT INTO refresh_jobs (user_id, status, job_type)
		VALUES ($1, 'pending', $2)
		RETURNING ` + refreshJobColumns

	job, err := scanRefreshJob(r.db.QueryRowContext(ctx, query, userID, jobType))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, refresh.ErrRefreshInProgress
		}
		return nil, fmt.Errorf("failed to create refresh job: %w", err)
	}
	return job, nil
}

func (r *RefreshJobRepository) UpdateJobStatus(ctx context.Context, userID, jobID int64, status refresh.Status, errorMessage *string) error {
	query := `
		UPDATE refresh_jobs
		SET status = $3,
		    error_message = $4,
		    last_refresh_time = CASE WHEN $3 = 'completed' THEN NOW() ELSE last_refresh_time END,
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, jobID, userID, string(status), errorMessage)
	if err != nil {
		if isUniqueViolation(err) {
			return refresh.ErrRefreshInProgress
		}
		return fmt.Errorf("failed to update refresh job status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return refresh.ErrJobNotFound
	}
	return nil
}

func (r *RefreshJobRepository) UpdateQueueJobID(ctx context.Context, jobID int64, queueJobID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_jobs SET queue_job_id = $2, updated_at = NOW() WHERE id = $1`,
		jobID, queueJobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update queue job id: %w", err)
	}
	return nil
}

func (r *RefreshJobRepository) GetProcessingJob(ctx context.Context, userID int64) (*refresh.Job, error) {
	query := `SELECT ` + refreshJobColumns + `
		FROM refresh_jobs
		WHERE user_id = $1 AND status = 'processing'
		LIMIT 1
	`
	return r.getOne(ctx, query, userID)
}

func (r *RefreshJobRepository) GetPendingJob(ctx context.Context, userID int64, jobType refresh.JobType) (*refresh.Job, error) {
	query := `SELECT ` + refreshJobColumns + `
		FROM refresh_jobs
		WHERE user_id = $1 AND status = 'pending' AND job_type = $2
		ORDER BY created_at, id
		LIMIT 1
	`
	return r.getOne(ctx, query, userID, jobType)
}

func (r *RefreshJobRepository) GetLatestJob(ctx context.Context, userID int64) (*refresh.Job, error) {
	query := `SELECT ` + refreshJobColumns + `
		FROM refresh_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, userID)
}

func (r *RefreshJobRepository) GetLastRefreshTime(ctx context.Context, userID int64) (*time.Time, error) {
	var last *time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(last_refresh_time)
		FROM refresh_jobs
		WHERE user_id = $1 AND status = 'completed'
	`, userID).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to get last refresh time: %w", err)
	}
	return last, nil
}

func (r *RefreshJobRepository) UpdateNextScheduledTime(ctx context.Context, jobID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_jobs SET next_scheduled_time = $2, updated_at = NOW() WHERE id = $1`,
		jobID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update next scheduled time: %w", err)
	}
	return nil
}

func (r *RefreshJobRepository) ResetInterrupted(ctx context.Context, reason string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE refresh_jobs
		SET status = 'failed', error_message = $1, updated_at = NOW()
		WHERE status IN ('pending', 'processing')
	`, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to reset interrupted jobs: %w", err)
	}
	return result.RowsAffected()
}

func (r *RefreshJobRepository) getOne(ctx context.Context, query string, args ...any) (*refresh.Job, error) {
	job, err := scanRefreshJob(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh job: %w", err)
	}
	return job, nil
}

func scanRefreshJob(row Row) (*refresh.Job, error) {
	var job refresh.Job
	err := row.Scan(
		&job.ID, &job.UserID, &job.Status, &job.JobType, &job.QueueJobID, &job.LastRefreshTime,
		&job.NextScheduledTime, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
