package refresh

import (
	"context"
	"time"
)

// Repository persists refresh job records.
type Repository interface {
	// CreateJob inserts a pending job. A second pending manual job for the
	// same user returns ErrRefreshInProgress.
	CreateJob(ctx context.Context, userID int64, jobType JobType) (*Job, error)

	// UpdateJobStatus moves a job to status. Moving to processing returns
	// ErrRefreshInProgress when another job of the user already holds it.
	// Moving to completed also stamps last_refresh_time.
	UpdateJobStatus(ctx context.Context, userID, jobID int64, status Status, errorMessage *string) error

	UpdateQueueJobID(ctx context.Context, jobID int64, queueJobID string) error

	// GetProcessingJob returns (nil, nil) when the user has no job in progress.
	GetProcessingJob(ctx context.Context, userID int64) (*Job, error)

	// GetPendingJob returns the user's oldest job of jobType still waiting for
	// a worker, or (nil, nil).
	GetPendingJob(ctx context.Context, userID int64, jobType JobType) (*Job, error)

	// GetLatestJob returns (nil, nil) when the user has never been refreshed.
	GetLatestJob(ctx context.Context, userID int64) (*Job, error)

	// GetLastRefreshTime returns when the user's most recent completed job
	// finished, or nil when none has.
	GetLastRefreshTime(ctx context.Context, userID int64) (*time.Time, error)

	UpdateNextScheduledTime(ctx context.Context, jobID int64, at time.Time) error

	// ResetInterrupted fails every pending or processing job left behind by a
	// previous process and returns how many were reset.
	ResetInterrupted(ctx context.Context, reason string) (int64, error)
}

// UserLister enumerates the users that take part in refreshes.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
}
