package refresh

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"

	// StatusNeverRun is reported for users without any job history. It is
	// never stored.
	StatusNeverRun Status = "never_run"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type JobType string

const (
	JobTypeManual    JobType = "manual"
	JobTypeScheduled JobType = "scheduled"
)

// MsgRefreshInProgress is returned to callers whose refresh was suppressed.
const MsgRefreshInProgress = "A data refresh is already in progress"

var (
	// ErrRefreshInProgress is returned when another job of the same user holds
	// the processing lease.
	ErrRefreshInProgress = errors.New("refresh already in progress")
	ErrJobNotFound       = errors.New("refresh job not found")
)

// Job is the durable record of one refresh attempt.
type Job struct {
	ID                int64      `json:"id"`
	UserID            int64      `json:"userId"`
	Status            Status     `json:"status"`
	JobType           JobType    `json:"jobType"`
	QueueJobID        *string    `json:"queueJobId,omitempty"`
	LastRefreshTime   *time.Time `json:"lastRefreshTime,omitempty"`
	NextScheduledTime *time.Time `json:"nextScheduledTime,omitempty"`
	ErrorMessage      *string    `json:"errorMessage,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// JobData is the payload carried through the queue.
type JobData struct {
	JobID   int64   `json:"jobId"`
	UserID  int64   `json:"userId"`
	JobType JobType `json:"jobType"`
}

// RefreshResult is the outcome of a refresh request.
type RefreshResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	JobID   int64  `json:"jobId,omitempty"`
}

type UserRefreshResult struct {
	UserID int64 `json:"userId"`
	RefreshResult
}

// FanOutSummary aggregates the per-user outcomes of a refresh-all request.
type FanOutSummary struct {
	Total     int                 `json:"total"`
	Succeeded int                 `json:"succeeded"`
	Skipped   int                 `json:"skipped"`
	Failed    int                 `json:"failed"`
	Results   []UserRefreshResult `json:"results"`
}

// RefreshStatus is the user-facing view of the latest job.
type RefreshStatus struct {
	Status            Status     `json:"status"`
	JobType           JobType    `json:"jobType,omitempty"`
	LastRefreshTime   *time.Time `json:"lastRefreshTime,omitempty"`
	NextScheduledTime *time.Time `json:"nextScheduledTime,omitempty"`
	ErrorMessage      *string    `json:"errorMessage,omitempty"`
	UpdatedAt         *time.Time `json:"updatedAt,omitempty"`
}
