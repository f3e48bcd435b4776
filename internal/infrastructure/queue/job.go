package queue

import (
	"context"
	"time"
)

type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

type Backoff struct {
	Type  BackoffType
	Delay time.Duration
}

// next returns the wait before the attempt following attemptsMade.
func (b Backoff) next(attemptsMade int) time.Duration {
	if b.Type == BackoffExponential && attemptsMade > 1 {
		return b.Delay << (attemptsMade - 1)
	}
	return b.Delay
}

// Options control a single job. Zero fields fall back to the queue defaults.
type Options struct {
	// JobID de-duplicates: adding a job whose ID is already known returns the
	// existing job.
	JobID            string
	Delay            time.Duration
	Attempts         int
	Backoff          Backoff
	RemoveOnComplete bool
}

// Job is a snapshot of a queued job. Handlers and event listeners receive
// copies; mutating them has no effect on the queue.
type Job[T any] struct {
	ID           string
	Name         string
	Data         T
	Opts         Options
	State        State
	AttemptsMade int
	FailedReason string
	AddedAt      time.Time
	ProcessedAt  time.Time
	FinishedAt   time.Time
}

// Handler processes one attempt of a job. A non-nil error schedules a retry
// until the job's attempts are exhausted.
type Handler[T any] func(ctx context.Context, job Job[T]) error
