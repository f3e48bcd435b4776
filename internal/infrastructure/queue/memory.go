// Package queue is an in-process job queue with delayed jobs, job-id
// de-duplication and retry with backoff.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	queueTracer    = otel.Tracer("spendsync/queue")
	queueMeter     = otel.Meter("spendsync/queue")
	jobDuration, _ = queueMeter.Float64Histogram("queue.job.duration", metric.WithDescription("Job attempt duration in seconds"), metric.WithUnit("s"))
	jobTotal, _    = queueMeter.Int64Counter("queue.job.total", metric.WithDescription("Job attempts by outcome"))
	jobRetries, _  = queueMeter.Int64Counter("queue.job.retries", metric.WithDescription("Job attempts rescheduled after failure"))
)

var (
	ErrClosed    = errors.New("queue is shut down")
	ErrNoHandler = errors.New("queue has no handler")
)

// DefaultRetainTerminal is how many completed or failed jobs a queue keeps
// when Config.RetainTerminal is unset.
const DefaultRetainTerminal = 1000

type Config struct {
	Workers    int
	JobTimeout time.Duration
	Defaults   Options
	// RetainTerminal caps the completed and failed jobs kept for GetJob and
	// de-duplication. The oldest are evicted first.
	RetainTerminal int
}

// Memory is a Queue held entirely in process memory. Jobs do not survive a
// restart; callers keep their own durable records.
type Memory[T any] struct {
	name string
	cfg  Config
	log  *zap.SugaredLogger

	mu          sync.Mutex
	jobs        map[string]*Job[T]
	timers      map[string]*time.Timer
	pending     []string
	terminal    []string
	seq         int64
	handler     Handler[T]
	onCompleted []func(Job[T])
	onFailed    []func(Job[T], error)
	started     bool
	closing     bool

	notify chan struct{}
	quit   chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewMemory[T any](name string, cfg Config, log *zap.SugaredLogger) *Memory[T] {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Defaults.Attempts < 1 {
		cfg.Defaults.Attempts = 1
	}
	if cfg.RetainTerminal < 1 {
		cfg.RetainTerminal = DefaultRetainTerminal
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Memory[T]{
		name:   name,
		cfg:    cfg,
		log:    log,
		jobs:   make(map[string]*Job[T]),
		timers: make(map[string]*time.Timer),
		notify: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Process registers the handler. It must be called before Start.
func (q *Memory[T]) Process(handler Handler[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
}

// OnCompleted subscribes fn to successful jobs.
func (q *Memory[T]) OnCompleted(fn func(job Job[T])) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onCompleted = append(q.onCompleted, fn)
}

// OnFailed subscribes fn to jobs that exhausted their attempts.
func (q *Memory[T]) OnFailed(fn func(job Job[T], err error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFailed = append(q.onFailed, fn)
}

// Start launches the worker goroutines.
func (q *Memory[T]) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closing {
		return ErrClosed
	}
	if q.handler == nil {
		return ErrNoHandler
	}
	if q.started {
		return nil
	}
	q.started = true

	q.log.Infow("Starting queue", "queue", q.name, "workers", q.cfg.Workers)
	for i := 1; i <= q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.signal()
	return nil
}

// Add enqueues a job. When opts.JobID matches a job the queue already holds,
// that job is returned unchanged.
func (q *Memory[T]) Add(name string, data T, opts Options) (Job[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closing {
		return Job[T]{}, ErrClosed
	}

	opts = q.withDefaults(opts)
	if opts.JobID != "" {
		if existing, ok := q.jobs[opts.JobID]; ok {
			return *existing, nil
		}
	} else {
		q.seq++
		opts.JobID = strconv.FormatInt(q.seq, 10)
	}

	job := &Job[T]{
		ID:      opts.JobID,
		Name:    name,
		Data:    data,
		Opts:    opts,
		AddedAt: time.Now(),
	}
	q.jobs[job.ID] = job

	if opts.Delay > 0 {
		job.State = StateDelayed
		q.scheduleLocked(job.ID, opts.Delay)
	} else {
		job.State = StateWaiting
		q.pushLocked(job.ID)
	}

	return *job, nil
}

// GetJob returns a snapshot of the job, or false when the queue does not
// hold it.
func (q *Memory[T]) GetJob(id string) (Job[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return Job[T]{}, false
	}
	return *job, true
}

// Counts returns the number of jobs per state.
func (q *Memory[T]) Counts() map[State]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := make(map[State]int)
	for _, job := range q.jobs {
		counts[job.State]++
	}
	return counts
}

// Obliterate drops every job, including delayed and retained ones. Jobs that
// are running finish, but their outcome is no longer recorded.
func (q *Memory[T]) Obliterate() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	n := len(q.jobs)
	q.jobs = make(map[string]*Job[T])
	q.pending = nil
	q.terminal = nil

	q.log.Infow("Queue obliterated", "queue", q.name, "jobs", n)
	return nil
}

// Shutdown stops accepting jobs and waits for running ones. When they do not
// finish within timeout their contexts are cancelled.
func (q *Memory[T]) Shutdown(timeout time.Duration) {
	q.mu.Lock()
	if q.closing {
		q.mu.Unlock()
		return
	}
	q.closing = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	q.mu.Unlock()

	q.log.Infow("Queue: initiating graceful shutdown", "queue", q.name, "timeout", timeout)
	close(q.quit)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.log.Infow("Queue: all workers finished gracefully", "queue", q.name)
	case <-time.After(timeout):
		q.log.Warnw("Queue: timeout reached, cancelling running jobs", "queue", q.name)
	}
	q.cancel()
}

func (q *Memory[T]) withDefaults(opts Options) Options {
	d := q.cfg.Defaults
	if opts.Attempts < 1 {
		opts.Attempts = d.Attempts
	}
	if opts.Backoff.Type == "" {
		opts.Backoff = d.Backoff
	}
	opts.RemoveOnComplete = opts.RemoveOnComplete || d.RemoveOnComplete
	return opts
}

func (q *Memory[T]) pushLocked(id string) {
	q.pending = append(q.pending, id)
	q.signal()
}

func (q *Memory[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Memory[T]) scheduleLocked(id string, delay time.Duration) {
	q.timers[id] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		delete(q.timers, id)
		job, ok := q.jobs[id]
		if !ok || q.closing || job.State != StateDelayed {
			return
		}
		job.State = StateWaiting
		q.pushLocked(id)
	})
}

// next pops the next waiting job. It wakes another worker when more work
// remains.
func (q *Memory[T]) next() (*Job[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) > 0 && !q.closing {
		id := q.pending[0]
		q.pending = q.pending[1:]

		job, ok := q.jobs[id]
		if !ok || job.State != StateWaiting {
			continue
		}
		job.State = StateActive
		job.AttemptsMade++
		job.ProcessedAt = time.Now()

		if len(q.pending) > 0 {
			q.signal()
		}
		return job, true
	}
	return nil, false
}

func (q *Memory[T]) worker(id int) {
	defer q.wg.Done()

	for {
		job, ok := q.next()
		if ok {
			q.processJob(id, job)
			continue
		}

		select {
		case <-q.quit:
			q.log.Debugw("Queue worker shutting down", "queue", q.name, "worker", id)
			return
		case <-q.notify:
		}
	}
}

// processJob runs one attempt with telemetry, then records the outcome.
func (q *Memory[T]) processJob(workerID int, job *Job[T]) {
	q.mu.Lock()
	snapshot := *job
	handler := q.handler
	q.mu.Unlock()

	ctx := q.ctx
	if q.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.JobTimeout)
		defer cancel()
	}

	ctx, span := queueTracer.Start(ctx, "queue.job",
		trace.WithAttributes(
			attribute.String("queue.name", q.name),
			attribute.String("job.id", snapshot.ID),
			attribute.String("job.name", snapshot.Name),
			attribute.Int("job.attempt", snapshot.AttemptsMade),
			attribute.Int("worker.id", workerID),
		),
	)
	defer span.End()

	start := time.Now()
	err := q.run(ctx, handler, snapshot)
	jobDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("queue.name", q.name)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("queue.name", q.name), attribute.String("status", "error")))
	} else {
		jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("queue.name", q.name), attribute.String("status", "success")))
	}

	q.finish(ctx, job, err)
}

func (q *Memory[T]) run(ctx context.Context, handler Handler[T], job Job[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return handler(ctx, job)
}

func (q *Memory[T]) finish(ctx context.Context, job *Job[T], err error) {
	q.mu.Lock()

	// Obliterated while running.
	if q.jobs[job.ID] != job {
		q.mu.Unlock()
		return
	}

	job.FinishedAt = time.Now()

	if err == nil {
		job.State = StateCompleted
		job.FailedReason = ""
		if job.Opts.RemoveOnComplete {
			delete(q.jobs, job.ID)
		} else {
			q.retainLocked(job.ID)
		}
		snapshot := *job
		listeners := append([]func(Job[T]){}, q.onCompleted...)
		q.mu.Unlock()

		q.log.Debugw("Job completed", "queue", q.name, "jobId", job.ID, "attempt", snapshot.AttemptsMade)
		for _, fn := range listeners {
			fn(snapshot)
		}
		return
	}

	job.FailedReason = err.Error()

	if job.AttemptsMade < job.Opts.Attempts && !q.closing {
		attempt := job.AttemptsMade
		delay := job.Opts.Backoff.next(attempt)
		job.State = StateDelayed
		q.scheduleLocked(job.ID, delay)
		q.mu.Unlock()

		jobRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("queue.name", q.name)))
		q.log.Warnw("Job attempt failed, retrying",
			"queue", q.name, "jobId", job.ID, "attempt", attempt, "retryIn", delay, "error", err)
		return
	}

	job.State = StateFailed
	q.retainLocked(job.ID)
	snapshot := *job
	listeners := append([]func(Job[T], error){}, q.onFailed...)
	q.mu.Unlock()

	q.log.Errorw("Job failed", "queue", q.name, "jobId", job.ID, "attempts", snapshot.AttemptsMade, "error", err)
	for _, fn := range listeners {
		fn(snapshot, err)
	}
}

// retainLocked records a finished job and evicts the oldest finished jobs
// beyond the retention cap.
func (q *Memory[T]) retainLocked(id string) {
	q.terminal = append(q.terminal, id)
	for len(q.terminal) > q.cfg.RetainTerminal {
		oldest := q.terminal[0]
		q.terminal = q.terminal[1:]
		if job, ok := q.jobs[oldest]; ok && (job.State == StateCompleted || job.State == StateFailed) {
			delete(q.jobs, oldest)
		}
	}
}
