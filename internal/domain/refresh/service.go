// Package refresh schedules and runs background data refreshes per user.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spendsync/internal/domain/item"
	"spendsync/internal/domain/plaidsync"
	"spendsync/internal/infrastructure/queue"
)

const (
	// QueueName names the refresh queue in logs and metrics.
	QueueName = "data-refresh"
	jobName   = "refresh-user-data"

	maxJitter          = 60 * time.Minute
	interruptedMessage = "interrupted by restart"
)

var (
	refreshTracer       = otel.Tracer("spendsync/refresh")
	refreshMeter        = otel.Meter("spendsync/refresh")
	refreshRequests, _  = refreshMeter.Int64Counter("refresh.requests", metric.WithDescription("Refresh requests by trigger and outcome"))
	refreshJobsTotal, _ = refreshMeter.Int64Counter("refresh.jobs", metric.WithDescription("Refresh jobs finished by type and status"))
)

// JobQueue is the queue the service drives. Implementations retry a job
// whose handler returns an error until its attempts are exhausted.
type JobQueue interface {
	Add(name string, data JobData, opts queue.Options) (queue.Job[JobData], error)
	Process(handler queue.Handler[JobData])
	OnCompleted(fn func(job queue.Job[JobData]))
	OnFailed(fn func(job queue.Job[JobData], err error))
	Obliterate() error
}

type ItemSyncer interface {
	SyncItem(ctx context.Context, plaidItemID string) (*plaidsync.Result, error)
}

type ItemLookup interface {
	GetByPlaidItemID(ctx context.Context, plaidItemID string) (*item.Item, error)
	ListByUserID(ctx context.Context, userID int64) ([]*item.Item, error)
}

type Config struct {
	IntervalHours     int
	Attempts          int
	BackoffBase       time.Duration
	SettleDelay       time.Duration
	FanOutConcurrency int
}

func (c Config) interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// Service owns the refresh job lifecycle: pending, processing, then
// completed or failed. A completed scheduled job begets its successor.
type Service struct {
	repo   Repository
	users  UserLister
	items  ItemLookup
	syncer ItemSyncer
	queue  JobQueue
	cfg    Config
	log    *zap.SugaredLogger

	now    func() time.Time
	jitter func() time.Duration

	chains   sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

func NewService(repo Repository, users UserLister, items ItemLookup, syncer ItemSyncer, q JobQueue, cfg Config, log *zap.SugaredLogger) *Service {
	if cfg.FanOutConcurrency < 1 {
		cfg.FanOutConcurrency = 1
	}
	return &Service{
		repo:   repo,
		users:  users,
		items:  items,
		syncer: syncer,
		queue:  q,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		jitter: func() time.Duration { return rand.N(maxJitter) },
		stop:   make(chan struct{}),
	}
}

// Start clears queue state left by a previous process and subscribes the job
// handlers. The queue's workers are started by the caller afterwards.
func (s *Service) Start(ctx context.Context) error {
	n, err := s.repo.ResetInterrupted(ctx, interruptedMessage)
	if err != nil {
		return fmt.Errorf("failed to reset interrupted jobs: %w", err)
	}
	if n > 0 {
		s.log.Warnw("Reset jobs interrupted by restart", "count", n)
	}

	if err := s.queue.Obliterate(); err != nil {
		return fmt.Errorf("failed to purge refresh queue: %w", err)
	}

	s.queue.Process(s.processJob)
	s.queue.OnCompleted(s.handleCompleted)
	s.queue.OnFailed(s.handleFailed)

	s.log.Infow("Refresh service started", "queue", QueueName)
	return nil
}

// InitializeScheduledRefreshes schedules every user's first refresh at
// intervalHours plus up to an hour of jitter. Users that cannot be scheduled
// are logged and skipped; the number scheduled is returned.
func (s *Service) InitializeScheduledRefreshes(ctx context.Context, intervalHours int) (int, error) {
	userIDs, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	base := time.Duration(intervalHours) * time.Hour
	scheduled := 0
	for _, userID := range userIDs {
		delay := base + s.jitter()
		if _, err := s.ScheduleRefresh(ctx, userID, delay); err != nil {
			s.log.Errorw("Failed to schedule refresh", "userId", userID, "error", err)
			continue
		}
		scheduled++
	}

	s.log.Infow("Scheduled refreshes initialized", "users", len(userIDs), "scheduled", scheduled, "intervalHours", intervalHours)
	return scheduled, nil
}

// ScheduleRefresh records a scheduled job for the user and enqueues it to
// run after delay.
func (s *Service) ScheduleRefresh(ctx context.Context, userID int64, delay time.Duration) (*Job, error) {
	job, err := s.repo.CreateJob(ctx, userID, JobTypeScheduled)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("scheduled-%d-%d", userID, job.ID)
	if err := s.enqueue(ctx, job, key, delay); err != nil {
		return nil, err
	}

	next := s.now().Add(delay)
	if err := s.repo.UpdateNextScheduledTime(ctx, job.ID, next); err != nil {
		s.log.Warnw("Failed to record next scheduled time", "jobId", job.ID, "error", err)
	}
	job.NextScheduledTime = &next
	return job, nil
}

// RequestManualRefresh enqueues an immediate refresh unless one is already
// running or waiting for the user.
func (s *Service) RequestManualRefresh(ctx context.Context, userID int64) (*RefreshResult, error) {
	busy, err := s.refreshInFlight(ctx, userID)
	if err != nil {
		return nil, err
	}
	if busy {
		return s.refreshBusy(ctx), nil
	}

	job, err := s.repo.CreateJob(ctx, userID, JobTypeManual)
	if errors.Is(err, ErrRefreshInProgress) {
		return s.refreshBusy(ctx), nil
	}
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("manual-%d-%s", userID, uuid.NewString())
	if err := s.enqueue(ctx, job, key, 0); err != nil {
		return nil, err
	}

	refreshRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", string(JobTypeManual)), attribute.String("outcome", "queued")))
	s.log.Infow("Manual refresh queued", "userId", userID, "jobId", job.ID)
	return &RefreshResult{Success: true, Message: "Data refresh started", JobID: job.ID}, nil
}

// RunRefresh records a manual job and runs it in the calling goroutine,
// bypassing the queue. It takes the same per-user lease as queued jobs and
// returns the job as it was left.
func (s *Service) RunRefresh(ctx context.Context, userID int64) (*Job, error) {
	busy, err := s.refreshInFlight(ctx, userID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, ErrRefreshInProgress
	}

	job, err := s.repo.CreateJob(ctx, userID, JobTypeManual)
	if err != nil {
		return nil, err
	}

	runErr := s.processJob(ctx, queue.Job[JobData]{
		ID:           fmt.Sprintf("inline-%d-%d", userID, job.ID),
		Name:         jobName,
		Data:         JobData{JobID: job.ID, UserID: userID, JobType: JobTypeManual},
		AttemptsMade: 1,
	})

	latest, err := s.repo.GetLatestJob(ctx, userID)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.ID != job.ID {
		latest = job
	}
	return latest, runErr
}

func (s *Service) refreshBusy(ctx context.Context) *RefreshResult {
	refreshRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", string(JobTypeManual)), attribute.String("outcome", "in_progress")))
	return &RefreshResult{Success: false, Message: MsgRefreshInProgress}
}

// RequestManualRefreshAllUsers requests a manual refresh for every user. A
// failure for one user does not affect the others.
func (s *Service) RequestManualRefreshAllUsers(ctx context.Context) (*FanOutSummary, error) {
	userIDs, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	results := make([]UserRefreshResult, len(userIDs))

	var g errgroup.Group
	g.SetLimit(s.cfg.FanOutConcurrency)
	for i, userID := range userIDs {
		g.Go(func() error {
			res, err := s.RequestManualRefresh(ctx, userID)
			if err != nil {
				s.log.Errorw("Manual refresh failed", "userId", userID, "error", err)
				results[i] = UserRefreshResult{UserID: userID, RefreshResult: RefreshResult{Message: err.Error()}}
				return nil
			}
			results[i] = UserRefreshResult{UserID: userID, RefreshResult: *res}
			return nil
		})
	}
	_ = g.Wait()

	summary := &FanOutSummary{Total: len(userIDs), Results: results}
	for _, r := range results {
		switch {
		case r.Success:
			summary.Succeeded++
		case r.Message == MsgRefreshInProgress:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	s.log.Infow("Refresh requested for all users",
		"total", summary.Total, "succeeded", summary.Succeeded, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

// RequestItemRefresh refreshes the owner of a Plaid item, going through the
// same in-progress check as a manual request.
func (s *Service) RequestItemRefresh(ctx context.Context, plaidItemID string) (*RefreshResult, error) {
	it, err := s.items.GetByPlaidItemID(ctx, plaidItemID)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, item.ErrItemNotFound
	}
	return s.RequestManualRefresh(ctx, it.UserID)
}

// GetRefreshStatus reports the user's most recent job.
func (s *Service) GetRefreshStatus(ctx context.Context, userID int64) (*RefreshStatus, error) {
	job, err := s.repo.GetLatestJob(ctx, userID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return &RefreshStatus{Status: StatusNeverRun}, nil
	}

	// A chained successor is the latest row but has not run yet.
	lastRefresh := job.LastRefreshTime
	if lastRefresh == nil {
		lastRefresh, err = s.repo.GetLastRefreshTime(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	updatedAt := job.UpdatedAt
	return &RefreshStatus{
		Status:            job.Status,
		JobType:           job.JobType,
		LastRefreshTime:   lastRefresh,
		NextScheduledTime: job.NextScheduledTime,
		ErrorMessage:      job.ErrorMessage,
		UpdatedAt:         &updatedAt,
	}, nil
}

// Shutdown stops pending successor scheduling and waits for chains that are
// already scheduling.
func (s *Service) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.chains.Wait()
}

func (s *Service) refreshInFlight(ctx context.Context, userID int64) (bool, error) {
	processing, err := s.repo.GetProcessingJob(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check processing job: %w", err)
	}
	if processing != nil {
		return true, nil
	}

	// A manual job that is queued but not yet picked up counts as in flight.
	pending, err := s.repo.GetPendingJob(ctx, userID, JobTypeManual)
	if err != nil {
		return false, fmt.Errorf("failed to check pending job: %w", err)
	}
	return pending != nil, nil
}

func (s *Service) enqueue(ctx context.Context, job *Job, key string, delay time.Duration) error {
	qjob, err := s.queue.Add(jobName, JobData{JobID: job.ID, UserID: job.UserID, JobType: job.JobType}, queue.Options{
		JobID:    key,
		Delay:    delay,
		Attempts: s.cfg.Attempts,
		Backoff:  queue.Backoff{Type: queue.BackoffExponential, Delay: s.cfg.BackoffBase},
	})
	if err != nil {
		msg := err.Error()
		if uerr := s.repo.UpdateJobStatus(ctx, job.UserID, job.ID, StatusFailed, &msg); uerr != nil {
			s.log.Errorw("Failed to mark unqueued job failed", "jobId", job.ID, "error", uerr)
		}
		return fmt.Errorf("failed to enqueue refresh job: %w", err)
	}

	if err := s.repo.UpdateQueueJobID(ctx, job.ID, qjob.ID); err != nil {
		s.log.Warnw("Failed to record queue job id", "jobId", job.ID, "queueJobId", qjob.ID, "error", err)
	}
	job.QueueJobID = &qjob.ID
	return nil
}

// processJob runs one attempt of a refresh job. Returning an error hands the
// job back to the queue for retry.
func (s *Service) processJob(ctx context.Context, qjob queue.Job[JobData]) (err error) {
	data := qjob.Data
	ctx, span := refreshTracer.Start(ctx, "refresh.processJob", trace.WithAttributes(
		attribute.Int64("refresh.job_id", data.JobID),
		attribute.Int64("refresh.user_id", data.UserID),
		attribute.String("refresh.job_type", string(data.JobType)),
		attribute.Int("refresh.attempt", qjob.AttemptsMade),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := s.repo.UpdateJobStatus(ctx, data.UserID, data.JobID, StatusProcessing, nil); err != nil {
		if errors.Is(err, ErrRefreshInProgress) {
			// Another job holds the user's lease. Record the skip without retrying.
			msg := MsgRefreshInProgress
			if uerr := s.repo.UpdateJobStatus(ctx, data.UserID, data.JobID, StatusFailed, &msg); uerr != nil {
				s.log.Errorw("Failed to record skipped job", "jobId", data.JobID, "error", uerr)
			}
			s.log.Infow("Refresh skipped, another job in progress", "userId", data.UserID, "jobId", data.JobID)
			return nil
		}
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	if syncErr := s.syncUser(ctx, data.UserID); syncErr != nil {
		msg := syncErr.Error()
		if uerr := s.repo.UpdateJobStatus(ctx, data.UserID, data.JobID, StatusFailed, &msg); uerr != nil {
			s.log.Errorw("Failed to mark job failed", "jobId", data.JobID, "error", uerr)
		}
		return syncErr
	}

	if err := s.repo.UpdateJobStatus(ctx, data.UserID, data.JobID, StatusCompleted, nil); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return nil
}

// syncUser runs a pass for each of the user's items. Every item is attempted
// even when an earlier one fails.
func (s *Service) syncUser(ctx context.Context, userID int64) error {
	items, err := s.items.ListByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list items: %w", err)
	}

	var errs []error
	for _, it := range items {
		res, err := s.syncer.SyncItem(ctx, it.PlaidItemID)
		if err != nil {
			errs = append(errs, fmt.Errorf("item %s: %w", it.PlaidItemID, err))
			continue
		}
		s.log.Debugw("Item synced", "userId", userID, "plaidItemId", it.PlaidItemID,
			"added", res.Added, "modified", res.Modified, "removed", res.Removed)
	}
	return errors.Join(errs...)
}

func (s *Service) handleCompleted(qjob queue.Job[JobData]) {
	data := qjob.Data
	refreshJobsTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("job_type", string(data.JobType)), attribute.String("status", "completed")))
	s.log.Infow("Refresh job completed", "userId", data.UserID, "jobId", data.JobID, "jobType", data.JobType)

	if data.JobType == JobTypeScheduled {
		s.chainNext(data.UserID)
	}
}

// handleFailed runs once a job has exhausted its attempts. Scheduled chains
// continue so one bad run does not stop a user's refreshes for good.
func (s *Service) handleFailed(qjob queue.Job[JobData], err error) {
	data := qjob.Data
	refreshJobsTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("job_type", string(data.JobType)), attribute.String("status", "failed")))
	s.log.Errorw("Refresh job failed", "userId", data.UserID, "jobId", data.JobID,
		"jobType", data.JobType, "attempts", qjob.AttemptsMade, "error", err)

	if data.JobType == JobTypeScheduled {
		s.chainNext(data.UserID)
	}
}

// chainNext schedules the user's next run at exactly the interval once the
// settle delay has passed.
func (s *Service) chainNext(userID int64) {
	s.chains.Add(1)
	go func() {
		defer s.chains.Done()

		select {
		case <-time.After(s.cfg.SettleDelay):
		case <-s.stop:
			return
		}

		if _, err := s.ScheduleRefresh(context.Background(), userID, s.cfg.interval()); err != nil {
			s.log.Errorw("Failed to schedule next refresh, chain stopped", "userId", userID, "error", err)
		}
	}()
}
