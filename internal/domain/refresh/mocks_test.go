package refresh

import (
	"context"
	"sync"
	"time"

	"spendsync/internal/domain/item"
	"spendsync/internal/domain/plaidsync"
	"spendsync/internal/infrastructure/queue"
)

// memRepo mirrors the refresh_jobs table, including its per-user processing
// and pending-manual unique indexes.
type memRepo struct {
	mu        sync.Mutex
	nextID    int64
	jobs      map[int64]*Job
	history   map[int64][]Status
	createErr map[int64]error
	resets    int
}

func newMemRepo() *memRepo {
	return &memRepo{
		jobs:      map[int64]*Job{},
		history:   map[int64][]Status{},
		createErr: map[int64]error{},
	}
}

func (r *memRepo) CreateJob(ctx context.Context, userID int64, jobType JobType) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.createErr[userID]; err != nil {
		return nil, err
	}
	if jobType == JobTypeManual {
		for _, other := range r.jobs {
			if other.UserID == userID && other.JobType == JobTypeManual && other.Status == StatusPending {
				return nil, ErrRefreshInProgress
			}
		}
	}
	r.nextID++
	now := time.Now()
	job := &Job{ID: r.nextID, UserID: userID, Status: StatusPending, JobType: jobType, CreatedAt: now, UpdatedAt: now}
	r.jobs[job.ID] = job
	r.history[job.ID] = []Status{StatusPending}
	cp := *job
	return &cp, nil
}

func (r *memRepo) UpdateJobStatus(ctx context.Context, userID, jobID int64, status Status, errorMessage *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || job.UserID != userID {
		return ErrJobNotFound
	}
	if status == StatusProcessing {
		for _, other := range r.jobs {
			if other.ID != jobID && other.UserID == userID && other.Status == StatusProcessing {
				return ErrRefreshInProgress
			}
		}
	}
	job.Status = status
	job.ErrorMessage = errorMessage
	job.UpdatedAt = time.Now()
	if status == StatusCompleted {
		now := time.Now()
		job.LastRefreshTime = &now
	}
	r.history[jobID] = append(r.history[jobID], status)
	return nil
}

func (r *memRepo) UpdateQueueJobID(ctx context.Context, jobID int64, queueJobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[jobID].QueueJobID = &queueJobID
	return nil
}

func (r *memRepo) GetProcessingJob(ctx context.Context, userID int64) (*Job, error) {
	return r.find(func(j *Job) bool { return j.UserID == userID && j.Status == StatusProcessing }), nil
}

func (r *memRepo) GetPendingJob(ctx context.Context, userID int64, jobType JobType) (*Job, error) {
	return r.find(func(j *Job) bool {
		return j.UserID == userID && j.Status == StatusPending && j.JobType == jobType
	}), nil
}

func (r *memRepo) GetLatestJob(ctx context.Context, userID int64) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *Job
	for _, j := range r.jobs {
		if j.UserID == userID && (latest == nil || j.ID > latest.ID) {
			latest = j
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *memRepo) GetLastRefreshTime(ctx context.Context, userID int64) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *time.Time
	for _, j := range r.jobs {
		if j.UserID != userID || j.Status != StatusCompleted || j.LastRefreshTime == nil {
			continue
		}
		if last == nil || j.LastRefreshTime.After(*last) {
			t := *j.LastRefreshTime
			last = &t
		}
	}
	return last, nil
}

func (r *memRepo) UpdateNextScheduledTime(ctx context.Context, jobID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[jobID].NextScheduledTime = &at
	return nil
}

func (r *memRepo) ResetInterrupted(ctx context.Context, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	var n int64
	for _, j := range r.jobs {
		if !j.Status.IsTerminal() {
			j.Status = StatusFailed
			j.ErrorMessage = &reason
			n++
		}
	}
	return n, nil
}

func (r *memRepo) find(match func(*Job) bool) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *Job
	for _, j := range r.jobs {
		if match(j) && (found == nil || j.ID < found.ID) {
			found = j
		}
	}
	if found == nil {
		return nil
	}
	cp := *found
	return &cp
}

func (r *memRepo) job(id int64) Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.jobs[id]
}

func (r *memRepo) statuses(id int64) []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.history[id]...)
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

type MockUserLister struct {
	ListUserIDsFunc func(ctx context.Context) ([]int64, error)
}

func (m *MockUserLister) ListUserIDs(ctx context.Context) ([]int64, error) {
	if m.ListUserIDsFunc != nil {
		return m.ListUserIDsFunc(ctx)
	}
	return nil, nil
}

func usersOf(ids ...int64) *MockUserLister {
	return &MockUserLister{ListUserIDsFunc: func(ctx context.Context) ([]int64, error) { return ids, nil }}
}

type MockItemLookup struct {
	GetByPlaidItemIDFunc func(ctx context.Context, plaidItemID string) (*item.Item, error)
	ListByUserIDFunc     func(ctx context.Context, userID int64) ([]*item.Item, error)
}

func (m *MockItemLookup) GetByPlaidItemID(ctx context.Context, plaidItemID string) (*item.Item, error) {
	if m.GetByPlaidItemIDFunc != nil {
		return m.GetByPlaidItemIDFunc(ctx, plaidItemID)
	}
	return nil, nil
}

func (m *MockItemLookup) ListByUserID(ctx context.Context, userID int64) ([]*item.Item, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return []*item.Item{{ID: 1, UserID: userID, PlaidItemID: "item-a"}, {ID: 2, UserID: userID, PlaidItemID: "item-b"}}, nil
}

type MockSyncer struct {
	SyncItemFunc func(ctx context.Context, plaidItemID string) (*plaidsync.Result, error)

	mu     sync.Mutex
	synced []string
}

func (m *MockSyncer) SyncItem(ctx context.Context, plaidItemID string) (*plaidsync.Result, error) {
	m.mu.Lock()
	m.synced = append(m.synced, plaidItemID)
	m.mu.Unlock()
	if m.SyncItemFunc != nil {
		return m.SyncItemFunc(ctx, plaidItemID)
	}
	return &plaidsync.Result{Added: 1}, nil
}

func (m *MockSyncer) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.synced...)
}

type addCall struct {
	Name string
	Data JobData
	Opts queue.Options
}

// recordingQueue captures enqueued jobs and registered handlers without
// running anything.
type recordingQueue struct {
	mu          sync.Mutex
	adds        []addCall
	addErr      error
	obliterated int
	handler     queue.Handler[JobData]
	onCompleted func(queue.Job[JobData])
	onFailed    func(queue.Job[JobData], error)
}

func (q *recordingQueue) Add(name string, data JobData, opts queue.Options) (queue.Job[JobData], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.addErr != nil {
		return queue.Job[JobData]{}, q.addErr
	}
	q.adds = append(q.adds, addCall{Name: name, Data: data, Opts: opts})
	return queue.Job[JobData]{ID: opts.JobID, Name: name, Data: data, Opts: opts}, nil
}

func (q *recordingQueue) Process(handler queue.Handler[JobData]) { q.handler = handler }

func (q *recordingQueue) OnCompleted(fn func(job queue.Job[JobData])) { q.onCompleted = fn }

func (q *recordingQueue) OnFailed(fn func(job queue.Job[JobData], err error)) { q.onFailed = fn }

func (q *recordingQueue) Obliterate() error {
	q.obliterated++
	return nil
}

func (q *recordingQueue) added() []addCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]addCall(nil), q.adds...)
}
