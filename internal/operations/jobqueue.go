package operations

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"licensecore/internal/config"
	"licensecore/internal/infrastructure"
	"licensecore/internal/storage"
	"licensecore/pkg/contracts/domain"
)

// JobQueue admits jobs only when the current license allows them. Admission,
// dequeue order and the processing count share one mutex, so ProcessNextJob
// may be called from any number of goroutines.
type JobQueue struct {
	jobs              *MemoryJobStore
	processor         Processor
	grace             GraceStatusProvider
	store             storage.Store
	metrics           *QueueMetrics
	logger            *slog.Logger
	now               func() time.Time
	validate          *validator.Validate
	defaultMaxRetries int
	pollInterval      time.Duration
	wake              chan struct{}

	mu         sync.Mutex
	license    *domain.License
	processing int
	sequence   uint64

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

// Option configures a JobQueue
type Option func(*JobQueue)

// WithLicense sets the initial license
func WithLicense(lic *domain.License) Option {
	return func(q *JobQueue) { q.license = lic.Clone() }
}

// WithGraceStatus blocks jobs once the offline grace period has expired
func WithGraceStatus(p GraceStatusProvider) Option {
	return func(q *JobQueue) { q.grace = p }
}

// WithStore persists queue snapshots
func WithStore(s storage.Store) Option {
	return func(q *JobQueue) { q.store = s }
}

// WithMetrics records queue metrics
func WithMetrics(m *QueueMetrics) Option {
	return func(q *JobQueue) { q.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(q *JobQueue) { q.logger = l }
}

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(q *JobQueue) { q.now = now }
}

// NewJobQueue creates a queue that hands admitted jobs to processor
func NewJobQueue(processor Processor, cfg config.QueueConfig, opts ...Option) *JobQueue {
	q := &JobQueue{
		jobs:              NewMemoryJobStore(),
		processor:         processor,
		now:               time.Now,
		validate:          validator.New(),
		defaultMaxRetries: cfg.DefaultMaxRetries,
		pollInterval:      cfg.PollInterval,
		wake:              make(chan struct{}, 1),
		listeners:         make(map[int]Listener),
	}
	if q.pollInterval <= 0 {
		q.pollInterval = time.Second
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.processor == nil {
		q.processor = ProcessorFunc(func(context.Context, *domain.Job) error {
			return errors.New("no processor configured")
		})
	}
	q.logger = infrastructure.WithComponent(q.logger, "jobqueue")
	return q
}

// AddJob validates req and enqueues a pending job
func (q *JobQueue) AddJob(ctx context.Context, req AddJobRequest) (*domain.Job, error) {
	if err := q.validate.Struct(req); err != nil {
		return nil, NewValidationError("invalid job request", err)
	}

	maxRetries := q.defaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	q.mu.Lock()
	q.sequence++
	job := &domain.Job{
		ID:              uuid.NewString(),
		Type:            req.Type,
		Status:          domain.JobStatusPending,
		Priority:        req.Priority,
		MaxRetries:      maxRetries,
		RequiredFeature: req.RequiredFeature,
		BatchSize:       req.BatchSize,
		Payload:         req.Payload,
		CreatedAt:       q.now(),
		Sequence:        q.sequence,
	}
	err := q.jobs.CreateJob(job)
	q.mu.Unlock()
	if err != nil {
		return nil, err
	}

	q.logger.InfoContext(ctx, "job enqueued",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
		slog.String("priority", job.Priority.String()))
	q.recordAdded(ctx, job)
	q.persist(ctx)
	q.emit(Event{Type: EventJobAdded, Job: copyJob(job)})
	q.signal()
	return copyJob(job), nil
}

// ProcessNextJob takes the next pending job, checks it against the license and
// either blocks it or runs it to completion. It returns the job in its final
// state, or nil when nothing is pending.
func (q *JobQueue) ProcessNextJob(ctx context.Context) *domain.Job {
	q.mu.Lock()
	job := q.jobs.NextPending()
	if job == nil {
		q.mu.Unlock()
		return nil
	}
	lic := q.license.Clone()
	reason := q.admit(job, lic)
	if reason != "" {
		job.Status = domain.JobStatusBlocked
		job.BlockReason = reason
		q.update(ctx, job)
		q.mu.Unlock()

		q.emit(Event{Type: EventLicenseChecked, Job: copyJob(job), Reason: reason, License: lic})
		q.logJobBlocked(ctx, job, reason)
		q.recordBlocked(ctx, reason)
		q.persist(ctx)
		q.emit(Event{Type: EventJobBlocked, Job: copyJob(job), Reason: reason})
		return job
	}

	started := q.now()
	job.Status = domain.JobStatusProcessing
	job.StartedAt = &started
	job.BlockReason = ""
	job.Error = ""
	q.update(ctx, job)
	q.processing++
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.processing--
		q.mu.Unlock()
		q.recordProcessing(ctx, -1)
	}()
	q.recordProcessing(ctx, 1)

	q.emit(Event{Type: EventLicenseChecked, Job: copyJob(job), License: lic})
	q.logJobStart(ctx, job)
	q.emit(Event{Type: EventJobStarted, Job: copyJob(job)})

	err := q.execute(ctx, job)

	completed := q.now()
	duration := completed.Sub(started)
	job.CompletedAt = &completed
	if err != nil {
		job.Status = domain.JobStatusFailed
		job.RetryCount++
		job.Error = err.Error()
	} else {
		job.Status = domain.JobStatusCompleted
	}

	q.mu.Lock()
	q.update(ctx, job)
	q.mu.Unlock()
	q.recordFinished(ctx, job.Status, duration)
	q.persist(ctx)

	if err != nil {
		q.logJobError(ctx, job, err)
		q.emit(Event{Type: EventJobFailed, Job: copyJob(job)})
	} else {
		q.logJobComplete(ctx, job, duration)
		q.emit(Event{Type: EventJobCompleted, Job: copyJob(job)})
	}
	return job
}

// admit returns the reason job may not start, or "" when it may. Callers
// hold q.mu.
func (q *JobQueue) admit(job *domain.Job, lic *domain.License) domain.BlockReason {
	if lic == nil {
		return domain.BlockNoLicense
	}
	if lic.Status == domain.LicenseStatusExpired || lic.IsExpiredAt(q.now()) {
		return domain.BlockLicenseExpired
	}
	if q.grace != nil {
		if s := q.grace.GetStatus(); s.IsOffline && !s.IsValid {
			return domain.BlockLicenseExpired
		}
	}
	switch lic.Status {
	case domain.LicenseStatusRevoked:
		return domain.BlockLicenseRevoked
	case domain.LicenseStatusSuspended:
		return domain.BlockLicenseSuspended
	}
	if job.RequiredFeature != "" && !lic.HasFeature(job.RequiredFeature) {
		return domain.BlockFeatureNotAvailable
	}

	limits := domain.LimitsFor(lic.Type)
	if limits.MaxBatchSize != domain.Unlimited && job.BatchSize > limits.MaxBatchSize {
		return domain.BlockBatchSizeExceeded
	}
	if limits.MaxConcurrentJobs != domain.Unlimited && q.processing >= limits.MaxConcurrentJobs {
		return domain.BlockRateLimitExceeded
	}
	return ""
}

// execute runs the processor, converting a panic into an error
func (q *JobQueue) execute(ctx context.Context, job *domain.Job) (err error) {
	ctx, span := traceJob(ctx, job)
	defer func() {
		if r := recover(); r != nil {
			q.logger.ErrorContext(ctx, "job processing panicked",
				slog.String("job_id", job.ID),
				slog.Any("panic", r))
			err = NewPanicError(job.ID, r)
		}
		endJobSpan(span, err)
	}()

	if perr := q.processor.Process(ctx, copyJob(job)); perr != nil {
		return NewExecutionError(job.ID, perr)
	}
	return nil
}

// update writes job back to the store. Callers hold q.mu.
func (q *JobQueue) update(ctx context.Context, job *domain.Job) {
	if err := q.jobs.UpdateJob(job); err != nil {
		q.logger.WarnContext(ctx, "failed to update job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}
}

// RetryFailedJobs returns failed jobs with retries left to pending. Jobs keep
// their original sequence, so they run ahead of later jobs of equal priority.
func (q *JobQueue) RetryFailedJobs(ctx context.Context) int {
	q.mu.Lock()
	retried := 0
	for _, job := range q.jobs.ListJobs(JobFilter{Status: domain.JobStatusFailed}) {
		if job.RetryCount >= job.MaxRetries {
			continue
		}
		resetToPending(job)
		q.update(ctx, job)
		retried++
	}
	q.mu.Unlock()

	if retried > 0 {
		q.logger.InfoContext(ctx, "retrying failed jobs", slog.Int("count", retried))
		q.persist(ctx)
		q.signal()
	}
	return retried
}

// RetryBlockedJob returns a blocked job to pending for another license check
func (q *JobQueue) RetryBlockedJob(ctx context.Context, id string) error {
	q.mu.Lock()
	job, err := q.jobs.GetJob(id)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	if job.Status != domain.JobStatusBlocked {
		q.mu.Unlock()
		return NewInvalidStateError(id, "job is "+string(job.Status)+", not blocked")
	}
	resetToPending(job)
	q.update(ctx, job)
	q.mu.Unlock()

	q.persist(ctx)
	q.signal()
	return nil
}

func resetToPending(job *domain.Job) {
	job.Status = domain.JobStatusPending
	job.BlockReason = ""
	job.Error = ""
	job.StartedAt = nil
	job.CompletedAt = nil
}

// ClearQueue removes every job that is not processing and returns the count
func (q *JobQueue) ClearQueue(ctx context.Context) int {
	q.mu.Lock()
	removed := 0
	for _, job := range q.jobs.ListJobs(JobFilter{}) {
		if job.Status == domain.JobStatusProcessing {
			continue
		}
		if err := q.jobs.DeleteJob(job.ID); err == nil {
			removed++
		}
	}
	q.mu.Unlock()

	q.logger.InfoContext(ctx, "queue cleared", slog.Int("removed", removed))
	q.persist(ctx)
	q.emit(Event{Type: EventQueueCleared, Count: removed})
	return removed
}

// GetJob retrieves a job by ID
func (q *JobQueue) GetJob(id string) (*domain.Job, error) {
	return q.jobs.GetJob(id)
}

// ListJobs returns jobs matching the filter in dequeue order
func (q *JobQueue) ListJobs(filter JobFilter) []*domain.Job {
	return q.jobs.ListJobs(filter)
}

// GetStatistics summarizes the queue against the current license
func (q *JobQueue) GetStatistics() Statistics {
	q.mu.Lock()
	lic := q.license.Clone()
	processing := q.processing
	q.mu.Unlock()

	stats := Statistics{BlockedByReason: make(map[domain.BlockReason]int)}
	for _, job := range q.jobs.ListJobs(JobFilter{}) {
		stats.Total++
		switch job.Status {
		case domain.JobStatusPending:
			stats.Pending++
		case domain.JobStatusCompleted:
			stats.Completed++
		case domain.JobStatusFailed:
			stats.Failed++
		case domain.JobStatusBlocked:
			stats.Blocked++
			stats.BlockedByReason[job.BlockReason]++
		}
	}
	stats.Processing = processing
	if lic != nil {
		stats.LicenseType = lic.Type
		stats.MaxConcurrentJobs = domain.LimitsFor(lic.Type).MaxConcurrentJobs
	}
	return stats
}

// UpdateLicense replaces the license jobs are checked against. A nil license
// blocks every later job with NO_LICENSE.
func (q *JobQueue) UpdateLicense(ctx context.Context, lic *domain.License) {
	q.mu.Lock()
	q.license = lic.Clone()
	q.mu.Unlock()

	attrs := []slog.Attr{slog.Bool("licensed", lic != nil)}
	if lic != nil {
		attrs = append(attrs, slog.String("license_type", string(lic.Type)), slog.String("status", string(lic.Status)))
	}
	q.logger.LogAttrs(ctx, slog.LevelInfo, "license changed", attrs...)
	q.emit(Event{Type: EventLicenseChanged, License: lic.Clone()})
	q.signal()
}

// License returns a copy of the current license
func (q *JobQueue) License() *domain.License {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.license.Clone()
}

// Run processes jobs with the given number of workers until ctx is done
func (q *JobQueue) Run(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	q.logger.InfoContext(ctx, "starting job queue", slog.Int("workers", workers))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			q.worker(ctx, workerID)
			return nil
		})
	}
	err := g.Wait()
	q.logger.Info("job queue stopped")
	return err
}

// worker processes jobs until ctx is done, sleeping when nothing is pending
func (q *JobQueue) worker(ctx context.Context, workerID int) {
	logger := q.logger.With(slog.Int("worker_id", workerID))
	logger.Debug("worker started")

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			logger.Debug("worker stopped by context")
			return
		}
		if job := q.ProcessNextJob(ctx); job != nil {
			continue
		}
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-q.wake:
		case <-ticker.C:
		}
	}
}

func (q *JobQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Subscribe registers l and returns a function that removes it
func (q *JobQueue) Subscribe(l Listener) func() {
	q.listenersMu.Lock()
	id := q.nextID
	q.nextID++
	q.listeners[id] = l
	q.listenersMu.Unlock()

	return func() {
		q.listenersMu.Lock()
		delete(q.listeners, id)
		q.listenersMu.Unlock()
	}
}

// emit calls every listener. A panicking listener is logged and skipped.
func (q *JobQueue) emit(ev Event) {
	ev.At = q.now()

	q.listenersMu.RLock()
	listeners := make([]Listener, 0, len(q.listeners))
	for _, l := range q.listeners {
		listeners = append(listeners, l)
	}
	q.listenersMu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					q.logger.Error("queue listener panicked",
						slog.String("event", string(ev.Type)),
						slog.Any("panic", r))
				}
			}()
			l(ev)
		}()
	}
}
