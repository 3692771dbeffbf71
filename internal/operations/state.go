package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"licensecore/internal/storage"
	"licensecore/pkg/contracts/domain"
)

// SaveSnapshot writes every job and the sequence counter to the store
func (q *JobQueue) SaveSnapshot(ctx context.Context) error {
	if q.store == nil {
		return nil
	}

	q.mu.Lock()
	snap := snapshot{
		Jobs:     q.jobs.ListJobs(JobFilter{}),
		Sequence: q.sequence,
		SavedAt:  q.now(),
	}
	q.mu.Unlock()

	if err := storage.PutJSON(ctx, q.store, storage.KeyQueueSnapshot, snap); err != nil {
		return fmt.Errorf("failed to save queue snapshot: %w", err)
	}
	return nil
}

// Restore loads the last snapshot. Jobs that were processing when it was
// taken come back as pending; nothing ran them to completion.
func (q *JobQueue) Restore(ctx context.Context) error {
	if q.store == nil {
		return nil
	}

	var snap snapshot
	if err := storage.GetJSON(ctx, q.store, storage.KeyQueueSnapshot, &snap); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to restore queue snapshot: %w", err)
	}

	q.mu.Lock()
	recovered := 0
	for _, job := range snap.Jobs {
		if job == nil || job.ID == "" {
			continue
		}
		if job.Status == domain.JobStatusProcessing {
			job.Status = domain.JobStatusPending
			job.StartedAt = nil
			recovered++
		}
		if err := q.jobs.CreateJob(job); err != nil {
			_ = q.jobs.UpdateJob(job)
		}
		if job.Sequence > q.sequence {
			q.sequence = job.Sequence
		}
	}
	if snap.Sequence > q.sequence {
		q.sequence = snap.Sequence
	}
	q.mu.Unlock()

	q.logger.InfoContext(ctx, "restored job queue",
		slog.Int("jobs", len(snap.Jobs)),
		slog.Int("recovered_processing", recovered))
	q.signal()
	return nil
}

// persist saves a snapshot, logging instead of returning failures
func (q *JobQueue) persist(ctx context.Context) {
	if err := q.SaveSnapshot(ctx); err != nil {
		q.logger.WarnContext(ctx, "failed to persist job queue", slog.String("error", err.Error()))
	}
}
