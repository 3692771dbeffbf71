package operations

import (
	"context"
	"log/slog"
	"time"

	"licensecore/pkg/contracts/domain"
)

func jobAttrs(job *domain.Job) []slog.Attr {
	return []slog.Attr{
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
		slog.String("priority", job.Priority.String()),
	}
}

// logJobStart logs the start of a job execution
func (q *JobQueue) logJobStart(ctx context.Context, job *domain.Job) {
	q.logger.LogAttrs(ctx, slog.LevelInfo, "job_start",
		append(jobAttrs(job), slog.Int("retry_count", job.RetryCount))...)
}

// logJobComplete logs the completion of a job execution
func (q *JobQueue) logJobComplete(ctx context.Context, job *domain.Job, duration time.Duration) {
	q.logger.LogAttrs(ctx, slog.LevelInfo, "job_complete",
		append(jobAttrs(job), slog.Duration("duration", duration))...)
}

// logJobError logs a failed job
func (q *JobQueue) logJobError(ctx context.Context, job *domain.Job, err error) {
	errorMsg := "unknown error"
	if err != nil {
		errorMsg = err.Error()
	}
	q.logger.LogAttrs(ctx, slog.LevelError, "job_error",
		append(jobAttrs(job),
			slog.String("error", errorMsg),
			slog.Int("retry_count", job.RetryCount),
			slog.Int("max_retries", job.MaxRetries))...)
}

// logJobBlocked logs a job refused by the license check
func (q *JobQueue) logJobBlocked(ctx context.Context, job *domain.Job, reason domain.BlockReason) {
	q.logger.LogAttrs(ctx, slog.LevelWarn, "job_blocked",
		append(jobAttrs(job),
			slog.String("reason", string(reason)),
			slog.String("required_feature", job.RequiredFeature))...)
}
