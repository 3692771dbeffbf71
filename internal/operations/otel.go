package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"licensecore/pkg/contracts/domain"
)

const (
	TracerName = "licensecore/operations"
	MeterName  = "licensecore/operations"
)

// QueueMetrics holds the job queue metrics
type QueueMetrics struct {
	JobsAdded      metric.Int64Counter
	JobsFinished   metric.Int64Counter
	JobsBlocked    metric.Int64Counter
	JobsProcessing metric.Int64UpDownCounter
	JobDuration    metric.Float64Histogram
}

// InitializeQueueMetrics creates the job queue metrics
func InitializeQueueMetrics(meter metric.Meter) (*QueueMetrics, error) {
	m := &QueueMetrics{}
	var err error

	if m.JobsAdded, err = meter.Int64Counter(
		"license_queue_jobs_added_total",
		metric.WithDescription("Total number of jobs added to the queue"),
	); err != nil {
		return nil, fmt.Errorf("failed to create jobs added counter: %w", err)
	}

	if m.JobsFinished, err = meter.Int64Counter(
		"license_queue_jobs_finished_total",
		metric.WithDescription("Total number of processed jobs by terminal status"),
	); err != nil {
		return nil, fmt.Errorf("failed to create jobs finished counter: %w", err)
	}

	if m.JobsBlocked, err = meter.Int64Counter(
		"license_queue_jobs_blocked_total",
		metric.WithDescription("Total number of jobs blocked by reason"),
	); err != nil {
		return nil, fmt.Errorf("failed to create jobs blocked counter: %w", err)
	}

	if m.JobsProcessing, err = meter.Int64UpDownCounter(
		"license_queue_jobs_processing",
		metric.WithDescription("Number of jobs currently processing"),
	); err != nil {
		return nil, fmt.Errorf("failed to create processing gauge: %w", err)
	}

	if m.JobDuration, err = meter.Float64Histogram(
		"license_queue_job_duration_seconds",
		metric.WithDescription("Job processing duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create job duration histogram: %w", err)
	}

	return m, nil
}

// traceJob creates a span for one job execution
func traceJob(ctx context.Context, job *domain.Job) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "queue.process."+job.Type,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.type", job.Type),
			attribute.String("job.priority", job.Priority.String()),
			attribute.Int("job.retry_count", job.RetryCount),
		),
	)
}

func endJobSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (q *JobQueue) recordAdded(ctx context.Context, job *domain.Job) {
	if q.metrics != nil {
		q.metrics.JobsAdded.Add(ctx, 1, metric.WithAttributes(attribute.String("type", job.Type)))
	}
}

func (q *JobQueue) recordBlocked(ctx context.Context, reason domain.BlockReason) {
	if q.metrics != nil {
		q.metrics.JobsBlocked.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
	}
}

func (q *JobQueue) recordProcessing(ctx context.Context, delta int64) {
	if q.metrics != nil {
		q.metrics.JobsProcessing.Add(ctx, delta)
	}
}

func (q *JobQueue) recordFinished(ctx context.Context, status domain.JobStatus, duration time.Duration) {
	if q.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	q.metrics.JobsFinished.Add(ctx, 1, attrs)
	q.metrics.JobDuration.Record(ctx, duration.Seconds(), attrs)
}
