// Package operations provides the license-aware job queue.
//
// Jobs are added as pending and handed to a Processor one at a time by
// ProcessNextJob. Before a job starts, the queue checks it against the
// current license in a fixed order:
//
//   - no license: NO_LICENSE
//   - expired by status, date, or an expired offline grace period: LICENSE_EXPIRED
//   - revoked or suspended: LICENSE_REVOKED, LICENSE_SUSPENDED
//   - required feature missing: FEATURE_NOT_AVAILABLE
//   - batch larger than the tier allows: BATCH_SIZE_EXCEEDED
//   - tier concurrency ceiling reached: RATE_LIMIT_EXCEEDED
//
// A failed check moves the job to blocked with that reason; it is not
// requeued. RetryBlockedJob puts it back once the situation changed.
//
// Pending jobs run highest priority first and in insertion order within a
// priority. Processor errors and panics mark the job failed and increment its
// retry count; RetryFailedJobs returns jobs with retries left to pending.
//
// Example usage:
//
//	queue := operations.NewJobQueue(processor, cfg.Queue,
//		operations.WithLicense(lic),
//		operations.WithGraceStatus(graceManager))
//	job, err := queue.AddJob(ctx, operations.AddJobRequest{Type: "export", RequiredFeature: "export"})
//	go queue.Run(ctx, cfg.Queue.Workers)
package operations
