package operations

import (
	"context"
	"encoding/json"
	"time"

	"licensecore/internal/grace"
	"licensecore/pkg/contracts/domain"
)

// Processor performs the work of a job. A returned error or a panic marks the
// job failed; neither reaches the queue or other jobs.
type Processor interface {
	Process(ctx context.Context, job *domain.Job) error
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(ctx context.Context, job *domain.Job) error

// Process calls f
func (f ProcessorFunc) Process(ctx context.Context, job *domain.Job) error {
	return f(ctx, job)
}

// GraceStatusProvider reports the offline grace period. An expired grace
// period blocks jobs like an expired license.
type GraceStatusProvider interface {
	GetStatus() grace.Status
}

// AddJobRequest describes a job to enqueue
type AddJobRequest struct {
	Type            string             `json:"type" validate:"required,max=64"`
	Priority        domain.JobPriority `json:"priority" validate:"min=0,max=3"`
	RequiredFeature string             `json:"requiredFeature,omitempty" validate:"omitempty,max=64"`
	BatchSize       int                `json:"batchSize,omitempty" validate:"min=0"`
	MaxRetries      *int               `json:"maxRetries,omitempty" validate:"omitempty,min=0,max=100"`
	Payload         json.RawMessage    `json:"payload,omitempty"`
}

// JobFilter for querying jobs
type JobFilter struct {
	Status domain.JobStatus
	Type   string
	Since  time.Time
	Limit  int
}

// Statistics summarizes the queue
type Statistics struct {
	Total             int                        `json:"total"`
	Pending           int                        `json:"pending"`
	Processing        int                        `json:"processing"`
	Completed         int                        `json:"completed"`
	Failed            int                        `json:"failed"`
	Blocked           int                        `json:"blocked"`
	BlockedByReason   map[domain.BlockReason]int `json:"blockedByReason"`
	MaxConcurrentJobs int                        `json:"maxConcurrentJobs"`
	LicenseType       domain.LicenseType         `json:"licenseType,omitempty"`
}

// EventType identifies a queue notification
type EventType string

const (
	EventJobAdded       EventType = "JOB_ADDED"
	EventJobStarted     EventType = "JOB_STARTED"
	EventJobBlocked     EventType = "JOB_BLOCKED"
	EventJobCompleted   EventType = "JOB_COMPLETED"
	EventJobFailed      EventType = "JOB_FAILED"
	EventLicenseChecked EventType = "LICENSE_CHECKED"
	EventLicenseChanged EventType = "LICENSE_CHANGED"
	EventQueueCleared   EventType = "QUEUE_CLEARED"
)

// Event is delivered to listeners after the queue changed.
// Reason is set for JOB_BLOCKED and for a failed LICENSE_CHECKED.
type Event struct {
	Type    EventType          `json:"type"`
	Job     *domain.Job        `json:"job,omitempty"`
	Reason  domain.BlockReason `json:"reason,omitempty"`
	License *domain.License    `json:"license,omitempty"`
	Count   int                `json:"count,omitempty"`
	At      time.Time          `json:"at"`
}

// Listener receives queue events
type Listener func(Event)

// snapshot is the persisted form of the queue
type snapshot struct {
	Jobs     []*domain.Job `json:"jobs"`
	Sequence uint64        `json:"sequence"`
	SavedAt  time.Time     `json:"savedAt"`
}
