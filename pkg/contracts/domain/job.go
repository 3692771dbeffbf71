package domain

import (
	"encoding/json"
	"time"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusBlocked    JobStatus = "blocked"
)

// JobPriority orders dequeueing. Higher values run first.
type JobPriority int

const (
	JobPriorityLow JobPriority = iota
	JobPriorityNormal
	JobPriorityHigh
	JobPriorityCritical
)

func (p JobPriority) String() string {
	switch p {
	case JobPriorityLow:
		return "low"
	case JobPriorityNormal:
		return "normal"
	case JobPriorityHigh:
		return "high"
	case JobPriorityCritical:
		return "critical"
	}
	return "unknown"
}

// BlockReason explains why a job was not admitted
type BlockReason string

const (
	BlockNoLicense           BlockReason = "NO_LICENSE"
	BlockLicenseExpired      BlockReason = "LICENSE_EXPIRED"
	BlockLicenseRevoked      BlockReason = "LICENSE_REVOKED"
	BlockLicenseSuspended    BlockReason = "LICENSE_SUSPENDED"
	BlockFeatureNotAvailable BlockReason = "FEATURE_NOT_AVAILABLE"
	BlockRateLimitExceeded   BlockReason = "RATE_LIMIT_EXCEEDED"
	BlockBatchSizeExceeded   BlockReason = "BATCH_SIZE_EXCEEDED"
)

// Job is a unit of licensed work handed to an external processor
type Job struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Status          JobStatus       `json:"status"`
	Priority        JobPriority     `json:"priority"`
	RetryCount      int             `json:"retryCount"`
	MaxRetries      int             `json:"maxRetries"`
	RequiredFeature string          `json:"requiredFeature,omitempty"`
	BatchSize       int             `json:"batchSize,omitempty"`
	BlockReason     BlockReason     `json:"blockReason,omitempty"`
	Error           string          `json:"error,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	StartedAt       *time.Time      `json:"startedAt,omitempty"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	Sequence        uint64          `json:"sequence"`
}
