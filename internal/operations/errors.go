package operations

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of queue error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInvalidState ErrorType = "invalid_state"
	ErrorTypeExecution    ErrorType = "execution"
	ErrorTypePanic        ErrorType = "panic"
)

// ErrJobNotFound matches every not-found OperationError through errors.Is
var ErrJobNotFound = &OperationError{Type: ErrorTypeNotFound}

// OperationError represents a queue-specific error
type OperationError struct {
	Type    ErrorType `json:"type"`
	JobID   string    `json:"job_id,omitempty"`
	Message string    `json:"message"`
	Cause   error     `json:"cause,omitempty"`
}

// Error implements the error interface
func (e *OperationError) Error() string {
	if e == nil {
		return "unknown operation error"
	}
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.JobID != "" {
		msg = fmt.Sprintf("[%s] job %s: %s", e.Type, e.JobID, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches errors of the same type
func (e *OperationError) Is(target error) bool {
	var t *OperationError
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return e.Type == t.Type
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *OperationError {
	return &OperationError{Type: ErrorTypeValidation, Message: message, Cause: cause}
}

// NewNotFoundError creates a not-found error for jobID
func NewNotFoundError(jobID string) *OperationError {
	return &OperationError{Type: ErrorTypeNotFound, JobID: jobID, Message: "job not found"}
}

// NewInvalidStateError reports an operation that does not apply to the job's status
func NewInvalidStateError(jobID, message string) *OperationError {
	return &OperationError{Type: ErrorTypeInvalidState, JobID: jobID, Message: message}
}

// NewExecutionError wraps a processor failure
func NewExecutionError(jobID string, cause error) *OperationError {
	return &OperationError{Type: ErrorTypeExecution, JobID: jobID, Message: "job processing failed", Cause: cause}
}

// NewPanicError converts a recovered processor panic
func NewPanicError(jobID string, recovered any) *OperationError {
	return &OperationError{Type: ErrorTypePanic, JobID: jobID, Message: fmt.Sprintf("job processing panicked: %v", recovered)}
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}
