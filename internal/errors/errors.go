package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError represents validation errors
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details any) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Predefined error types for the status API
var (
	ErrInvalidRequest  = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrNotFound        = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrInternalServer  = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
	ErrServiceDisabled = New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
	ErrRateLimited     = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests")
	ErrPayloadTooLarge = New(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body exceeds maximum allowed size")
)

// InvalidRequestWithError creates an invalid request error with details
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// WithTraceID returns a copy of e carrying traceID
func (e *APIError) WithTraceID(traceID string) *APIError {
	c := *e
	c.TraceID = traceID
	return &c
}

// NotFoundError creates a not found error with details
func NotFoundError(resource string) *APIError {
	return NewWithDetails(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource), resource)
}

// statusForCode maps license codes to HTTP status codes
var statusForCode = map[Code]int{
	CodeInvalidLicenseKey:     http.StatusBadRequest,
	CodeLicenseExpired:        http.StatusForbidden,
	CodeLicenseRevoked:        http.StatusForbidden,
	CodeLicenseSuspended:      http.StatusForbidden,
	CodeFingerprintMismatch:   http.StatusForbidden,
	CodeFingerprintError:      http.StatusInternalServerError,
	CodeMaxActivationsReached: http.StatusConflict,
	CodeNetworkError:          http.StatusBadGateway,
	CodeServerError:           http.StatusBadGateway,
	CodeInvalidToken:          http.StatusUnauthorized,
	CodeNoLicenseConfigured:   http.StatusNotFound,
	CodeCacheExpired:          http.StatusForbidden,
}

// FromError converts any error into an APIError. LicenseErrors keep their code.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var le *LicenseError
	if errors.As(err, &le) {
		status, ok := statusForCode[le.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		return New(status, string(le.Code), le.Error())
	}
	return NewWithDetails(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error", err.Error())
}
