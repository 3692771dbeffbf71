package errors

import (
	"errors"
	"fmt"
)

// Code is the closed set of license error codes shared by the validator,
// the server client and the HTTP surfaces.
type Code string

const (
	CodeInvalidLicenseKey     Code = "INVALID_LICENSE_KEY"
	CodeLicenseExpired        Code = "LICENSE_EXPIRED"
	CodeLicenseRevoked        Code = "LICENSE_REVOKED"
	CodeLicenseSuspended      Code = "LICENSE_SUSPENDED"
	CodeFingerprintMismatch   Code = "FINGERPRINT_MISMATCH"
	CodeFingerprintError      Code = "FINGERPRINT_ERROR"
	CodeMaxActivationsReached Code = "MAX_ACTIVATIONS_REACHED"
	CodeNetworkError          Code = "NETWORK_ERROR"
	CodeServerError           Code = "SERVER_ERROR"
	CodeInvalidToken          Code = "INVALID_TOKEN"
	CodeNoLicenseConfigured   Code = "NO_LICENSE_CONFIGURED"
	CodeCacheExpired          Code = "CACHE_EXPIRED"
)

var knownCodes = map[Code]string{
	CodeInvalidLicenseKey:     "The license key is invalid or malformed",
	CodeLicenseExpired:        "The license has expired",
	CodeLicenseRevoked:        "The license has been revoked",
	CodeLicenseSuspended:      "The license is suspended",
	CodeFingerprintMismatch:   "The license is bound to a different device",
	CodeFingerprintError:      "The device fingerprint could not be determined",
	CodeMaxActivationsReached: "The license has reached its activation limit",
	CodeNetworkError:          "Unable to reach the license server",
	CodeServerError:           "The license server failed to process the request",
	CodeInvalidToken:          "The license token is invalid",
	CodeNoLicenseConfigured:   "No license has been activated on this device",
	CodeCacheExpired:          "The offline validation window has elapsed",
}

// ParseCode maps a wire error code to a Code. Unknown codes map to SERVER_ERROR.
func ParseCode(s string) Code {
	c := Code(s)
	if _, ok := knownCodes[c]; ok {
		return c
	}
	return CodeServerError
}

// Message returns the default human readable message for the code
func (c Code) Message() string {
	if msg, ok := knownCodes[c]; ok {
		return msg
	}
	return string(c)
}

// IsNetworkClass reports whether the code describes a transport failure rather
// than a business decision by the server. Only these trigger offline fallback.
func (c Code) IsNetworkClass() bool {
	return c == CodeNetworkError || c == CodeServerError
}

// LicenseError carries a Code plus optional cause
type LicenseError struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface
func (e *LicenseError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.Message()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause
func (e *LicenseError) Unwrap() error {
	return e.Err
}

// Is matches another LicenseError with the same code, so sentinels work with errors.Is
func (e *LicenseError) Is(target error) bool {
	var t *LicenseError
	if errors.As(target, &t) {
		return t.Code == e.Code && t.Message == "" && t.Err == nil
	}
	return false
}

// NewLicenseError creates a LicenseError with a custom message
func NewLicenseError(code Code, message string) *LicenseError {
	return &LicenseError{Code: code, Message: message}
}

// WrapLicenseError creates a LicenseError around a cause
func WrapLicenseError(code Code, err error) *LicenseError {
	return &LicenseError{Code: code, Err: err}
}

// CodeOf extracts the Code from err, or "" when err is not a LicenseError
func CodeOf(err error) Code {
	var le *LicenseError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// Sentinels for errors.Is comparisons
var (
	ErrInvalidLicenseKey     = &LicenseError{Code: CodeInvalidLicenseKey}
	ErrLicenseExpired        = &LicenseError{Code: CodeLicenseExpired}
	ErrLicenseRevoked        = &LicenseError{Code: CodeLicenseRevoked}
	ErrLicenseSuspended      = &LicenseError{Code: CodeLicenseSuspended}
	ErrFingerprintMismatch   = &LicenseError{Code: CodeFingerprintMismatch}
	ErrFingerprintError      = &LicenseError{Code: CodeFingerprintError}
	ErrMaxActivationsReached = &LicenseError{Code: CodeMaxActivationsReached}
	ErrNetwork               = &LicenseError{Code: CodeNetworkError}
	ErrServer                = &LicenseError{Code: CodeServerError}
	ErrInvalidToken          = &LicenseError{Code: CodeInvalidToken}
	ErrNoLicenseConfigured   = &LicenseError{Code: CodeNoLicenseConfigured}
	ErrCacheExpired          = &LicenseError{Code: CodeCacheExpired}
)
