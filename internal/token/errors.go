package token

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the first check a token failed
type ErrorCode string

const (
	CodeInvalidFormat       ErrorCode = "INVALID_FORMAT"
	CodeDecodeError         ErrorCode = "DECODE_ERROR"
	CodeInvalidSignature    ErrorCode = "INVALID_SIGNATURE"
	CodeInvalidIssuer       ErrorCode = "INVALID_ISSUER"
	CodeInvalidAudience     ErrorCode = "INVALID_AUDIENCE"
	CodeNotYetValid         ErrorCode = "TOKEN_NOT_YET_VALID"
	CodeExpired             ErrorCode = "TOKEN_EXPIRED"
	CodeFingerprintMismatch ErrorCode = "FINGERPRINT_MISMATCH"
)

// ValidationError carries exactly one ErrorCode
type ValidationError struct {
	Code   ErrorCode
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, detail string) *ValidationError {
	return &ValidationError{Code: code, Detail: detail}
}

func wrapError(code ErrorCode, detail string, err error) *ValidationError {
	return &ValidationError{Code: code, Detail: detail, Err: err}
}

// CodeOf returns the ErrorCode of err, or "" when err is not a *ValidationError
func CodeOf(err error) ErrorCode {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
