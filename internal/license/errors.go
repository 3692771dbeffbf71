package license

import (
	"errors"

	licenseErrors "licensecore/internal/errors"
	"licensecore/internal/token"
)

// serverFailure normalizes an error returned by the ServerClient. Errors that
// already carry a code keep it; anything else is a transport failure.
func serverFailure(err error) *licenseErrors.LicenseError {
	var le *licenseErrors.LicenseError
	if errors.As(err, &le) {
		return le
	}
	return licenseErrors.WrapLicenseError(licenseErrors.CodeNetworkError, err)
}

// rejection converts a response errorCode into a LicenseError. A failed
// response without a code is treated as a server fault.
func rejection(code, message string) *licenseErrors.LicenseError {
	return licenseErrors.NewLicenseError(licenseErrors.ParseCode(code), message)
}

// clearsCache reports whether a server rejection must invalidate the cached
// validation so a later outage cannot revive the license.
func clearsCache(code licenseErrors.Code) bool {
	switch code {
	case licenseErrors.CodeLicenseExpired,
		licenseErrors.CodeLicenseRevoked,
		licenseErrors.CodeLicenseSuspended,
		licenseErrors.CodeFingerprintMismatch:
		return true
	}
	return false
}

// tokenFailure maps a token validation error onto the license error codes
func tokenFailure(err error) *licenseErrors.LicenseError {
	if token.CodeOf(err) == token.CodeFingerprintMismatch {
		return licenseErrors.WrapLicenseError(licenseErrors.CodeFingerprintMismatch, err)
	}
	return licenseErrors.WrapLicenseError(licenseErrors.CodeInvalidToken, err)
}
