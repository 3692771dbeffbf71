package config

import "time"

// Application constants
const (
	AppName    = "licensecore"
	AppVersion = "1.0.0"
	EnvPrefix  = "LICENSECORE"

	// License key wire format: XXXX-XXXX-XXXX-XXXX
	LicenseKeyPattern = "^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$"
	LicenseKeyLength  = 19

	// Tokens
	DefaultTokenIssuer      = "licensecore"
	DefaultTokenAudience    = "licensecore-client"
	DefaultRefreshThreshold = 5 * time.Minute
	MinTokenSecretLength    = 32

	// Network
	DefaultRequestTimeout = 10 * time.Second
	DefaultRetryAttempts  = 3
	DefaultLicenseRPS     = 2
	DefaultLicenseBurst   = 4

	// Background revalidation of the activated license; 0 disables it
	DefaultLicenseCheckInterval = 6 * time.Hour

	// Fingerprint
	DefaultProbeTimeout = 5 * time.Second
	FingerprintCacheTTL = time.Hour

	// Grace
	DefaultGraceCheckInterval = time.Hour
	DefaultGraceWarning       = 48 * time.Hour
	DefaultGraceCritical      = 24 * time.Hour

	// Log Settings
	DefaultLogLevel   = "info"
	MaxLogFileSizeMB  = 100
	MaxLogFileAge     = 30 // days
	MaxLogFileBackups = 10
)
