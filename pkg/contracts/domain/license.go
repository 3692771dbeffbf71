// Package domain contains the core domain models for the license core.
// These types serve as the Single Source of Truth (SSOT) for all layers of the application.
package domain

import (
	"math"
	"slices"
	"time"
)

// LicenseType represents the purchased tier of a license
type LicenseType string

const (
	LicenseTypeTrial        LicenseType = "trial"
	LicenseTypeStandard     LicenseType = "standard"
	LicenseTypeProfessional LicenseType = "professional"
	LicenseTypeEnterprise   LicenseType = "enterprise"
)

// Valid reports whether t is one of the known tiers
func (t LicenseType) Valid() bool {
	switch t {
	case LicenseTypeTrial, LicenseTypeStandard, LicenseTypeProfessional, LicenseTypeEnterprise:
		return true
	}
	return false
}

// LicenseStatus represents the status of a license
type LicenseStatus string

const (
	LicenseStatusActive    LicenseStatus = "active"
	LicenseStatusExpired   LicenseStatus = "expired"
	LicenseStatusRevoked   LicenseStatus = "revoked"
	LicenseStatusSuspended LicenseStatus = "suspended"
	LicenseStatusPending   LicenseStatus = "pending"
)

// FeatureUnlimited grants every feature when present in a license feature list
const FeatureUnlimited = "unlimited"

// Unlimited is the sentinel used in TierLimits for "no ceiling"
const Unlimited = 0

// License represents the complete information about a license bound to a device
type License struct {
	ID                  string        `json:"id" validate:"required"`
	Key                 string        `json:"key" validate:"required"`
	Type                LicenseType   `json:"type" validate:"required,oneof=trial standard professional enterprise"`
	Status              LicenseStatus `json:"status" validate:"required,oneof=active expired revoked suspended pending"`
	HardwareFingerprint string        `json:"hardwareFingerprint,omitempty"`
	ActivatedAt         *time.Time    `json:"activatedAt,omitempty"`
	ExpiresAt           *time.Time    `json:"expiresAt,omitempty"`
	MaxActivations      int           `json:"maxActivations" validate:"min=0"`
	CurrentActivations  int           `json:"currentActivations" validate:"min=0"`
	Features            []string      `json:"features"`
}

// HasFeature reports whether the license grants the named feature.
// The "unlimited" sentinel grants everything.
func (l *License) HasFeature(name string) bool {
	if l == nil {
		return false
	}
	return slices.Contains(l.Features, name) || slices.Contains(l.Features, FeatureUnlimited)
}

// ActivationsWithinLimit reports whether CurrentActivations respects
// MaxActivations. A zero maximum is unlimited.
func (l *License) ActivationsWithinLimit() bool {
	if l == nil {
		return false
	}
	return l.MaxActivations == Unlimited || l.CurrentActivations <= l.MaxActivations
}

// IsExpiredAt reports whether the license expiry date has passed at now.
// Licenses without an expiry date never expire by date.
func (l *License) IsExpiredAt(now time.Time) bool {
	if l == nil || l.ExpiresAt == nil {
		return false
	}
	return !now.Before(*l.ExpiresAt)
}

// RemainingDays returns whole days (rounded up) until expiry, or -1 for perpetual licenses
func (l *License) RemainingDays(now time.Time) int {
	if l == nil || l.ExpiresAt == nil {
		return -1
	}
	left := l.ExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// Clone returns a deep copy so callers can hand out read-only views
func (l *License) Clone() *License {
	if l == nil {
		return nil
	}
	c := *l
	if l.ActivatedAt != nil {
		t := *l.ActivatedAt
		c.ActivatedAt = &t
	}
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		c.ExpiresAt = &t
	}
	c.Features = slices.Clone(l.Features)
	return &c
}

// TierLimits describes what a license tier allows. Zero means unlimited.
type TierLimits struct {
	MaxActivations    int      `json:"maxActivations"`
	MaxConcurrentJobs int      `json:"maxConcurrentJobs"`
	MaxBatchSize      int      `json:"maxBatchSize"`
	GracePeriodDays   int      `json:"gracePeriodDays"`
	DefaultFeatures   []string `json:"defaultFeatures"`
}

var tierLimits = map[LicenseType]TierLimits{
	LicenseTypeTrial: {
		MaxActivations:    1,
		MaxConcurrentJobs: 1,
		MaxBatchSize:      10,
		GracePeriodDays:   3,
		DefaultFeatures:   []string{"basic"},
	},
	LicenseTypeStandard: {
		MaxActivations:    2,
		MaxConcurrentJobs: 3,
		MaxBatchSize:      100,
		GracePeriodDays:   7,
		DefaultFeatures:   []string{"basic", "export"},
	},
	LicenseTypeProfessional: {
		MaxActivations:    5,
		MaxConcurrentJobs: 10,
		MaxBatchSize:      1000,
		GracePeriodDays:   14,
		DefaultFeatures:   []string{"basic", "export", "batch", "api"},
	},
	LicenseTypeEnterprise: {
		MaxActivations:    Unlimited,
		MaxConcurrentJobs: Unlimited,
		MaxBatchSize:      Unlimited,
		GracePeriodDays:   30,
		DefaultFeatures:   []string{FeatureUnlimited},
	},
}

// LimitsFor returns the limits of a tier. Unknown tiers get trial limits.
func LimitsFor(t LicenseType) TierLimits {
	if limits, ok := tierLimits[t]; ok {
		return limits
	}
	return tierLimits[LicenseTypeTrial]
}

// GracePeriodFor returns the offline grace period of a tier
func GracePeriodFor(t LicenseType) time.Duration {
	return time.Duration(LimitsFor(t).GracePeriodDays) * 24 * time.Hour
}

// CachedValidation is the result of the last successful online validation,
// kept for offline fallback.
type CachedValidation struct {
	License           License   `json:"license"`
	ValidatedAt       time.Time `json:"validatedAt"`
	Fingerprint       string    `json:"fingerprint"`
	OfflineValidUntil time.Time `json:"offlineValidUntil"`
	Token             string    `json:"token,omitempty"`
}

// OfflineState is the persisted state of the offline grace period
type OfflineState struct {
	LastOnlineValidation *time.Time  `json:"lastOnlineValidation,omitempty"`
	GraceStartedAt       *time.Time  `json:"graceStartedAt,omitempty"`
	GracePeriodDays      int         `json:"gracePeriodDays"`
	IsOffline            bool        `json:"isOffline"`
	LicenseType          LicenseType `json:"licenseType,omitempty"`
	Fingerprint          string      `json:"fingerprint,omitempty"`
}
