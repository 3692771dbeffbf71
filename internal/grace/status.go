package grace

import (
	"time"

	"licensecore/internal/config"
	"licensecore/pkg/contracts/domain"
)

// WarningLevel grades how close the offline grace period is to running out
type WarningLevel string

const (
	LevelNone     WarningLevel = "none"
	LevelWarning  WarningLevel = "warning"
	LevelCritical WarningLevel = "critical"
	LevelExpired  WarningLevel = "expired"
)

// Thresholds are the remaining durations at which the level escalates
type Thresholds struct {
	Warning  time.Duration
	Critical time.Duration
}

// ThresholdsFrom reads the thresholds from configuration
func ThresholdsFrom(cfg config.GraceConfig) Thresholds {
	return Thresholds{Warning: cfg.WarningThreshold, Critical: cfg.CriticalThreshold}
}

// DefaultThresholds warn two days before expiry and escalate in the final day
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: config.DefaultGraceWarning, Critical: config.DefaultGraceCritical}
}

// Status describes the grace period at one instant
type Status struct {
	IsOffline            bool         `json:"isOffline"`
	IsValid              bool         `json:"isValid"`
	LastOnlineValidation *time.Time   `json:"lastOnlineValidation,omitempty"`
	GraceStartedAt       *time.Time   `json:"graceStartedAt,omitempty"`
	GraceEndsAt          *time.Time   `json:"graceEndsAt,omitempty"`
	GracePeriodDays      int          `json:"gracePeriodDays"`
	RemainingDays        int          `json:"remainingDays"`
	RemainingHours       int          `json:"remainingHours"`
	WarningLevel         WarningLevel `json:"warningLevel"`
}

// ComputeStatus derives the status from persisted state and the clock alone.
// Offline without a prior online validation is expired immediately.
func ComputeStatus(state domain.OfflineState, now time.Time, th Thresholds) Status {
	s := Status{
		IsOffline:            state.IsOffline,
		LastOnlineValidation: copyTime(state.LastOnlineValidation),
		GraceStartedAt:       copyTime(state.GraceStartedAt),
		GracePeriodDays:      state.GracePeriodDays,
		WarningLevel:         LevelNone,
	}

	if !state.IsOffline {
		s.IsValid = true
		s.RemainingDays = state.GracePeriodDays
		s.RemainingHours = state.GracePeriodDays * 24
		return s
	}

	if state.LastOnlineValidation == nil || state.GraceStartedAt == nil {
		s.WarningLevel = LevelExpired
		return s
	}

	ends := state.GraceStartedAt.Add(time.Duration(state.GracePeriodDays) * 24 * time.Hour)
	s.GraceEndsAt = &ends

	remaining := ends.Sub(now)
	if remaining <= 0 {
		s.WarningLevel = LevelExpired
		return s
	}

	s.IsValid = true
	s.RemainingDays = int(remaining / (24 * time.Hour))
	s.RemainingHours = int(remaining / time.Hour)
	s.WarningLevel = levelFor(remaining, th)
	return s
}

func levelFor(remaining time.Duration, th Thresholds) WarningLevel {
	switch {
	case remaining <= 0:
		return LevelExpired
	case remaining <= th.Critical:
		return LevelCritical
	case remaining <= th.Warning:
		return LevelWarning
	}
	return LevelNone
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
