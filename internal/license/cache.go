package license

import (
	"context"
	"log/slog"

	licenseErrors "licensecore/internal/errors"
	"licensecore/internal/storage"
	"licensecore/pkg/contracts/domain"
)

// validateOffline answers from the cached validation. The checks run in a
// fixed order and the first failure wins.
func (v *Validator) validateOffline(ctx context.Context, key, fingerprint string) (*Result, error) {
	now := v.now()

	v.mu.RLock()
	var cache *domain.CachedValidation
	if v.cache != nil {
		c := *v.cache
		c.License = *v.cache.License.Clone()
		cache = &c
	}
	v.mu.RUnlock()

	if cache == nil || cache.License.Key != key {
		return nil, licenseErrors.ErrNoLicenseConfigured
	}
	if cache.Fingerprint != fingerprint {
		return nil, licenseErrors.ErrFingerprintMismatch
	}
	if !now.Before(cache.OfflineValidUntil) {
		return nil, licenseErrors.ErrCacheExpired
	}

	lic := &cache.License
	if lic.IsExpiredAt(now) || lic.Status == domain.LicenseStatusExpired {
		return nil, licenseErrors.ErrLicenseExpired
	}
	switch lic.Status {
	case domain.LicenseStatusRevoked:
		return nil, licenseErrors.ErrLicenseRevoked
	case domain.LicenseStatusSuspended:
		return nil, licenseErrors.ErrLicenseSuspended
	}

	v.logLicenseAction(ctx, slog.LevelInfo, "validation", "License validated from offline cache", key,
		slog.Time("offline_valid_until", cache.OfflineValidUntil),
		slog.String("fingerprint", shortFingerprint(fingerprint)))
	v.emit(Event{Type: EventValidated, License: lic.Clone(), Offline: true})

	return &Result{
		Valid:               true,
		License:             lic.Clone(),
		IsOfflineValidation: true,
		RemainingDays:       lic.RemainingDays(now),
		ValidatedAt:         cache.ValidatedAt,
		OfflineValidUntil:   cache.OfflineValidUntil,
	}, nil
}

// CachedValidation returns a copy of the cached validation, or nil
func (v *Validator) CachedValidation() *domain.CachedValidation {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.cache == nil {
		return nil
	}
	c := *v.cache
	c.License = *v.cache.License.Clone()
	return &c
}

// ClearCache drops the cached validation from memory and storage
func (v *Validator) ClearCache(ctx context.Context) error {
	v.mu.Lock()
	v.cache = nil
	v.mu.Unlock()
	return v.store.Delete(ctx, storage.KeyCachedValidation)
}
