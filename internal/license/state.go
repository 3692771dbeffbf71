package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"licensecore/internal/storage"
	"licensecore/pkg/contracts/domain"
)

// Initialize restores the license, cached validation and token from storage.
// Missing values are not an error.
func (v *Validator) Initialize(ctx context.Context) error {
	var lic domain.License
	hasLicense, err := load(ctx, v.store, storage.KeyLicense, &lic)
	if err != nil {
		return err
	}
	var cache domain.CachedValidation
	hasCache, err := load(ctx, v.store, storage.KeyCachedValidation, &cache)
	if err != nil {
		return err
	}
	var tok string
	if _, err := load(ctx, v.store, storage.KeyToken, &tok); err != nil {
		return err
	}

	v.mu.Lock()
	if hasLicense {
		v.license = &lic
	}
	if hasCache {
		v.cache = &cache
	}
	v.token = tok
	v.mu.Unlock()

	attrs := []slog.Attr{
		slog.Bool("has_license", hasLicense),
		slog.Bool("has_cache", hasCache),
		slog.Bool("has_token", tok != ""),
	}
	if hasLicense {
		v.logLicenseAction(ctx, slog.LevelInfo, "restore", "License state restored", lic.Key, attrs...)
	} else {
		v.logInfo(ctx, "restore", "No stored license", attrs...)
	}
	return nil
}

func load(ctx context.Context, s storage.Store, key string, v any) (bool, error) {
	err := storage.GetJSON(ctx, s, key, v)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to restore %s: %w", key, err)
	}
	return true, nil
}

// persist writes the current state. Storage failures are logged, not
// returned: the in-memory state stays authoritative for this process.
func (v *Validator) persist(ctx context.Context) {
	v.mu.RLock()
	lic := v.license.Clone()
	var cache *domain.CachedValidation
	if v.cache != nil {
		c := *v.cache
		cache = &c
	}
	tok := v.token
	v.mu.RUnlock()

	write := func(key string, value any, present bool) {
		var err error
		if present {
			err = storage.PutJSON(ctx, v.store, key, value)
		} else {
			err = v.store.Delete(ctx, key)
		}
		if err != nil {
			v.logWarn(ctx, "persist", "Failed to persist license state",
				slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	write(storage.KeyLicense, lic, lic != nil)
	write(storage.KeyCachedValidation, cache, cache != nil)
	write(storage.KeyToken, tok, tok != "")
}

// clearState forgets the license, cache and token
func (v *Validator) clearState(ctx context.Context) {
	v.mu.Lock()
	v.license = nil
	v.cache = nil
	v.token = ""
	v.mu.Unlock()
	v.persist(ctx)
}
