package license

import (
	"context"
	"log/slog"

	licenseErrors "licensecore/internal/errors"
	"licensecore/internal/infrastructure"
	"licensecore/pkg/contracts/domain"
)

// Activate binds key to this device through the server, stores the returned
// license and token and seeds the offline cache. Activation needs the server:
// there is no offline fallback.
func (v *Validator) Activate(ctx context.Context, rawKey string) (*Result, error) {
	ctx = infrastructure.EnsureTraceID(ctx)
	var result *Result
	err := v.traceOperation(ctx, "activate", func(ctx context.Context) error {
		var err error
		result, err = v.activate(ctx, rawKey)
		v.recordActivation(ctx, err)
		return err
	})
	return result, err
}

func (v *Validator) activate(ctx context.Context, rawKey string) (*Result, error) {
	key := NormalizeKey(rawKey)
	if !ValidKeyFormat(key) {
		return nil, licenseErrors.NewLicenseError(licenseErrors.CodeInvalidLicenseKey, "license key must be XXXX-XXXX-XXXX-XXXX")
	}
	fingerprint, err := v.fingerprint(ctx)
	if err != nil {
		return nil, err
	}
	if !v.IsOnline() {
		return nil, licenseErrors.NewLicenseError(licenseErrors.CodeNetworkError, "activation requires a connection to the license server")
	}

	req := domain.ActivationRequest{LicenseKey: key, HardwareFingerprint: fingerprint}
	if p, ok := v.fingerprints.(machineInfoProvider); ok {
		req.MachineInfo = p.MachineInfo(ctx)
	}

	resp, err := v.client.Activate(ctx, req)
	if err != nil {
		return nil, serverFailure(err)
	}
	if !resp.Success {
		rejected := rejection(resp.ErrorCode, resp.Error)
		v.logLicenseAction(ctx, slog.LevelWarn, "activation", "License activation rejected", key,
			slog.String("code", string(rejected.Code)))
		return nil, rejected
	}
	if err := v.checkServerLicense(ctx, "activation", key, resp.License); err != nil {
		return nil, err
	}

	lic := resp.License.Clone()
	if lic.Key == "" {
		lic.Key = key
	}
	if lic.HardwareFingerprint == "" {
		lic.HardwareFingerprint = fingerprint
	}
	if lic.ActivatedAt == nil {
		now := v.now()
		lic.ActivatedAt = &now
	}
	if lic.ExpiresAt == nil && resp.ExpiresAt != nil {
		expires := *resp.ExpiresAt
		lic.ExpiresAt = &expires
	}

	if err := v.verifyToken(ctx, resp.Token, fingerprint); err != nil {
		return nil, err
	}

	result := v.accept(ctx, lic, fingerprint, resp.Token)
	v.logLicenseAction(ctx, slog.LevelInfo, "activation", "License activated", key,
		slog.String("license_type", string(lic.Type)),
		slog.Int("current_activations", lic.CurrentActivations),
		slog.Int("max_activations", lic.MaxActivations),
		slog.String("fingerprint", shortFingerprint(fingerprint)))
	v.emit(Event{Type: EventActivated, License: lic.Clone()})
	return result, nil
}

// Deactivate releases the activation on the server and forgets the license
// locally. The local state is kept when the server cannot be reached.
func (v *Validator) Deactivate(ctx context.Context) error {
	ctx = infrastructure.EnsureTraceID(ctx)
	return v.traceOperation(ctx, "deactivate", func(ctx context.Context) error {
		v.mu.RLock()
		lic := v.license.Clone()
		tok := v.token
		v.mu.RUnlock()
		if lic == nil {
			return licenseErrors.ErrNoLicenseConfigured
		}

		fingerprint, err := v.fingerprint(ctx)
		if err != nil {
			return err
		}

		resp, err := v.client.Deactivate(ctx, domain.DeactivationRequest{
			LicenseKey:          lic.Key,
			HardwareFingerprint: fingerprint,
			Token:               tok,
		})
		if err != nil {
			return serverFailure(err)
		}
		if !resp.Success {
			return rejection(resp.ErrorCode, resp.Error)
		}

		v.clearState(ctx)
		v.logLicenseAction(ctx, slog.LevelInfo, "deactivation", "License deactivated", lic.Key)
		v.emit(Event{Type: EventDeactivated, License: lic})
		return nil
	})
}

// RefreshToken renews the server token when it is missing, invalid or close
// to expiry. It reports whether a renewal call was made.
func (v *Validator) RefreshToken(ctx context.Context) (bool, error) {
	v.mu.RLock()
	lic := v.license.Clone()
	tok := v.token
	v.mu.RUnlock()
	if lic == nil {
		return false, licenseErrors.ErrNoLicenseConfigured
	}

	if v.codec != nil && tok != "" {
		if _, payload, err := v.codec.Decode(tok); err == nil && !v.codec.ShouldRefresh(payload, v.refreshThreshold) {
			return false, nil
		}
	}

	if _, err := v.Validate(ctx, lic.Key); err != nil {
		return true, err
	}
	return true, nil
}
