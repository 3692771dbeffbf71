package license

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	licenseErrors "licensecore/internal/errors"
	"licensecore/internal/infrastructure"
	"licensecore/internal/storage"
	"licensecore/internal/token"
	"licensecore/pkg/contracts/domain"
)

// ServerClient is the license server collaborator. Transport failures are
// returned as errors with NETWORK_ERROR or SERVER_ERROR codes; business
// rejections come back as responses carrying an errorCode.
type ServerClient interface {
	Activate(ctx context.Context, req domain.ActivationRequest) (*domain.ActivationResponse, error)
	Validate(ctx context.Context, req domain.ValidationRequest) (*domain.ValidationResponse, error)
	Deactivate(ctx context.Context, req domain.DeactivationRequest) (*domain.DeactivationResponse, error)
}

// FingerprintProvider supplies the device fingerprint
type FingerprintProvider interface {
	Fingerprint(ctx context.Context) (string, error)
}

// machineInfoProvider is optionally implemented by a FingerprintProvider to
// attach descriptive data to activation requests.
type machineInfoProvider interface {
	MachineInfo(ctx context.Context) *domain.MachineInfo
}

// Result is the outcome of a successful validation or activation
type Result struct {
	Valid               bool            `json:"valid"`
	License             *domain.License `json:"license"`
	IsOfflineValidation bool            `json:"isOfflineValidation"`
	RemainingDays       int             `json:"remainingDays"`
	ValidatedAt         time.Time       `json:"validatedAt"`
	OfflineValidUntil   time.Time       `json:"offlineValidUntil"`
}

// Snapshot is a read-only view of the validator state
type Snapshot struct {
	Online            bool            `json:"online"`
	Activated         bool            `json:"activated"`
	License           *domain.License `json:"license,omitempty"`
	LastValidatedAt   *time.Time      `json:"lastValidatedAt,omitempty"`
	OfflineValidUntil *time.Time      `json:"offlineValidUntil,omitempty"`
	HasToken          bool            `json:"hasToken"`
}

// Validator orchestrates key normalization, online validation, caching and
// offline fallback. It owns the single active CachedValidation.
type Validator struct {
	client           ServerClient
	fingerprints     FingerprintProvider
	store            storage.Store
	codec            *token.Codec
	metrics          *LicenseMetrics
	logger           *slog.Logger
	now              func() time.Time
	refreshThreshold time.Duration

	mu      sync.RWMutex
	online  bool
	license *domain.License
	cache   *domain.CachedValidation
	token   string

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

// Option configures a Validator
type Option func(*Validator)

// WithStore persists license, cache and token
func WithStore(s storage.Store) Option {
	return func(v *Validator) { v.store = s }
}

// WithCodec verifies server-issued tokens locally
func WithCodec(c *token.Codec) Option {
	return func(v *Validator) { v.codec = c }
}

// WithMetrics records validation metrics
func WithMetrics(m *LicenseMetrics) Option {
	return func(v *Validator) { v.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithOnline sets the initial connectivity mode
func WithOnline(online bool) Option {
	return func(v *Validator) { v.online = online }
}

// WithRefreshThreshold sets how close to expiry a token is renewed
func WithRefreshThreshold(d time.Duration) Option {
	return func(v *Validator) { v.refreshThreshold = d }
}

// NewValidator creates a validator. It starts online with an in-memory store.
func NewValidator(client ServerClient, fingerprints FingerprintProvider, opts ...Option) *Validator {
	v := &Validator{
		client:           client,
		fingerprints:     fingerprints,
		now:              time.Now,
		online:           true,
		refreshThreshold: token.DefaultRefreshThreshold,
		listeners:        make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.store == nil {
		v.store = storage.NewMemoryStore()
	}
	v.logger = infrastructure.WithComponent(v.logger, "license_validator")
	return v
}

// SetOnline switches between contacting the server and validating from cache only
func (v *Validator) SetOnline(online bool) {
	v.mu.Lock()
	v.online = online
	v.mu.Unlock()
}

// IsOnline reports the connectivity mode
func (v *Validator) IsOnline() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.online
}

// CurrentLicense returns a copy of the activated license, or nil
func (v *Validator) CurrentLicense() *domain.License {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.license.Clone()
}

// Token returns the stored server token
func (v *Validator) Token() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.token
}

// Snapshot returns the current validator state
func (v *Validator) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s := Snapshot{
		Online:    v.online,
		Activated: v.license != nil,
		License:   v.license.Clone(),
		HasToken:  v.token != "",
	}
	if v.cache != nil {
		validated, until := v.cache.ValidatedAt, v.cache.OfflineValidUntil
		s.LastValidatedAt = &validated
		s.OfflineValidUntil = &until
	}
	return s
}

// Validate checks key online, falling back to the cached validation only when
// the server cannot be reached. Failures are *errors.LicenseError values.
func (v *Validator) Validate(ctx context.Context, key string) (*Result, error) {
	ctx = infrastructure.EnsureTraceID(ctx)
	var result *Result
	err := v.traceOperation(ctx, "validate", func(ctx context.Context) error {
		var err error
		result, err = v.validate(ctx, key)
		return err
	})
	return result, err
}

// ValidateCurrent validates the activated license
func (v *Validator) ValidateCurrent(ctx context.Context) (*Result, error) {
	v.mu.RLock()
	lic := v.license
	v.mu.RUnlock()
	if lic == nil {
		return nil, licenseErrors.ErrNoLicenseConfigured
	}
	return v.Validate(ctx, lic.Key)
}

func (v *Validator) validate(ctx context.Context, rawKey string) (*Result, error) {
	start := v.now()
	key := NormalizeKey(rawKey)
	if !ValidKeyFormat(key) {
		err := licenseErrors.NewLicenseError(licenseErrors.CodeInvalidLicenseKey, "license key must be XXXX-XXXX-XXXX-XXXX")
		v.recordValidation(ctx, v.now().Sub(start), false, err)
		return nil, err
	}

	fingerprint, err := v.fingerprint(ctx)
	if err != nil {
		v.recordValidation(ctx, v.now().Sub(start), false, err)
		return nil, err
	}

	if !v.IsOnline() {
		result, err := v.validateOffline(ctx, key, fingerprint)
		v.recordValidation(ctx, v.now().Sub(start), true, err)
		return result, err
	}

	result, err := v.validateOnline(ctx, key, fingerprint)
	if err == nil {
		v.recordValidation(ctx, v.now().Sub(start), false, nil)
		return result, nil
	}

	code := licenseErrors.CodeOf(err)
	if !code.IsNetworkClass() {
		v.recordValidation(ctx, v.now().Sub(start), false, err)
		return nil, err
	}

	v.logLicenseAction(ctx, slog.LevelWarn, "validation", "License server unreachable, using offline validation", key,
		slog.String("error", err.Error()))
	v.recordOfflineFallback(ctx)
	v.emit(Event{Type: EventOfflineFallback, Code: code})

	result, err = v.validateOffline(ctx, key, fingerprint)
	v.recordValidation(ctx, v.now().Sub(start), true, err)
	return result, err
}

func (v *Validator) validateOnline(ctx context.Context, key, fingerprint string) (*Result, error) {
	req := domain.ValidationRequest{LicenseKey: key, HardwareFingerprint: fingerprint}
	v.mu.RLock()
	if v.license != nil && v.license.Key == key {
		req.Token = v.token
	}
	v.mu.RUnlock()

	resp, err := v.client.Validate(ctx, req)
	if err != nil {
		return nil, serverFailure(err)
	}
	if !resp.Valid {
		rejected := rejection(resp.ErrorCode, resp.Error)
		if rejected.Code.IsNetworkClass() {
			return nil, rejected
		}
		v.reject(ctx, key, rejected, resp.License)
		return nil, rejected
	}
	if err := v.checkServerLicense(ctx, "validation", key, resp.License); err != nil {
		return nil, err
	}

	lic := resp.License.Clone()
	if lic.Key == "" {
		lic.Key = key
	}
	if lic.HardwareFingerprint == "" {
		lic.HardwareFingerprint = fingerprint
	}

	tok := req.Token
	if resp.Token != "" {
		if err := v.verifyToken(ctx, resp.Token, fingerprint); err != nil {
			return nil, err
		}
		tok = resp.Token
	}

	result := v.accept(ctx, lic, fingerprint, tok)
	if resp.RemainingDays != nil {
		result.RemainingDays = *resp.RemainingDays
	}

	v.logLicenseAction(ctx, slog.LevelInfo, "validation", "License validated online", key,
		slog.String("license_type", string(lic.Type)),
		slog.Int("remaining_days", result.RemainingDays))
	v.emit(Event{Type: EventValidated, License: lic.Clone()})
	return result, nil
}

// accept stores a freshly validated license and seeds the offline cache
func (v *Validator) accept(ctx context.Context, lic *domain.License, fingerprint, tok string) *Result {
	now := v.now()
	cache := &domain.CachedValidation{
		License:           *lic.Clone(),
		ValidatedAt:       now,
		Fingerprint:       fingerprint,
		OfflineValidUntil: now.Add(domain.GracePeriodFor(lic.Type)),
		Token:             tok,
	}

	v.mu.Lock()
	v.license = lic.Clone()
	v.cache = cache
	v.token = tok
	v.mu.Unlock()

	v.persist(ctx)

	return &Result{
		Valid:             true,
		License:           lic.Clone(),
		RemainingDays:     lic.RemainingDays(now),
		ValidatedAt:       now,
		OfflineValidUntil: cache.OfflineValidUntil,
	}
}

// checkServerLicense refuses a license the server should never have sent.
func (v *Validator) checkServerLicense(ctx context.Context, action, key string, lic *domain.License) error {
	if lic == nil {
		return licenseErrors.NewLicenseError(licenseErrors.CodeServerError, action+" response carried no license")
	}
	if !lic.ActivationsWithinLimit() {
		v.logLicenseAction(ctx, slog.LevelError, action, "Server returned a license over its activation limit", key,
			slog.Int("current_activations", lic.CurrentActivations),
			slog.Int("max_activations", lic.MaxActivations))
		return licenseErrors.NewLicenseError(licenseErrors.CodeServerError,
			fmt.Sprintf("license reports %d of %d activations", lic.CurrentActivations, lic.MaxActivations))
	}
	return nil
}

// reject applies a business rejection. Rejections that end the license
// invalidate the offline cache.
func (v *Validator) reject(ctx context.Context, key string, err *licenseErrors.LicenseError, lic *domain.License) {
	v.logLicenseAction(ctx, slog.LevelWarn, "validation", "License rejected by server", key,
		slog.String("code", string(err.Code)))

	if !clearsCache(err.Code) {
		v.emit(Event{Type: EventRejected, Code: err.Code})
		return
	}

	v.mu.Lock()
	if v.cache != nil && v.cache.License.Key == key {
		v.cache = nil
	}
	if v.license != nil && v.license.Key == key {
		if lic != nil && lic.Status != "" {
			v.license.Status = lic.Status
		} else if status, ok := statusForCode(err.Code); ok {
			v.license.Status = status
		}
	}
	current := v.license.Clone()
	v.mu.Unlock()

	if derr := v.store.Delete(ctx, storage.KeyCachedValidation); derr != nil {
		v.logWarn(ctx, "cache_invalidation", "Failed to delete cached validation", slog.String("error", derr.Error()))
	}
	v.persist(ctx)
	v.emit(Event{Type: EventRejected, Code: err.Code, License: current})
}

func statusForCode(code licenseErrors.Code) (domain.LicenseStatus, bool) {
	switch code {
	case licenseErrors.CodeLicenseExpired:
		return domain.LicenseStatusExpired, true
	case licenseErrors.CodeLicenseRevoked:
		return domain.LicenseStatusRevoked, true
	case licenseErrors.CodeLicenseSuspended:
		return domain.LicenseStatusSuspended, true
	}
	return "", false
}

// verifyToken checks a server token when a codec is configured. An empty
// token is accepted; servers are not required to issue one.
func (v *Validator) verifyToken(ctx context.Context, tok, fingerprint string) error {
	if v.codec == nil || tok == "" {
		return nil
	}
	if _, err := v.codec.Validate(tok, fingerprint); err != nil {
		v.recordTokenFailure(ctx, string(token.CodeOf(err)))
		v.logWarn(ctx, "token_validation", "Server token rejected", slog.String("code", string(token.CodeOf(err))))
		return tokenFailure(err)
	}
	return nil
}

func (v *Validator) fingerprint(ctx context.Context) (string, error) {
	if v.fingerprints == nil {
		return "", licenseErrors.NewLicenseError(licenseErrors.CodeFingerprintError, "no fingerprint provider configured")
	}
	start := v.now()
	fp, err := v.fingerprints.Fingerprint(ctx)
	v.recordFingerprint(ctx, v.now().Sub(start))
	if err != nil {
		return "", licenseErrors.WrapLicenseError(licenseErrors.CodeFingerprintError, err)
	}
	if fp == "" {
		return "", licenseErrors.ErrFingerprintError
	}
	return fp, nil
}

// HasFeature reports whether lic grants feature, honoring the "unlimited" sentinel
func HasFeature(lic *domain.License, feature string) bool {
	return lic.HasFeature(feature)
}

// CanUseFeature validates key and reports whether it grants feature
func (v *Validator) CanUseFeature(ctx context.Context, key, feature string) (bool, error) {
	result, err := v.Validate(ctx, key)
	if err != nil {
		return false, err
	}
	return HasFeature(result.License, feature), nil
}
