package license

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	licenseErrors "licensecore/internal/errors"
	"licensecore/internal/shared/testutil"
	"licensecore/internal/storage"
	"licensecore/internal/token"
	"licensecore/pkg/contracts/domain"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	v       *Validator
	server  *testutil.FakeServer
	store   *storage.MemoryStore
	clock   *testutil.Clock
	handler *testutil.BufferedSlogHandler
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		server: &testutil.FakeServer{License: testutil.ProfessionalLicense(epoch)},
		store:  storage.NewMemoryStore(),
		clock:  testutil.NewClock(epoch),
	}
	logger, handler := testutil.NewTestLogger()
	f.handler = handler
	base := []Option{WithStore(f.store), WithClock(f.clock.Now), WithLogger(logger)}
	f.v = NewValidator(f.server, testutil.StaticFingerprint{Value: testutil.TestFingerprint}, append(base, opts...)...)
	return f
}

// seedCache stores a cached validation and restores it into the validator
func (f *fixture) seedCache(t *testing.T, mutate func(*domain.CachedValidation)) {
	t.Helper()
	lic := testutil.ProfessionalLicense(epoch.Add(-24 * time.Hour))
	cache := domain.CachedValidation{
		License:           *lic,
		ValidatedAt:       epoch.Add(-24 * time.Hour),
		Fingerprint:       testutil.TestFingerprint,
		OfflineValidUntil: epoch.Add(13 * 24 * time.Hour),
	}
	if mutate != nil {
		mutate(&cache)
	}
	ctx := context.Background()
	require.NoError(t, storage.PutJSON(ctx, f.store, storage.KeyLicense, cache.License))
	require.NoError(t, storage.PutJSON(ctx, f.store, storage.KeyCachedValidation, cache))
	require.NoError(t, f.v.Initialize(ctx))
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"ABCD-EFGH-IJKL-MNOP", "ABCD-EFGH-IJKL-MNOP", true},
		{"  abcd-efgh-ijkl-mnop\n", "ABCD-EFGH-IJKL-MNOP", true},
		{"ab cd-ef gh-ijkl-mnop", "ABCD-EFGH-IJKL-MNOP", true},
		{"ABCD-EFGH-IJKL", "ABCD-EFGH-IJKL", false},
		{"ABCDEFGHIJKLMNOP", "ABCDEFGHIJKLMNOP", false},
		{"ABCD-EFGH-IJKL-MNO!", "ABCD-EFGH-IJKL-MNO!", false},
		{"ABCD_EFGH_IJKL_MNOP", "ABCD_EFGH_IJKL_MNOP", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got := NormalizeKey(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.valid, ValidKeyFormat(got), tt.in)
	}
}

func TestValidateRejectsMalformedKey(t *testing.T) {
	f := newFixture(t)
	_, err := f.v.Validate(context.Background(), "not-a-key")
	assert.ErrorIs(t, err, licenseErrors.ErrInvalidLicenseKey)
	assert.Empty(t, f.server.ValidateCalls)
}

func TestValidateRequiresFingerprint(t *testing.T) {
	server := &testutil.FakeServer{License: testutil.ProfessionalLicense(epoch)}
	v := NewValidator(server, testutil.StaticFingerprint{Err: errors.New("no identifiers")}, WithClock(func() time.Time { return epoch }))

	_, err := v.Validate(context.Background(), testutil.ValidLicenseKey)
	assert.Equal(t, licenseErrors.CodeFingerprintError, licenseErrors.CodeOf(err))
	assert.Empty(t, server.ValidateCalls)

	v = NewValidator(server, nil)
	_, err = v.Validate(context.Background(), testutil.ValidLicenseKey)
	assert.Equal(t, licenseErrors.CodeFingerprintError, licenseErrors.CodeOf(err))
}

func TestValidateOnlineSeedsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.v.Validate(ctx, " abcd-efgh-ijkl-mnop ")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.False(t, result.IsOfflineValidation)
	assert.Equal(t, 30, result.RemainingDays)

	require.Len(t, f.server.ValidateCalls, 1)
	assert.Equal(t, testutil.ValidLicenseKey, f.server.ValidateCalls[0].LicenseKey)
	assert.Equal(t, testutil.TestFingerprint, f.server.ValidateCalls[0].HardwareFingerprint)

	cache := f.v.CachedValidation()
	require.NotNil(t, cache)
	assert.Equal(t, epoch, cache.ValidatedAt)
	assert.Equal(t, epoch.Add(14*24*time.Hour), cache.OfflineValidUntil)
	assert.Equal(t, testutil.TestFingerprint, cache.Fingerprint)

	var stored domain.CachedValidation
	require.NoError(t, storage.GetJSON(ctx, f.store, storage.KeyCachedValidation, &stored))
	assert.Equal(t, testutil.ValidLicenseKey, stored.License.Key)

	testutil.AssertLogContains(t, f.handler, slog.LevelInfo, "License validated online")
	testutil.AssertNoSecret(t, f.handler, testutil.ValidLicenseKey)
}

func TestValidateUsesServerRemainingDays(t *testing.T) {
	f := newFixture(t)
	days := 12
	f.server.SetValidate(func(domain.ValidationRequest) (*domain.ValidationResponse, error) {
		return &domain.ValidationResponse{Valid: true, License: f.server.License.Clone(), RemainingDays: &days}, nil
	})
	result, err := f.v.Validate(context.Background(), testutil.ValidLicenseKey)
	require.NoError(t, err)
	assert.Equal(t, 12, result.RemainingDays)
}

func TestValidateFallsBackOnNetworkError(t *testing.T) {
	f := newFixture(t)
	f.seedCache(t, nil)
	f.server.SetValidate(testutil.Unreachable)

	var events []Event
	f.v.Subscribe(func(ev Event) { events = append(events, ev) })

	result, err := f.v.Validate(context.Background(), testutil.ValidLicenseKey)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.True(t, result.IsOfflineValidation)
	assert.Equal(t, domain.LicenseTypeProfessional, result.License.Type)

	require.Len(t, events, 2)
	assert.Equal(t, EventOfflineFallback, events[0].Type)
	assert.Equal(t, licenseErrors.CodeNetworkError, events[0].Code)
	assert.Equal(t, EventValidated, events[1].Type)
	assert.True(t, events[1].Offline)
}

func TestValidateFallsBackOnServerError(t *testing.T) {
	f := newFixture(t)
	f.seedCache(t, nil)

	f.server.SetValidate(testutil.Rejecting(licenseErrors.CodeServerError))
	result, err := f.v.Validate(context.Background(), testutil.ValidLicenseKey)
	require.NoError(t, err)
	assert.True(t, result.IsOfflineValidation)

	f.server.SetValidate(func(domain.ValidationRequest) (*domain.ValidationResponse, error) {
		return &domain.ValidationResponse{Valid: false, ErrorCode: "SOMETHING_NEW"}, nil
	})
	result, err = f.v.Validate(context.Background(), testutil.ValidLicenseKey)
	require.NoError(t, err)
	assert.True(t, result.IsOfflineValidation)
}

func TestValidateRefusesLicenseOverActivationLimit(t *testing.T) {
	f := newFixture(t)
	f.seedCache(t, nil)

	f.server.SetValidate(func(domain.ValidationRequest) (*domain.ValidationResponse, error) {
		lic := testutil.ProfessionalLicense(epoch)
		lic.CurrentActivations = lic.MaxActivations + 1
		return &domain.ValidationResponse{Valid: true, License: lic}, nil
	})
	result, err := f.v.Validate(context.Background(), testutil.ValidLicenseKey)
	require.NoError(t, err)
	assert.True(t, result.IsOfflineValidation)
	assert.Equal(t, 1, f.v.CurrentLicense().CurrentActivations)

	enterprise := testutil.ProfessionalLicense(epoch)
	enterprise.MaxActivations = domain.Unlimited
	enterprise.CurrentActivations = 40
	assert.True(t, enterprise.ActivationsWithinLimit())
}

func TestBusinessRejectionIsNotMasked(t *testing.T) {
	tests := []struct {
		code       licenseErrors.Code
		clearCache bool
		wantStatus domain.LicenseStatus
	}{
		{licenseErrors.CodeLicenseRevoked, true, domain.LicenseStatusRevoked},
		{licenseErrors.CodeLicenseSuspended, true, domain.LicenseStatusSuspended},
		{licenseErrors.CodeLicenseExpired, true, domain.LicenseStatusExpired},
		{licenseErrors.CodeFingerprintMismatch, true, domain.LicenseStatusActive},
		{licenseErrors.CodeInvalidToken, false, domain.LicenseStatusActive},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.seedCache(t, nil)

			f.server.SetValidate(testutil.Rejecting(tt.code))
			_, err := f.v.Validate(ctx, testutil.ValidLicenseKey)
			assert.Equal(t, tt.code, licenseErrors.CodeOf(err))
			assert.Equal(t, tt.wantStatus, f.v.CurrentLicense().Status)

			// A later outage must not revive a license the server rejected
			f.server.SetValidate(testutil.Unreachable)
			_, err = f.v.Validate(ctx, testutil.ValidLicenseKey)
			if tt.clearCache {
				assert.Nil(t, f.v.CachedValidation())
				assert.ErrorIs(t, err, licenseErrors.ErrNoLicenseConfigured)
				_, getErr := f.store.Get(ctx, storage.KeyCachedValidation)
				assert.ErrorIs(t, getErr, storage.ErrNotFound)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOfflineValidationOrder(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		seed   bool
		mutate func(*domain.CachedValidation)
		want   *licenseErrors.LicenseError
	}{
		{name: "no cache", key: testutil.ValidLicenseKey, want: licenseErrors.ErrNoLicenseConfigured},
		{name: "cache for another key", key: testutil.OtherLicenseKey, seed: true, want: licenseErrors.ErrNoLicenseConfigured},
		{name: "fingerprint mismatch wins over elapsed window", key: testutil.ValidLicenseKey, seed: true,
			mutate: func(c *domain.CachedValidation) {
				c.Fingerprint = testutil.OtherFingerprint
				c.OfflineValidUntil = epoch.Add(-time.Hour)
			},
			want: licenseErrors.ErrFingerprintMismatch},
		{name: "window elapsed wins over expired license", key: testutil.ValidLicenseKey, seed: true,
			mutate: func(c *domain.CachedValidation) {
				c.OfflineValidUntil = epoch
				expired := epoch.Add(-time.Hour)
				c.License.ExpiresAt = &expired
			},
			want: licenseErrors.ErrCacheExpired},
		{name: "license date expired", key: testutil.ValidLicenseKey, seed: true,
			mutate: func(c *domain.CachedValidation) {
				expired := epoch
				c.License.ExpiresAt = &expired
				c.License.Status = domain.LicenseStatusRevoked
			},
			want: licenseErrors.ErrLicenseExpired},
		{name: "revoked", key: testutil.ValidLicenseKey, seed: true,
			mutate: func(c *domain.CachedValidation) { c.License.Status = domain.LicenseStatusRevoked },
			want:   licenseErrors.ErrLicenseRevoked},
		{name: "suspended", key: testutil.ValidLicenseKey, seed: true,
			mutate: func(c *domain.CachedValidation) { c.License.Status = domain.LicenseStatusSuspended },
			want:   licenseErrors.ErrLicenseSuspended},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithOnline(false))
			if tt.seed {
				f.seedCache(t, tt.mutate)
			}
			_, err := f.v.Validate(context.Background(), tt.key)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.server.ValidateCalls, "offline mode never calls the server")
		})
	}
}

func TestOfflineValidationSucceedsInsideWindow(t *testing.T) {
	f := newFixture(t, WithOnline(false))
	f.seedCache(t, nil)

	f.clock.Advance(13*24*time.Hour - time.Second)
	result, err := f.v.Validate(context.Background(), testutil.ValidLicenseKey)
	require.NoError(t, err)
	assert.True(t, result.IsOfflineValidation)

	f.clock.Advance(time.Second)
	_, err = f.v.Validate(context.Background(), testutil.ValidLicenseKey)
	assert.ErrorIs(t, err, licenseErrors.ErrCacheExpired)
}

func TestInitializeRestoresState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.v.Validate(ctx, testutil.ValidLicenseKey)
	require.NoError(t, err)

	restored := NewValidator(f.server, testutil.StaticFingerprint{Value: testutil.TestFingerprint},
		WithStore(f.store), WithClock(f.clock.Now), WithOnline(false))
	require.NoError(t, restored.Initialize(ctx))

	snap := restored.Snapshot()
	assert.True(t, snap.Activated)
	assert.False(t, snap.Online)
	require.NotNil(t, snap.OfflineValidUntil)
	assert.True(t, snap.OfflineValidUntil.Equal(epoch.Add(14*24*time.Hour)))

	result, err := restored.ValidateCurrent(ctx)
	require.NoError(t, err)
	assert.True(t, result.IsOfflineValidation)
}

func TestInitializeEmptyStore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.v.Initialize(context.Background()))
	assert.Nil(t, f.v.CurrentLicense())

	_, err := f.v.ValidateCurrent(context.Background())
	assert.ErrorIs(t, err, licenseErrors.ErrNoLicenseConfigured)
}

func TestCanUseFeature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.v.CanUseFeature(ctx, testutil.ValidLicenseKey, "batch")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.v.CanUseFeature(ctx, testutil.ValidLicenseKey, "white-label")
	require.NoError(t, err)
	assert.False(t, ok)

	enterprise := testutil.NewLicense(testutil.ValidLicenseKey, domain.LicenseTypeEnterprise, epoch, 0)
	assert.True(t, HasFeature(enterprise, "white-label"))
	assert.False(t, HasFeature(nil, "basic"))
}

func TestListenerPanicIsIsolated(t *testing.T) {
	f := newFixture(t)
	var got []EventType
	f.v.Subscribe(func(Event) { panic("boom") })
	unsubscribe := f.v.Subscribe(func(ev Event) { got = append(got, ev.Type) })

	_, err := f.v.Validate(context.Background(), testutil.ValidLicenseKey)
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventValidated}, got)

	unsubscribe()
	_, err = f.v.Validate(context.Background(), testutil.ValidLicenseKey)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	testutil.AssertLogContains(t, f.handler, slog.LevelError, "License listener panicked")
}

func newTestCodec(t *testing.T, now func() time.Time) *token.Codec {
	t.Helper()
	c, err := token.NewCodec(token.Config{
		Secret:   []byte(testutil.TestTokenSecret),
		Issuer:   testutil.TestTokenIssuer,
		Audience: testutil.TestTokenAudience,
	}, token.WithClock(now))
	require.NoError(t, err)
	return c
}

func issue(t *testing.T, c *token.Codec, fingerprint string, ttl time.Duration) string {
	t.Helper()
	tok, _, err := c.Issue(token.IssueRequest{
		Subject:     testutil.ValidLicenseKey,
		LicenseID:   "lic_professional",
		LicenseType: string(domain.LicenseTypeProfessional),
		Fingerprint: fingerprint,
		TTL:         ttl,
	})
	require.NoError(t, err)
	return tok
}

func TestServerTokenIsVerified(t *testing.T) {
	tests := []struct {
		name string
		tok  func(c *token.Codec) string
		want licenseErrors.Code
	}{
		{"valid", func(c *token.Codec) string { return issue(t, c, testutil.TestFingerprint, time.Hour) }, ""},
		{"bound to other device", func(c *token.Codec) string { return issue(t, c, testutil.OtherFingerprint, time.Hour) }, licenseErrors.CodeFingerprintMismatch},
		{"garbage", func(*token.Codec) string { return "a.b.c" }, licenseErrors.CodeInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := testutil.NewClock(epoch)
			codec := newTestCodec(t, clock.Now)
			f := newFixture(t, WithCodec(codec))
			f.server.Token = tt.tok(codec)

			_, err := f.v.Activate(context.Background(), testutil.ValidLicenseKey)
			assert.Equal(t, tt.want, licenseErrors.CodeOf(err))
			if tt.want == "" {
				assert.Equal(t, f.server.Token, f.v.Token())
			} else {
				assert.Nil(t, f.v.CurrentLicense())
			}
		})
	}
}

func TestRefreshToken(t *testing.T) {
	codec := newTestCodec(t, func() time.Time { return epoch })
	f := newFixture(t, WithCodec(codec), WithRefreshThreshold(5*time.Minute))
	ctx := context.Background()

	_, err := f.v.RefreshToken(ctx)
	assert.ErrorIs(t, err, licenseErrors.ErrNoLicenseConfigured)

	f.server.Token = issue(t, codec, testutil.TestFingerprint, time.Hour)
	_, err = f.v.Activate(ctx, testutil.ValidLicenseKey)
	require.NoError(t, err)

	refreshed, err := f.v.RefreshToken(ctx)
	require.NoError(t, err)
	assert.False(t, refreshed, "token valid for an hour needs no renewal")
	assert.Empty(t, f.server.ValidateCalls)

	f.server.Token = issue(t, codec, testutil.TestFingerprint, 3*time.Minute)
	f.v.mu.Lock()
	f.v.token = f.server.Token
	f.v.mu.Unlock()

	renewed := issue(t, codec, testutil.TestFingerprint, time.Hour)
	f.server.Token = renewed
	refreshed, err = f.v.RefreshToken(ctx)
	require.NoError(t, err)
	assert.True(t, refreshed)
	require.Len(t, f.server.ValidateCalls, 1)
	assert.NotEmpty(t, f.server.ValidateCalls[0].Token)
	assert.Equal(t, renewed, f.v.Token())
}
