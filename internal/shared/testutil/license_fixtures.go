package testutil

import (
	"context"
	"sync"
	"time"

	licenseErrors "licensecore/internal/errors"
	"licensecore/pkg/contracts/domain"
)

// Test license keys
const (
	ValidLicenseKey   = "ABCD-EFGH-IJKL-MNOP"
	OtherLicenseKey   = "WXYZ-1234-5678-ABCD"
	TestFingerprint   = "9f2c4e1a7b3d5f6e8a0c1b2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c0d1e2f"
	OtherFingerprint  = "0000000000000000000000000000000000000000000000000000000000000001"
	TestTokenSecret   = "0123456789abcdef0123456789abcdef"
	TestTokenIssuer   = "licensecore"
	TestTokenAudience = "licensecore-client"
)

// NewLicense builds an active license of the given tier with the tier's
// default features, expiring expiresIn after now.
func NewLicense(key string, tier domain.LicenseType, now time.Time, expiresIn time.Duration) *domain.License {
	limits := domain.LimitsFor(tier)
	activated := now
	lic := &domain.License{
		ID:                  "lic_" + string(tier),
		Key:                 key,
		Type:                tier,
		Status:              domain.LicenseStatusActive,
		HardwareFingerprint: TestFingerprint,
		ActivatedAt:         &activated,
		MaxActivations:      limits.MaxActivations,
		CurrentActivations:  1,
		Features:            append([]string(nil), limits.DefaultFeatures...),
	}
	if expiresIn > 0 {
		expires := now.Add(expiresIn)
		lic.ExpiresAt = &expires
	}
	return lic
}

// ProfessionalLicense is the license used by the end-to-end scenario
func ProfessionalLicense(now time.Time) *domain.License {
	return NewLicense(ValidLicenseKey, domain.LicenseTypeProfessional, now, 30*24*time.Hour)
}

// StaticFingerprint implements the validator's fingerprint provider
type StaticFingerprint struct {
	Value string
	Score int
	Err   error
}

// Fingerprint returns the configured value
func (s StaticFingerprint) Fingerprint(context.Context) (string, error) {
	return s.Value, s.Err
}

// StrengthScore returns Score
func (s StaticFingerprint) StrengthScore(context.Context) int {
	return s.Score
}

// FakeServer is a scriptable license server client. Unset funcs answer with
// a successful response built from License and Token.
type FakeServer struct {
	mu sync.Mutex

	License *domain.License
	Token   string

	ActivateFunc   func(domain.ActivationRequest) (*domain.ActivationResponse, error)
	ValidateFunc   func(domain.ValidationRequest) (*domain.ValidationResponse, error)
	DeactivateFunc func(domain.DeactivationRequest) (*domain.DeactivationResponse, error)

	ActivateCalls   []domain.ActivationRequest
	ValidateCalls   []domain.ValidationRequest
	DeactivateCalls []domain.DeactivationRequest
}

// Activate records the call and answers
func (f *FakeServer) Activate(_ context.Context, req domain.ActivationRequest) (*domain.ActivationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ActivateCalls = append(f.ActivateCalls, req)
	if f.ActivateFunc != nil {
		return f.ActivateFunc(req)
	}
	return &domain.ActivationResponse{Success: true, License: f.License.Clone(), Token: f.Token}, nil
}

// Validate records the call and answers
func (f *FakeServer) Validate(_ context.Context, req domain.ValidationRequest) (*domain.ValidationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ValidateCalls = append(f.ValidateCalls, req)
	if f.ValidateFunc != nil {
		return f.ValidateFunc(req)
	}
	return &domain.ValidationResponse{Valid: true, License: f.License.Clone(), Token: f.Token}, nil
}

// Deactivate records the call and answers
func (f *FakeServer) Deactivate(_ context.Context, req domain.DeactivationRequest) (*domain.DeactivationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeactivateCalls = append(f.DeactivateCalls, req)
	if f.DeactivateFunc != nil {
		return f.DeactivateFunc(req)
	}
	return &domain.DeactivationResponse{Success: true}, nil
}

// SetValidate swaps the validate behaviour under the lock
func (f *FakeServer) SetValidate(fn func(domain.ValidationRequest) (*domain.ValidationResponse, error)) {
	f.mu.Lock()
	f.ValidateFunc = fn
	f.mu.Unlock()
}

// Unreachable is a ValidateFunc simulating a network outage
func Unreachable(domain.ValidationRequest) (*domain.ValidationResponse, error) {
	return nil, licenseErrors.ErrNetwork
}

// Rejecting returns a ValidateFunc that answers with a business rejection
func Rejecting(code licenseErrors.Code) func(domain.ValidationRequest) (*domain.ValidationResponse, error) {
	return func(domain.ValidationRequest) (*domain.ValidationResponse, error) {
		return &domain.ValidationResponse{Valid: false, Error: code.Message(), ErrorCode: string(code)}, nil
	}
}

// Clock is a manually advanced time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
