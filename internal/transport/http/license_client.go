package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"licensecore/internal/config"
	licenseErrors "licensecore/internal/errors"
	"licensecore/internal/infrastructure"
	"licensecore/pkg/contracts/domain"
)

// TracerName is the instrumentation scope for this package
const TracerName = "licensecore/transport/http"

// Endpoint paths on the license server
const (
	PathActivate   = "/licenses/activate"
	PathValidate   = "/licenses/validate"
	PathDeactivate = "/licenses/deactivate"
)

const (
	maxResponseBytes = 1 << 20
	userAgent        = "licensecore-client/1.0"
)

// LicenseClient talks to the license server over its JSON endpoints. Every
// request is validated, rate limited and retried on transport failures.
type LicenseClient struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	validate *validator.Validate
	logger   *slog.Logger
	attempts uint
	delay    time.Duration
}

// ClientOption configures a LicenseClient
type ClientOption func(*LicenseClient)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(lc *LicenseClient) { lc.http = c }
}

// WithClientLogger sets the logger
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(lc *LicenseClient) { lc.logger = infrastructure.WithComponent(l, "license_client") }
}

// NewLicenseClient creates a client for cfg.ServerURL
func NewLicenseClient(cfg config.LicenseConfig, opts ...ClientOption) (*LicenseClient, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("license server URL is required")
	}

	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
	}

	c := &LicenseClient{
		baseURL:  strings.TrimRight(cfg.ServerURL, "/"),
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		limiter:  rate.NewLimiter(limit, burst),
		validate: validator.New(),
		logger:   infrastructure.WithComponent(nil, "license_client"),
		attempts: attempts,
		delay:    cfg.RetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Activate calls POST /licenses/activate
func (c *LicenseClient) Activate(ctx context.Context, req domain.ActivationRequest) (*domain.ActivationResponse, error) {
	var resp domain.ActivationResponse
	if err := c.post(ctx, PathActivate, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Validate calls POST /licenses/validate
func (c *LicenseClient) Validate(ctx context.Context, req domain.ValidationRequest) (*domain.ValidationResponse, error) {
	var resp domain.ValidationResponse
	if err := c.post(ctx, PathValidate, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Deactivate calls POST /licenses/deactivate
func (c *LicenseClient) Deactivate(ctx context.Context, req domain.DeactivationRequest) (*domain.DeactivationResponse, error) {
	var resp domain.DeactivationResponse
	if err := c.post(ctx, PathDeactivate, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// post sends body to path and decodes the reply into out. The returned error
// is always a *errors.LicenseError.
func (c *LicenseClient) post(ctx context.Context, path string, body, out any) error {
	if err := c.validate.Struct(body); err != nil {
		return requestError(err)
	}

	ctx = infrastructure.EnsureTraceID(ctx)
	ctx, span := otel.Tracer(TracerName).Start(ctx, "license_client"+strings.ReplaceAll(path, "/", "."),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.route", path)))
	defer span.End()

	payload, err := json.Marshal(body)
	if err != nil {
		return licenseErrors.WrapLicenseError(licenseErrors.CodeServerError, fmt.Errorf("failed to encode request: %w", err))
	}

	err = retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return licenseErrors.WrapLicenseError(licenseErrors.CodeNetworkError, err)
			}
			return c.attempt(ctx, path, payload, out)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && licenseErrors.CodeOf(err).IsNetworkClass()
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.WarnContext(ctx, "license server request failed, retrying",
				slog.String("path", path),
				slog.Uint64("attempt", uint64(n+1)),
				slog.String("error", err.Error()))
		}),
	)
	if err == nil {
		return nil
	}

	var le *licenseErrors.LicenseError
	if !errors.As(err, &le) {
		le = licenseErrors.WrapLicenseError(licenseErrors.CodeNetworkError, err)
	}
	span.RecordError(le)
	span.SetStatus(codes.Error, string(le.Code))
	return le
}

// attempt performs a single round trip. 5xx replies are SERVER_ERROR so they
// are retried; any other reply carries a decision in its body.
func (c *LicenseClient) attempt(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return licenseErrors.WrapLicenseError(licenseErrors.CodeNetworkError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Trace-ID", traceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return licenseErrors.WrapLicenseError(licenseErrors.CodeNetworkError, err)
	}
	defer drainAndClose(resp.Body)

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusInternalServerError {
		return licenseErrors.NewLicenseError(licenseErrors.CodeServerError,
			fmt.Sprintf("license server returned %d", resp.StatusCode))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return licenseErrors.WrapLicenseError(licenseErrors.CodeServerError,
			fmt.Errorf("failed to decode %d response: %w", resp.StatusCode, err))
	}
	return nil
}

// requestError maps a DTO validation failure onto the field's error code
func requestError(err error) *licenseErrors.LicenseError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Field() {
		case "LicenseKey":
			return licenseErrors.WrapLicenseError(licenseErrors.CodeInvalidLicenseKey, err)
		case "HardwareFingerprint":
			return licenseErrors.WrapLicenseError(licenseErrors.CodeFingerprintError, err)
		}
	}
	return licenseErrors.WrapLicenseError(licenseErrors.CodeServerError, fmt.Errorf("invalid request: %w", err))
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxResponseBytes))
	_ = body.Close()
}
