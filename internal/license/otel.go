package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	licenseErrors "licensecore/internal/errors"
)

const (
	TracerName = "licensecore/license"
	MeterName  = "licensecore/license"
)

// LicenseMetrics holds all license-specific OpenTelemetry metrics
type LicenseMetrics struct {
	// Validation metrics
	ValidationAttempts metric.Int64Counter
	ValidationSuccess  metric.Int64Counter
	ValidationFailures metric.Int64Counter
	ValidationDuration metric.Float64Histogram
	OfflineFallbacks   metric.Int64Counter

	// Activation metrics
	ActivationAttempts metric.Int64Counter
	ActivationFailures metric.Int64Counter

	// Token and fingerprint metrics
	TokenFailures         metric.Int64Counter
	FingerprintGeneration metric.Float64Histogram
}

// InitializeLicenseMetrics creates all license-specific metrics
func InitializeLicenseMetrics(meter metric.Meter) (*LicenseMetrics, error) {
	m := &LicenseMetrics{}
	var err error

	if m.ValidationAttempts, err = meter.Int64Counter(
		"license_validation_attempts_total",
		metric.WithDescription("Total number of license validation attempts"),
	); err != nil {
		return nil, fmt.Errorf("failed to create validation attempts counter: %w", err)
	}

	if m.ValidationSuccess, err = meter.Int64Counter(
		"license_validation_success_total",
		metric.WithDescription("Total number of successful license validations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create validation success counter: %w", err)
	}

	if m.ValidationFailures, err = meter.Int64Counter(
		"license_validation_failures_total",
		metric.WithDescription("Total number of failed license validations by error code"),
	); err != nil {
		return nil, fmt.Errorf("failed to create validation failures counter: %w", err)
	}

	if m.ValidationDuration, err = meter.Float64Histogram(
		"license_validation_duration_seconds",
		metric.WithDescription("License validation duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create validation duration histogram: %w", err)
	}

	if m.OfflineFallbacks, err = meter.Int64Counter(
		"license_offline_fallbacks_total",
		metric.WithDescription("Total number of validations answered from the offline cache"),
	); err != nil {
		return nil, fmt.Errorf("failed to create offline fallbacks counter: %w", err)
	}

	if m.ActivationAttempts, err = meter.Int64Counter(
		"license_activation_attempts_total",
		metric.WithDescription("Total number of license activation attempts"),
	); err != nil {
		return nil, fmt.Errorf("failed to create activation attempts counter: %w", err)
	}

	if m.ActivationFailures, err = meter.Int64Counter(
		"license_activation_failures_total",
		metric.WithDescription("Total number of failed license activations by error code"),
	); err != nil {
		return nil, fmt.Errorf("failed to create activation failures counter: %w", err)
	}

	if m.TokenFailures, err = meter.Int64Counter(
		"license_token_failures_total",
		metric.WithDescription("Total number of rejected license tokens by error code"),
	); err != nil {
		return nil, fmt.Errorf("failed to create token failures counter: %w", err)
	}

	if m.FingerprintGeneration, err = meter.Float64Histogram(
		"license_fingerprint_generation_duration_seconds",
		metric.WithDescription("Device fingerprint generation duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create fingerprint histogram: %w", err)
	}

	return m, nil
}

// traceOperation wraps a validator operation in a span and records the outcome
func (v *Validator) traceOperation(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "license."+operation,
		trace.WithAttributes(
			attribute.String("license.operation", operation),
			attribute.String("component", "license_validator"),
		),
	)
	defer span.End()

	start := v.now()
	err := fn(ctx)
	duration := v.now().Sub(start)

	span.SetAttributes(
		attribute.Float64("license.duration_ms", float64(duration.Milliseconds())),
		attribute.Bool("license.success", err == nil),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("license.error_code", string(licenseErrors.CodeOf(err))))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

func (v *Validator) recordValidation(ctx context.Context, duration time.Duration, offline bool, err error) {
	if v.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("offline", offline))
	v.metrics.ValidationAttempts.Add(ctx, 1, attrs)
	v.metrics.ValidationDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		v.metrics.ValidationFailures.Add(ctx, 1,
			metric.WithAttributes(attribute.String("code", string(licenseErrors.CodeOf(err)))))
		return
	}
	v.metrics.ValidationSuccess.Add(ctx, 1, attrs)
}

func (v *Validator) recordOfflineFallback(ctx context.Context) {
	if v.metrics != nil {
		v.metrics.OfflineFallbacks.Add(ctx, 1)
	}
}

func (v *Validator) recordActivation(ctx context.Context, err error) {
	if v.metrics == nil {
		return
	}
	v.metrics.ActivationAttempts.Add(ctx, 1)
	if err != nil {
		v.metrics.ActivationFailures.Add(ctx, 1,
			metric.WithAttributes(attribute.String("code", string(licenseErrors.CodeOf(err)))))
	}
}

func (v *Validator) recordTokenFailure(ctx context.Context, code string) {
	if v.metrics != nil {
		v.metrics.TokenFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
	}
}

func (v *Validator) recordFingerprint(ctx context.Context, duration time.Duration) {
	if v.metrics != nil {
		v.metrics.FingerprintGeneration.Record(ctx, duration.Seconds())
	}
}
