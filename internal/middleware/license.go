package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "licensecore/internal/errors"
	"licensecore/pkg/contracts/domain"
)

// LicenseProvider exposes the currently activated license
type LicenseProvider interface {
	CurrentLicense() *domain.License
}

// LicenseGate rejects requests while no usable license is activated.
// It only looks at local state and never calls the license server.
type LicenseGate struct {
	provider LicenseProvider
	logger   *slog.Logger
	now      func() time.Time
}

// NewLicenseGate creates a gate over provider
func NewLicenseGate(provider LicenseProvider, logger *slog.Logger) *LicenseGate {
	return &LicenseGate{
		provider: provider,
		logger:   logger.With(slog.String("component", "license_middleware")),
		now:      time.Now,
	}
}

// Handler returns the middleware handler function
func (g *LicenseGate) Handler(next http.Handler) http.Handler {
	respond := NewErrorResponder(g.logger)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer(TracerName).Start(r.Context(), "license_middleware.check",
			trace.WithAttributes(attribute.String("http.url", r.URL.Path)))
		defer span.End()

		if err := g.check(); err != nil {
			span.SetAttributes(attribute.String("license.error_code", string(apierrors.CodeOf(err))))
			respond(w, r.WithContext(ctx), err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *LicenseGate) check() error {
	lic := g.provider.CurrentLicense()
	switch {
	case lic == nil:
		return apierrors.ErrNoLicenseConfigured
	case lic.Status == domain.LicenseStatusRevoked:
		return apierrors.ErrLicenseRevoked
	case lic.Status == domain.LicenseStatusSuspended:
		return apierrors.ErrLicenseSuspended
	case lic.Status == domain.LicenseStatusExpired || lic.IsExpiredAt(g.now()):
		return apierrors.ErrLicenseExpired
	}
	return nil
}
