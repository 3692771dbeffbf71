package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"licensecore/internal/grace"
	"licensecore/internal/infrastructure"
	"licensecore/internal/license"
	"licensecore/internal/middleware"
	"licensecore/internal/operations"
	"licensecore/pkg/contracts/domain"
)

const (
	apiRateLimitRPS   = 50
	apiRateLimitBurst = 100
)

// LicenseService is the validator surface used by the status API
type LicenseService interface {
	Snapshot() license.Snapshot
	CurrentLicense() *domain.License
	ValidateCurrent(ctx context.Context) (*license.Result, error)
	Activate(ctx context.Context, key string) (*license.Result, error)
	Deactivate(ctx context.Context) error
}

// GraceService reports the offline grace period
type GraceService interface {
	GetStatus() grace.Status
}

// QueueService is the job queue surface used by the status API
type QueueService interface {
	AddJob(ctx context.Context, req operations.AddJobRequest) (*domain.Job, error)
	GetJob(id string) (*domain.Job, error)
	ListJobs(filter operations.JobFilter) []*domain.Job
	ClearQueue(ctx context.Context) int
	RetryBlockedJob(ctx context.Context, id string) error
	RetryFailedJobs(ctx context.Context) int
	GetStatistics() operations.Statistics
}

// FingerprintService exposes the device fingerprint
type FingerprintService interface {
	Fingerprint(ctx context.Context) (string, error)
	StrengthScore(ctx context.Context) int
}

// Dependencies are the collaborators of the status API. Events, Metrics and
// HTTPMetrics are optional.
type Dependencies struct {
	License      LicenseService
	Grace        GraceService
	Queue        QueueService
	Fingerprints FingerprintService
	Events       http.Handler
	Metrics      http.Handler
	HTTPMetrics  *middleware.HTTPMetrics
}

// StatusServer serves the local status API
type StatusServer struct {
	deps    Dependencies
	logger  *slog.Logger
	decoder *middleware.RequestDecoder
	respond func(w http.ResponseWriter, r *http.Request, err error)
}

// NewStatusServer creates the status API over deps
func NewStatusServer(deps Dependencies, logger *slog.Logger) *StatusServer {
	logger = infrastructure.WithComponent(logger, "status_api")
	return &StatusServer{
		deps:    deps,
		logger:  logger,
		decoder: middleware.NewRequestDecoder(middleware.DefaultMaxBodySize),
		respond: middleware.NewErrorResponder(logger),
	}
}

// Handler builds the router with its middleware chain
func (s *StatusServer) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Tracing(s.deps.HTTPMetrics))
	r.Use(middleware.StructuredLogger(s.logger))
	r.Use(middleware.Recoverer(s.logger))
	r.Use(middleware.SecurityHeaders)

	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewRateLimiter(apiRateLimitRPS, apiRateLimitBurst, s.logger).Handler)

		health := NewHealthHandler(s.deps, s.respond, s.logger)
		r.Get("/health", health.HealthCheck)
		r.Get("/fingerprint", health.Fingerprint)

		lh := NewLicenseHandler(s.deps.License, s.deps.Grace, s.decoder, s.respond, s.logger)
		r.Mount("/license", lh.Routes())
		r.Get("/grace", lh.GraceStatus)

		gate := middleware.NewLicenseGate(s.deps.License, s.logger)
		oh := NewOperationsHandler(s.deps.Queue, gate, s.decoder, s.respond, s.logger)
		r.Mount("/jobs", oh.Routes())

		if s.deps.Events != nil {
			r.Method(http.MethodGet, "/events", s.deps.Events)
		}
	})

	return r
}
