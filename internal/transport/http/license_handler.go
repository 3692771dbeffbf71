package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	licenseErrors "licensecore/internal/errors"
	"licensecore/internal/middleware"
)

// ActivationRequest is the body of POST /api/license/activate
type ActivationRequest struct {
	LicenseKey string `json:"licenseKey" validate:"required,min=16,max=32"`
}

// LicenseHandler handles license and grace period requests
type LicenseHandler struct {
	service LicenseService
	grace   GraceService
	decoder *middleware.RequestDecoder
	respond func(w http.ResponseWriter, r *http.Request, err error)
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service LicenseService, grace GraceService, decoder *middleware.RequestDecoder,
	respond func(w http.ResponseWriter, r *http.Request, err error), logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		grace:   grace,
		decoder: decoder,
		respond: respond,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// Routes returns a chi router for license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetStatus)
	r.Post("/validate", h.Validate)
	r.Post("/activate", h.Activate)
	r.Post("/deactivate", h.Deactivate)
	return r
}

// GetStatus handles GET /api/license
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Snapshot())
}

// Validate handles POST /api/license/validate. The result may come from the
// offline cache, which the response reports.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(TracerName).Start(r.Context(), "license_handler.validate")
	defer span.End()

	result, err := h.service.ValidateCurrent(ctx)
	if err != nil {
		h.fail(w, r, span, err)
		return
	}

	span.SetAttributes(attribute.Bool("license.offline", result.IsOfflineValidation))
	render.JSON(w, r, result)
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(TracerName).Start(r.Context(), "license_handler.activate")
	defer span.End()

	var req ActivationRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		h.fail(w, r, span, err)
		return
	}

	result, err := h.service.Activate(ctx, req.LicenseKey)
	if err != nil {
		h.fail(w, r, span, err)
		return
	}

	h.logger.InfoContext(ctx, "License activated through status API",
		slog.String("license_type", string(result.License.Type)))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// Deactivate handles POST /api/license/deactivate
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(TracerName).Start(r.Context(), "license_handler.deactivate")
	defer span.End()

	if err := h.service.Deactivate(ctx); err != nil {
		h.fail(w, r, span, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GraceStatus handles GET /api/grace
func (h *LicenseHandler) GraceStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.grace.GetStatus())
}

func (h *LicenseHandler) fail(w http.ResponseWriter, r *http.Request, span trace.Span, err error) {
	span.RecordError(err)
	if code := licenseErrors.CodeOf(err); code != "" {
		span.SetAttributes(attribute.String("license.error_code", string(code)))
	}
	span.SetStatus(codes.Error, err.Error())
	h.respond(w, r, err)
}
