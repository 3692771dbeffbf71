package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"licensecore/internal/grace"
)

// HealthResponse is the body of GET /api/health
type HealthResponse struct {
	Status       string             `json:"status"`
	Online       bool               `json:"online"`
	Activated    bool               `json:"activated"`
	LicenseType  string             `json:"licenseType,omitempty"`
	WarningLevel grace.WarningLevel `json:"warningLevel"`
	PendingJobs  int                `json:"pendingJobs"`
	Timestamp    time.Time          `json:"timestamp"`
}

// FingerprintResponse is the body of GET /api/fingerprint
type FingerprintResponse struct {
	Fingerprint   string `json:"fingerprint"`
	StrengthScore int    `json:"strengthScore"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	deps    Dependencies
	respond func(w http.ResponseWriter, r *http.Request, err error)
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(deps Dependencies, respond func(w http.ResponseWriter, r *http.Request, err error), logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		deps:    deps,
		respond: respond,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health. The status is "degraded" while
// running on the offline cache and "unlicensed" once no usable license is left.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.License.Snapshot()
	gs := h.deps.Grace.GetStatus()
	stats := h.deps.Queue.GetStatistics()

	resp := HealthResponse{
		Status:       "ok",
		Online:       snap.Online,
		Activated:    snap.Activated,
		WarningLevel: gs.WarningLevel,
		PendingJobs:  stats.Pending,
		Timestamp:    time.Now().UTC(),
	}
	if snap.License != nil {
		resp.LicenseType = string(snap.License.Type)
	}

	switch {
	case !snap.Activated || (gs.IsOffline && !gs.IsValid):
		resp.Status = "unlicensed"
	case gs.IsOffline:
		resp.Status = "degraded"
	}

	render.JSON(w, r, resp)
}

// Fingerprint handles GET /api/fingerprint
func (h *HealthHandler) Fingerprint(w http.ResponseWriter, r *http.Request) {
	fp, err := h.deps.Fingerprints.Fingerprint(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "Fingerprint unavailable", slog.String("error", err.Error()))
		h.respond(w, r, err)
		return
	}
	render.JSON(w, r, FingerprintResponse{
		Fingerprint:   fp,
		StrengthScore: h.deps.Fingerprints.StrengthScore(r.Context()),
	})
}
