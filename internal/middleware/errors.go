package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "licensecore/internal/errors"
	"licensecore/internal/infrastructure"
)

// writeError renders e as JSON with the request's trace ID
func writeError(w http.ResponseWriter, r *http.Request, e *apierrors.APIError) {
	traceID := infrastructure.GetTraceID(r.Context())
	if traceID == "" {
		traceID = GetReqID(r.Context())
	}
	_ = render.Render(w, r, e.WithTraceID(traceID))
}

// NewErrorResponder returns a function that maps err to an APIError, logs it
// and writes the response. Server-side failures log at error level.
func NewErrorResponder(logger *slog.Logger) func(w http.ResponseWriter, r *http.Request, err error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		apiErr := apierrors.FromError(err)

		level := slog.LevelWarn
		if apiErr.StatusCode >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(r.Context(), level, "request error",
			"error", err.Error(),
			"error_code", apiErr.ErrorCode,
			"status", apiErr.StatusCode,
			"method", r.Method,
			"path", r.URL.Path,
		)

		writeError(w, r, apiErr)
	}
}
