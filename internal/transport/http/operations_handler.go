package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "licensecore/internal/errors"
	"licensecore/internal/middleware"
	"licensecore/internal/operations"
	"licensecore/pkg/contracts/domain"
)

const maxListLimit = 1000

// OperationsHandler handles job queue requests
type OperationsHandler struct {
	queue   QueueService
	gate    *middleware.LicenseGate
	decoder *middleware.RequestDecoder
	respond func(w http.ResponseWriter, r *http.Request, err error)
	logger  *slog.Logger
}

// NewOperationsHandler creates a new operations handler. New jobs are only
// accepted through gate.
func NewOperationsHandler(queue QueueService, gate *middleware.LicenseGate, decoder *middleware.RequestDecoder,
	respond func(w http.ResponseWriter, r *http.Request, err error), logger *slog.Logger) *OperationsHandler {
	return &OperationsHandler{
		queue:   queue,
		gate:    gate,
		decoder: decoder,
		respond: respond,
		logger:  logger.With(slog.String("handler", "operations")),
	}
}

// Routes returns a chi router for job endpoints
func (h *OperationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListJobs)
	r.With(h.gate.Handler).Post("/", h.AddJob)
	r.Delete("/", h.ClearQueue)
	r.Get("/stats", h.Statistics)
	r.Post("/retry-failed", h.RetryFailed)
	r.Get("/{id}", h.GetJob)
	r.Post("/{id}/retry", h.RetryBlocked)
	return r
}

// AddJob handles POST /api/jobs. Field validation is left to the queue so
// every invalid job is reported as INVALID_JOB.
func (h *OperationsHandler) AddJob(w http.ResponseWriter, r *http.Request) {
	var req operations.AddJobRequest
	if err := h.decoder.DecodeJSON(r, &req); err != nil {
		h.respond(w, r, err)
		return
	}

	job, err := h.queue.AddJob(r.Context(), req)
	if err != nil {
		h.respond(w, r, operationError(err))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, job)
}

// ListJobs handles GET /api/jobs?status=&type=&since=&limit=
func (h *OperationsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseJobFilter(r)
	if err != nil {
		h.respond(w, r, err)
		return
	}
	jobs := h.queue.ListJobs(filter)
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	render.JSON(w, r, jobs)
}

// GetJob handles GET /api/jobs/{id}
func (h *OperationsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		h.respond(w, r, operationError(err))
		return
	}
	render.JSON(w, r, job)
}

// RetryBlocked handles POST /api/jobs/{id}/retry
func (h *OperationsHandler) RetryBlocked(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.queue.RetryBlockedJob(r.Context(), id); err != nil {
		h.respond(w, r, operationError(err))
		return
	}

	job, err := h.queue.GetJob(id)
	if err != nil {
		h.respond(w, r, operationError(err))
		return
	}
	render.JSON(w, r, job)
}

// RetryFailed handles POST /api/jobs/retry-failed
func (h *OperationsHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]int{"retried": h.queue.RetryFailedJobs(r.Context())})
}

// ClearQueue handles DELETE /api/jobs
func (h *OperationsHandler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	removed := h.queue.ClearQueue(r.Context())
	h.logger.InfoContext(r.Context(), "Job queue cleared", slog.Int("removed", removed))
	render.JSON(w, r, map[string]int{"removed": removed})
}

// Statistics handles GET /api/jobs/stats
func (h *OperationsHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.queue.GetStatistics())
}

func parseJobFilter(r *http.Request) (operations.JobFilter, error) {
	q := r.URL.Query()
	filter := operations.JobFilter{
		Status: domain.JobStatus(q.Get("status")),
		Type:   q.Get("type"),
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 || limit > maxListLimit {
			return filter, apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST",
				"limit must be between 0 and 1000", raw)
		}
		filter.Limit = limit
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apierrors.InvalidRequestWithError(err)
		}
		filter.Since = since
	}
	return filter, nil
}

// operationError maps queue errors onto API errors
func operationError(err error) error {
	var opErr *operations.OperationError
	if !errors.As(err, &opErr) {
		return err
	}

	switch opErr.Type {
	case operations.ErrorTypeValidation:
		details := opErr.Message
		if opErr.Cause != nil {
			details = opErr.Cause.Error()
		}
		return apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_JOB", opErr.Message, details)
	case operations.ErrorTypeNotFound:
		return apierrors.NotFoundError("job")
	case operations.ErrorTypeInvalidState:
		return apierrors.New(http.StatusConflict, "INVALID_JOB_STATE", opErr.Error())
	}
	return err
}
