package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "licensecore/internal/errors"
	"licensecore/internal/infrastructure"
	"licensecore/internal/shared/testutil"
	"licensecore/pkg/contracts/domain"
)

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) apierrors.APIError {
	t.Helper()
	var body apierrors.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetReqID(r.Context())
		assert.Equal(t, seen, infrastructure.GetTraceID(r.Context()))
	}))

	t.Run("generates an ID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("keeps the caller's ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, "req-123", seen)
		assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	})
}

func TestStructuredLogger(t *testing.T) {
	logger, logs := testutil.NewTestLogger()
	handler := RequestID(StructuredLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/license", nil))

	testutil.AssertLogContains(t, logs, slog.LevelInfo, "request completed")
	assert.True(t, logs.ContainsAttr("status", int64(http.StatusTeapot)))
}

func TestRecoverer(t *testing.T) {
	logger, logs := testutil.NewTestLogger()
	handler := RequestID(Recoverer(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-panic")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeAPIError(t, rec)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body.ErrorCode)
	assert.Equal(t, "req-panic", body.TraceID)
	testutil.AssertLogContains(t, logs, slog.LevelError, "panic recovered")
}

func TestRateLimiter(t *testing.T) {
	logger, _ := testutil.NewTestLogger()
	limiter := NewRateLimiter(0.001, 2, logger)
	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeAPIError(t, rec).ErrorCode)
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestErrorResponder(t *testing.T) {
	logger, logs := testutil.NewTestLogger()
	respond := NewErrorResponder(logger)

	rec := httptest.NewRecorder()
	respond(rec, httptest.NewRequest(http.MethodPost, "/api/license/activate", nil), apierrors.ErrMaxActivationsReached)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(apierrors.CodeMaxActivationsReached), decodeAPIError(t, rec).ErrorCode)
	testutil.AssertLogContains(t, logs, slog.LevelWarn, "request error")
}

type jobBody struct {
	Type     string `json:"type" validate:"required,max=8"`
	Priority int    `json:"priority" validate:"min=0,max=3"`
}

func TestRequestDecoder(t *testing.T) {
	dec := NewRequestDecoder(64)

	t.Run("valid body", func(t *testing.T) {
		var body jobBody
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":"export","priority":2}`))
		require.NoError(t, dec.Decode(req, &body))
		assert.Equal(t, "export", body.Type)
		assert.Equal(t, 2, body.Priority)
	})

	t.Run("field errors use json names", func(t *testing.T) {
		var body jobBody
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"priority":7}`))
		err := dec.Decode(req, &body)

		var apiErr *apierrors.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		details, ok := apiErr.Details.([]apierrors.ValidationError)
		require.True(t, ok)
		require.Len(t, details, 2)
		assert.Equal(t, "type", details[0].Field)
		assert.Equal(t, "type is required", details[0].Message)
		assert.Equal(t, "priority must be at most 3", details[1].Message)
	})

	t.Run("unknown fields", func(t *testing.T) {
		var body jobBody
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":"x","owner":"me"}`))
		err := dec.Decode(req, &body)
		var apiErr *apierrors.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "INVALID_REQUEST", apiErr.ErrorCode)
	})

	t.Run("decode json skips validation", func(t *testing.T) {
		var body jobBody
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"priority":7}`))
		require.NoError(t, dec.DecodeJSON(req, &body))
		assert.Equal(t, 7, body.Priority)

		req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":"x","owner":"me"}`))
		var apiErr *apierrors.APIError
		require.ErrorAs(t, dec.DecodeJSON(req, &body), &apiErr)
		assert.Equal(t, "INVALID_REQUEST", apiErr.ErrorCode)
	})

	t.Run("oversized body", func(t *testing.T) {
		var body jobBody
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 65)))
		assert.ErrorIs(t, dec.Decode(req, &body), apierrors.ErrPayloadTooLarge)
	})
}

type licenseHolder struct{ lic *domain.License }

func (h licenseHolder) CurrentLicense() *domain.License { return h.lic }

func TestLicenseGate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	active := testutil.ProfessionalLicense(now)

	revoked := active.Clone()
	revoked.Status = domain.LicenseStatusRevoked

	lapsed := testutil.NewLicense(testutil.ValidLicenseKey, domain.LicenseTypeStandard, now.Add(-48*time.Hour), 24*time.Hour)

	tests := []struct {
		name       string
		lic        *domain.License
		wantStatus int
		wantCode   string
	}{
		{"active", active, http.StatusNoContent, ""},
		{"none", nil, http.StatusNotFound, string(apierrors.CodeNoLicenseConfigured)},
		{"revoked", revoked, http.StatusForbidden, string(apierrors.CodeLicenseRevoked)},
		{"expired by date", lapsed, http.StatusForbidden, string(apierrors.CodeLicenseExpired)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger()
			gate := NewLicenseGate(licenseHolder{tt.lic}, logger)
			gate.now = func() time.Time { return now }

			rec := httptest.NewRecorder()
			gate.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeAPIError(t, rec).ErrorCode)
			}
		})
	}
}
