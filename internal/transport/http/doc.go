// Package http holds both HTTP sides of the license core.
//
// LicenseClient is the outbound client for the license server endpoints
// (/licenses/activate, /licenses/validate, /licenses/deactivate). It validates
// request DTOs, rate limits, and retries transport and 5xx failures; every
// error it returns is an *errors.LicenseError so the validator can tell a
// network failure from a server decision.
//
// StatusServer is the local status API used by operators and dashboards:
//
//	GET    /api/health
//	GET    /api/fingerprint
//	GET    /api/license
//	POST   /api/license/validate
//	POST   /api/license/activate
//	POST   /api/license/deactivate
//	GET    /api/grace
//	GET    /api/jobs
//	POST   /api/jobs
//	DELETE /api/jobs
//	GET    /api/jobs/stats
//	POST   /api/jobs/retry-failed
//	GET    /api/jobs/{id}
//	POST   /api/jobs/{id}/retry
//	GET    /api/events
//	GET    /metrics
//
// Handlers stay thin: they decode, call a service interface, and render
// either the result or an errors.APIError.
package http
