// Package grace tracks connectivity and the offline grace period.
//
// The manager has two states. Online carries no deadline. Offline records
// when grace started and how many days the tier allowed at that moment. The
// status (remaining days and hours, warning level) is computed from those
// timestamps and the clock, so it survives restarts: Start reloads the
// persisted OfflineState and resumes the periodic check.
//
// Warning levels escalate from none to warning (48h left by default), then
// critical (24h), then expired. Each change raises one event, and the
// periodic check stops itself once the period has expired.
package grace
