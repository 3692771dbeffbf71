// Package app wires the license core together and manages its lifecycle.
//
// # Wiring
//
// New builds every component from a config.Config:
//
//	1. OpenTelemetry providers (tracing, Prometheus metrics)
//	2. Storage (memory, file or SQLite)
//	3. Hardware identity collector
//	4. HTTP license server client and token codec
//	5. Validator, grace manager and job queue
//	6. Websocket hub and the local status API
//
// Validator events drive the other components: an online validation or an
// activation records a successful check with the grace manager, a network
// fallback starts the offline grace period, and every license change is
// pushed to the job queue. All component events are also streamed to
// websocket clients.
//
// # Lifecycle
//
//	app, err := app.New(cfg, app.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	return app.Run(ctx)
//
// Run restores the persisted state, validates the stored license once and
// then runs the hub, the queue workers, the periodic license check and the
// status API until ctx is canceled. Errors are returned to the caller; the
// package never exits the process.
package app
