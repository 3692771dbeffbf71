package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"licensecore/internal/config"
	"licensecore/internal/grace"
	"licensecore/internal/infrastructure"
	"licensecore/internal/license"
	"licensecore/internal/middleware"
	"licensecore/internal/operations"
	"licensecore/internal/security"
	"licensecore/internal/storage"
	"licensecore/internal/token"
	handlers "licensecore/internal/transport/http"
	ws "licensecore/internal/websocket"
	"licensecore/pkg/contracts/domain"
)

// Fingerprints is the device identity used by the validator and the status API
type Fingerprints interface {
	Fingerprint(ctx context.Context) (string, error)
	StrengthScore(ctx context.Context) int
}

// Option customizes the application
type Option func(*options)

type options struct {
	logger       *slog.Logger
	client       license.ServerClient
	fingerprints Fingerprints
	processor    operations.Processor
	store        storage.Store
	now          func() time.Time
}

// WithLogger sets the root logger. The global logger is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithServerClient replaces the HTTP license server client
func WithServerClient(c license.ServerClient) Option {
	return func(o *options) { o.client = c }
}

// WithFingerprints replaces the hardware identity collector
func WithFingerprints(f Fingerprints) Option {
	return func(o *options) { o.fingerprints = f }
}

// WithProcessor sets the job processor. Jobs are only logged otherwise.
func WithProcessor(p operations.Processor) Option {
	return func(o *options) { o.processor = p }
}

// WithStore replaces the store opened from configuration
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// WithClock sets the time source shared by the validator, grace manager and queue
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Application holds the wired license core
type Application struct {
	Config       *config.Config
	Logger       *slog.Logger
	OTel         *infrastructure.OTelProviders
	Store        storage.Store
	Fingerprints Fingerprints
	Validator    *license.Validator
	Grace        *grace.Manager
	Queue        *operations.JobQueue
	Hub          *ws.Hub
	StatusAPI    *handlers.StatusServer
	Server       *http.Server

	now         func() time.Time
	unsubscribe []func()
}

// New wires every component from cfg. Nothing runs until Run is called.
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config: cfg,
		Logger: infrastructure.WithComponent(logger, "app"),
		OTel:   providers,
		now:    o.now,
	}

	client := o.client
	if client == nil {
		httpClient, err := handlers.NewLicenseClient(cfg.License, handlers.WithClientLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create license client: %w", err)
		}
		client = httpClient
	}

	app.Store = o.store
	if app.Store == nil {
		if app.Store, err = storage.Open(cfg.Storage); err != nil {
			return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Driver, err)
		}
	}

	app.Fingerprints = o.fingerprints
	if app.Fingerprints == nil {
		app.Fingerprints = NewCollector(cfg.Fingerprint, logger)
	}

	if err := app.buildComponents(client, o.processor, logger); err != nil {
		return nil, err
	}
	app.wireEvents()
	if err := app.buildStatusAPI(logger); err != nil {
		return nil, err
	}

	return app, nil
}

func (a *Application) buildComponents(client license.ServerClient, processor operations.Processor, logger *slog.Logger) error {
	meter := a.OTel.Meter

	licenseMetrics, err := license.InitializeLicenseMetrics(meter)
	if err != nil {
		return fmt.Errorf("failed to initialize license metrics: %w", err)
	}
	graceMetrics, err := grace.InitializeGraceMetrics(meter)
	if err != nil {
		return fmt.Errorf("failed to initialize grace metrics: %w", err)
	}
	queueMetrics, err := operations.InitializeQueueMetrics(meter)
	if err != nil {
		return fmt.Errorf("failed to initialize queue metrics: %w", err)
	}
	wsMetrics, err := ws.NewOTelMetrics(meter)
	if err != nil {
		return fmt.Errorf("failed to initialize websocket metrics: %w", err)
	}

	validatorOpts := []license.Option{
		license.WithStore(a.Store),
		license.WithMetrics(licenseMetrics),
		license.WithLogger(logger),
		license.WithClock(a.now),
		license.WithOnline(!a.Config.License.StartOffline),
		license.WithRefreshThreshold(a.Config.License.RefreshThreshold),
	}
	if secret := a.Config.License.TokenSecret; secret != "" {
		codec, err := token.NewCodec(token.Config{
			Secret:    []byte(secret),
			Algorithm: token.Algorithm(a.Config.License.TokenAlgorithm),
			Issuer:    a.Config.License.TokenIssuer,
			Audience:  a.Config.License.TokenAudience,
		}, token.WithClock(a.now))
		if err != nil {
			return fmt.Errorf("failed to create token codec: %w", err)
		}
		validatorOpts = append(validatorOpts, license.WithCodec(codec))
	}
	a.Validator = license.NewValidator(client, a.Fingerprints, validatorOpts...)

	a.Grace = grace.NewManager(a.Config.Grace,
		grace.WithStore(a.Store),
		grace.WithMetrics(graceMetrics),
		grace.WithLogger(logger),
		grace.WithClock(a.now))

	if processor == nil {
		processor = loggingProcessor(infrastructure.WithComponent(logger, "job_processor"))
	}
	a.Queue = operations.NewJobQueue(processor, a.Config.Queue,
		operations.WithGraceStatus(a.Grace),
		operations.WithStore(a.Store),
		operations.WithMetrics(queueMetrics),
		operations.WithLogger(logger),
		operations.WithClock(a.now))

	a.Hub = ws.NewHub(logger, wsMetrics)
	return nil
}

func (a *Application) buildStatusAPI(logger *slog.Logger) error {
	httpMetrics, err := middleware.InitializeHTTPMetrics(a.OTel.Meter)
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP metrics: %w", err)
	}

	a.StatusAPI = handlers.NewStatusServer(handlers.Dependencies{
		License:      a.Validator,
		Grace:        a.Grace,
		Queue:        a.Queue,
		Fingerprints: a.Fingerprints,
		Events:       ws.ServeWS(a.Hub),
		Metrics:      a.OTel.PrometheusHTTP,
		HTTPMetrics:  httpMetrics,
	}, logger)

	if a.Config.Status.Enabled {
		a.Server = &http.Server{
			Addr:              a.Config.Status.ListenAddr,
			Handler:           a.StatusAPI.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}
	return nil
}

// wireEvents connects validator outcomes to the grace manager and the queue,
// and streams every component's events to websocket clients.
func (a *Application) wireEvents() {
	a.unsubscribe = append(a.unsubscribe,
		a.Validator.Subscribe(a.onLicenseEvent),
		a.Validator.Subscribe(ws.Forward[license.Event](a.Hub, ws.TypeLicense)),
		a.Grace.Subscribe(ws.Forward[grace.Event](a.Hub, ws.TypeGrace)),
		a.Queue.Subscribe(ws.Forward[operations.Event](a.Hub, ws.TypeJob)),
	)
}

func (a *Application) onLicenseEvent(ev license.Event) {
	ctx := context.Background()

	switch ev.Type {
	case license.EventValidated, license.EventActivated:
		if ev.Offline {
			a.Grace.GoOffline(ctx, ev.License)
		} else {
			a.Grace.RecordOnlineValidation(ctx, ev.License)
		}
		a.Queue.UpdateLicense(ctx, ev.License)
	case license.EventOfflineFallback:
		a.Grace.GoOffline(ctx, a.Validator.CurrentLicense())
	case license.EventRejected, license.EventDeactivated:
		a.Queue.UpdateLicense(ctx, a.Validator.CurrentLicense())
	}
}

// Start restores persisted state and validates the stored license once.
// A failed validation is logged; the agent keeps running on whatever the
// validator and grace manager allow.
func (a *Application) Start(ctx context.Context) error {
	if err := a.Restore(ctx); err != nil {
		return err
	}
	a.CheckLicense(ctx)
	return nil
}

// Restore loads the license, grace and queue state from storage without
// contacting the license server.
func (a *Application) Restore(ctx context.Context) error {
	if err := a.Validator.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to restore license state: %w", err)
	}
	if err := a.Grace.Start(ctx); err != nil {
		return fmt.Errorf("failed to start grace manager: %w", err)
	}
	if err := a.Queue.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore job queue: %w", err)
	}
	a.Queue.UpdateLicense(ctx, a.Validator.CurrentLicense())
	return nil
}

// CheckLicense renews the token when needed and revalidates the activated
// license. It does nothing while no license is activated.
func (a *Application) CheckLicense(ctx context.Context) {
	if a.Validator.CurrentLicense() == nil {
		a.Logger.InfoContext(ctx, "No license activated, skipping validation")
		return
	}

	refreshed, err := a.Validator.RefreshToken(ctx)
	if refreshed {
		// RefreshToken validated through the server already
		a.logCheck(ctx, err)
		return
	}
	_, err = a.Validator.ValidateCurrent(ctx)
	a.logCheck(ctx, err)
}

func (a *Application) logCheck(ctx context.Context, err error) {
	if err != nil {
		a.Logger.WarnContext(ctx, "License check failed", slog.String("error", err.Error()))
		return
	}
	status := a.Grace.GetStatus()
	a.Logger.InfoContext(ctx, "License check completed",
		slog.Bool("offline", status.IsOffline),
		slog.String("warning_level", string(status.WarningLevel)))
}

// Run starts the application and blocks until ctx is canceled, then shuts
// everything down.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return a.Queue.Run(gctx, a.Config.Queue.Workers)
	})
	if interval := a.Config.License.CheckInterval; interval > 0 {
		g.Go(func() error {
			a.checkLoop(gctx, interval)
			return nil
		})
	}
	if a.Server != nil {
		ln, err := net.Listen("tcp", a.Server.Addr)
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
			return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
		}
		a.Logger.InfoContext(ctx, "Status API listening", slog.String("address", ln.Addr().String()))
		g.Go(func() error {
			if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.Config.Status.ShutdownTimeout)
			defer cancel()
			return a.Server.Shutdown(shutdownCtx)
		})
	}

	a.Logger.InfoContext(ctx, "License core started",
		slog.String("version", config.AppVersion),
		slog.Bool("online", a.Validator.IsOnline()))

	err := g.Wait()
	a.Close(context.WithoutCancel(ctx))
	return err
}

func (a *Application) checkLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.CheckLicense(infrastructure.EnsureTraceID(ctx))
		}
	}
}

// Close stops background work and flushes state. Run calls it on the way
// out; callers that only used Restore call it themselves.
func (a *Application) Close(ctx context.Context) {
	a.Logger.InfoContext(ctx, "Shutting down license core")

	for _, unsubscribe := range a.unsubscribe {
		unsubscribe()
	}
	a.Grace.Stop()

	if err := a.Queue.SaveSnapshot(ctx); err != nil {
		a.Logger.ErrorContext(ctx, "Failed to save job queue", slog.String("error", err.Error()))
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.ErrorContext(ctx, "Failed to close storage", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Status.ShutdownTimeout)
	defer cancel()
	if err := a.OTel.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Shutdown complete")
}

// loggingProcessor completes every job after logging it
func loggingProcessor(logger *slog.Logger) operations.Processor {
	return operations.ProcessorFunc(func(ctx context.Context, job *domain.Job) error {
		logger.InfoContext(ctx, "Job processed",
			slog.String("job_id", job.ID),
			slog.String("job_type", job.Type),
			slog.Int("batch_size", job.BatchSize))
		return nil
	})
}

// NewCollector builds the hardware identity collector from configuration
func NewCollector(cfg config.FingerprintConfig, logger *slog.Logger) *security.Collector {
	return security.NewCollector(fingerprintConfig(cfg),
		security.WithProbeTimeout(cfg.ProbeTimeout),
		security.WithCacheTTL(cfg.CacheTTL),
		security.WithLogger(logger))
}

func fingerprintConfig(cfg config.FingerprintConfig) security.FingerprintConfig {
	return security.FingerprintConfig{
		Algorithm:          security.HashAlgorithm(cfg.Algorithm),
		IncludeSystemUUID:  cfg.IncludeSystemUUID,
		IncludeHostname:    cfg.IncludeHostname,
		IncludeCPU:         cfg.IncludeCPU,
		IncludeMemory:      cfg.IncludeMemory,
		IncludeMAC:         cfg.IncludeMAC,
		IncludeDisk:        cfg.IncludeDisk,
		IncludeBIOS:        cfg.IncludeBIOS,
		IncludeMotherboard: cfg.IncludeMotherboard,
	}
}
