package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"licensecore/internal/app"
	"licensecore/internal/config"
	"licensecore/internal/infrastructure"
	"licensecore/internal/storage"
)

func main() {
	if err := newCLI().rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli holds the flags shared by every command. store and options replace the
// configured collaborators in tests.
type cli struct {
	configPath string
	serverURL  string
	verbose    bool
	jsonOutput bool

	store        storage.Store
	fingerprints app.Fingerprints
	options      []app.Option
}

func newCLI() *cli {
	return &cli{}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "licensectl",
		Short:         "Operate the license core from the command line",
		Version:       config.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "path to the YAML configuration file")
	flags.StringVar(&c.serverURL, "server-url", "", "license server URL, overrides the configuration")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level to stderr")
	flags.BoolVar(&c.jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		c.fingerprintCommand(),
		c.activateCommand(),
		c.validateCommand(),
		c.deactivateCommand(),
		c.graceCommand(),
		c.tokenCommand(),
	)
	return root
}

// environment is the configuration and logger of a single invocation
type environment struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (c *cli) load(cmd *cobra.Command) (*environment, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.serverURL != "" {
		cfg.License.ServerURL = c.serverURL
	}

	// The CLI never serves or exports anything.
	cfg.Status.Enabled = false
	cfg.Telemetry.MetricsEnabled = false
	cfg.Telemetry.TracingEnabled = false

	cfg.Logging.Output = "console"
	cfg.Logging.Level = "warn"
	if c.verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := infrastructure.NewLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, logger: logger}, nil
}

// openApp builds the application and restores its persisted state. The
// caller closes it.
func (c *cli) openApp(ctx context.Context, env *environment) (*app.Application, error) {
	opts := []app.Option{app.WithLogger(env.logger)}
	if c.store != nil {
		opts = append(opts, app.WithStore(c.store))
	}
	if c.fingerprints != nil {
		opts = append(opts, app.WithFingerprints(c.fingerprints))
	}
	opts = append(opts, c.options...)

	a, err := app.New(env.cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.Restore(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (c *cli) openStore(env *environment) (storage.Store, func(), error) {
	if c.store != nil {
		return c.store, func() {}, nil
	}
	store, err := storage.Open(env.cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s storage: %w", env.cfg.Storage.Driver, err)
	}
	return store, func() { _ = store.Close() }, nil
}

func (c *cli) fingerprintsFor(env *environment) app.Fingerprints {
	if c.fingerprints != nil {
		return c.fingerprints
	}
	return app.NewCollector(env.cfg.Fingerprint, env.logger)
}
