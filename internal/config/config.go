package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
	License     LicenseConfig     `yaml:"license" envconfig:"LICENSE"`
	Fingerprint FingerprintConfig `yaml:"fingerprint" envconfig:"FINGERPRINT"`
	Grace       GraceConfig       `yaml:"grace" envconfig:"GRACE"`
	Queue       QueueConfig       `yaml:"queue" envconfig:"QUEUE"`
	Storage     StorageConfig     `yaml:"storage" envconfig:"STORAGE"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" envconfig:"TELEMETRY"`
	Status      StatusConfig      `yaml:"status" envconfig:"STATUS"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Output      string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	MaxSizeMB   int    `yaml:"max_size_mb" envconfig:"MAX_SIZE_MB" validate:"min=1"`
	MaxAgeDays  int    `yaml:"max_age_days" envconfig:"MAX_AGE_DAYS" validate:"min=0"`
	MaxBackups  int    `yaml:"max_backups" envconfig:"MAX_BACKUPS" validate:"min=0"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// LicenseConfig contains license server and token configuration
type LicenseConfig struct {
	ServerURL        string        `yaml:"server_url" envconfig:"SERVER_URL" validate:"omitempty,url"`
	RequestTimeout   time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
	RetryAttempts    uint          `yaml:"retry_attempts" envconfig:"RETRY_ATTEMPTS" validate:"min=1"`
	RetryDelay       time.Duration `yaml:"retry_delay" envconfig:"RETRY_DELAY"`
	RateLimitRPS     float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" validate:"gt=0"`
	RateLimitBurst   int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" validate:"min=1"`
	TokenSecret      string        `yaml:"token_secret" envconfig:"TOKEN_SECRET"`
	TokenIssuer      string        `yaml:"token_issuer" envconfig:"TOKEN_ISSUER" validate:"required"`
	TokenAudience    string        `yaml:"token_audience" envconfig:"TOKEN_AUDIENCE" validate:"required"`
	TokenAlgorithm   string        `yaml:"token_algorithm" envconfig:"TOKEN_ALGORITHM" validate:"oneof=HS256 HS384 HS512"`
	RefreshThreshold time.Duration `yaml:"refresh_threshold" envconfig:"REFRESH_THRESHOLD" validate:"gte=0"`
	CheckInterval    time.Duration `yaml:"check_interval" envconfig:"CHECK_INTERVAL" validate:"gte=0"`
	StartOffline     bool          `yaml:"start_offline" envconfig:"START_OFFLINE"`
}

// FingerprintConfig selects which identifiers feed the device fingerprint
type FingerprintConfig struct {
	Algorithm          string        `yaml:"algorithm" envconfig:"ALGORITHM" validate:"oneof=sha256 sha512 blake3"`
	IncludeSystemUUID  bool          `yaml:"include_system_uuid" envconfig:"INCLUDE_SYSTEM_UUID"`
	IncludeHostname    bool          `yaml:"include_hostname" envconfig:"INCLUDE_HOSTNAME"`
	IncludeCPU         bool          `yaml:"include_cpu" envconfig:"INCLUDE_CPU"`
	IncludeMemory      bool          `yaml:"include_memory" envconfig:"INCLUDE_MEMORY"`
	IncludeMAC         bool          `yaml:"include_mac" envconfig:"INCLUDE_MAC"`
	IncludeDisk        bool          `yaml:"include_disk" envconfig:"INCLUDE_DISK"`
	IncludeBIOS        bool          `yaml:"include_bios" envconfig:"INCLUDE_BIOS"`
	IncludeMotherboard bool          `yaml:"include_motherboard" envconfig:"INCLUDE_MOTHERBOARD"`
	ProbeTimeout       time.Duration `yaml:"probe_timeout" envconfig:"PROBE_TIMEOUT" validate:"gt=0"`
	CacheTTL           time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL" validate:"gt=0"`
}

// GraceConfig contains offline grace period configuration
type GraceConfig struct {
	CheckInterval     time.Duration `yaml:"check_interval" envconfig:"CHECK_INTERVAL" validate:"gt=0"`
	WarningThreshold  time.Duration `yaml:"warning_threshold" envconfig:"WARNING_THRESHOLD" validate:"gt=0"`
	CriticalThreshold time.Duration `yaml:"critical_threshold" envconfig:"CRITICAL_THRESHOLD" validate:"gt=0"`
}

// QueueConfig contains job queue configuration
type QueueConfig struct {
	Workers           int           `yaml:"workers" envconfig:"WORKERS" validate:"min=1"`
	PollInterval      time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL" validate:"gt=0"`
	DefaultMaxRetries int           `yaml:"default_max_retries" envconfig:"DEFAULT_MAX_RETRIES" validate:"min=0"`
}

// StorageConfig selects the persistence driver
type StorageConfig struct {
	Driver     string `yaml:"driver" envconfig:"DRIVER" validate:"oneof=memory file sqlite"`
	Path       string `yaml:"path" envconfig:"LOCATION"`
	Passphrase string `yaml:"passphrase" envconfig:"PASSPHRASE"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	TracingEnabled bool   `yaml:"tracing_enabled" envconfig:"TRACING_ENABLED"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// StatusConfig contains the local status API configuration
type StatusConfig struct {
	Enabled         bool          `yaml:"enabled" envconfig:"ENABLED"`
	ListenAddr      string        `yaml:"listen_addr" envconfig:"LISTEN_ADDR" validate:"required_if=Enabled true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Load builds the configuration from defaults, an optional YAML file and
// LICENSECORE_* environment variables, in increasing order of precedence.
// An empty path searches the usual locations.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getConfigFilePath()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg. Keys absent from the file keep their value.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) resolvePaths() error {
	if c.Storage.Driver != "memory" && c.Storage.Path == "" {
		dir, err := StateDir()
		if err != nil {
			return err
		}
		c.Storage.Path = DefaultStoragePath(dir, c.Storage.Driver)
	}
	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		dir, err := StateDir()
		if err != nil {
			return err
		}
		c.Logging.FilePath = DefaultLogPath(dir)
	}
	return nil
}

// validate validates the configuration
func (c *Config) validate() error {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.License.TokenAlgorithm = strings.ToUpper(c.License.TokenAlgorithm)
	c.Fingerprint.Algorithm = strings.ToLower(c.Fingerprint.Algorithm)

	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Grace.CriticalThreshold >= c.Grace.WarningThreshold {
		return fmt.Errorf("grace critical threshold %s must be below warning threshold %s",
			c.Grace.CriticalThreshold, c.Grace.WarningThreshold)
	}

	if c.License.TokenSecret != "" && len(c.License.TokenSecret) < MinTokenSecretLength {
		return fmt.Errorf("token secret must be at least %d bytes", MinTokenSecretLength)
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"licensecore.yaml",
		"configs/licensecore.yaml",
	}
	if dir, err := StateDir(); err == nil {
		locations = append(locations, ConfigFileIn(dir))
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			Output:     "console",
			MaxSizeMB:  MaxLogFileSizeMB,
			MaxAgeDays: MaxLogFileAge,
			MaxBackups: MaxLogFileBackups,
		},
		License: LicenseConfig{
			RequestTimeout:   DefaultRequestTimeout,
			RetryAttempts:    DefaultRetryAttempts,
			RetryDelay:       500 * time.Millisecond,
			RateLimitRPS:     DefaultLicenseRPS,
			RateLimitBurst:   DefaultLicenseBurst,
			TokenIssuer:      DefaultTokenIssuer,
			TokenAudience:    DefaultTokenAudience,
			TokenAlgorithm:   "HS256",
			RefreshThreshold: DefaultRefreshThreshold,
			CheckInterval:    DefaultLicenseCheckInterval,
		},
		Fingerprint: FingerprintConfig{
			Algorithm:         "sha256",
			IncludeSystemUUID: true,
			IncludeHostname:   true,
			IncludeCPU:        true,
			IncludeMAC:        true,
			ProbeTimeout:      DefaultProbeTimeout,
			CacheTTL:          FingerprintCacheTTL,
		},
		Grace: GraceConfig{
			CheckInterval:     DefaultGraceCheckInterval,
			WarningThreshold:  DefaultGraceWarning,
			CriticalThreshold: DefaultGraceCritical,
		},
		Queue: QueueConfig{
			Workers:           2,
			PollInterval:      time.Second,
			DefaultMaxRetries: 3,
		},
		Storage: StorageConfig{
			Driver: "file",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    AppName,
			MetricsEnabled: true,
		},
		Status: StatusConfig{
			Enabled:         true,
			ListenAddr:      "127.0.0.1:7070",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}
