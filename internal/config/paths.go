package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// StateDir returns the per-user directory holding persisted license state.
// LICENSECORE_HOME overrides the platform default.
func StateDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "_HOME"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// EnsureDir creates dir with owner-only permissions when missing
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// DefaultStoragePath returns the storage location for a driver under dir
func DefaultStoragePath(dir, driver string) string {
	switch driver {
	case "sqlite":
		return filepath.Join(dir, "state.db")
	default:
		return filepath.Join(dir, "state")
	}
}

// DefaultLogPath returns the log file location under dir
func DefaultLogPath(dir string) string {
	return filepath.Join(dir, "logs", AppName+".log")
}

// ConfigFileIn returns the config file location under dir
func ConfigFileIn(dir string) string {
	return filepath.Join(dir, AppName+".yaml")
}
