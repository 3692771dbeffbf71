package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad tests the Load function with various scenarios
func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		fileBody    string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults with no env vars",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "HS256", cfg.License.TokenAlgorithm)
				assert.Equal(t, "sha256", cfg.Fingerprint.Algorithm)
				assert.Equal(t, 5*time.Second, cfg.Fingerprint.ProbeTimeout)
				assert.Equal(t, time.Hour, cfg.Fingerprint.CacheTTL)
				assert.Equal(t, 48*time.Hour, cfg.Grace.WarningThreshold)
				assert.Equal(t, 24*time.Hour, cfg.Grace.CriticalThreshold)
				assert.NotEmpty(t, cfg.Storage.Path)
			},
		},
		{
			name: "file overrides defaults",
			fileBody: `
fingerprint:
  algorithm: blake3
  include_memory: true
grace:
  check_interval: 15m
storage:
  driver: memory
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "blake3", cfg.Fingerprint.Algorithm)
				assert.True(t, cfg.Fingerprint.IncludeMemory)
				assert.True(t, cfg.Fingerprint.IncludeSystemUUID, "keys absent from the file keep defaults")
				assert.Equal(t, 15*time.Minute, cfg.Grace.CheckInterval)
				assert.Equal(t, "memory", cfg.Storage.Driver)
			},
		},
		{
			name:     "env overrides file",
			fileBody: "logging:\n  level: warn\n",
			env: map[string]string{
				"LICENSECORE_LOGGING_LEVEL":         "DEBUG",
				"LICENSECORE_LICENSE_SERVER_URL":    "https://licenses.example.com/api",
				"LICENSECORE_LICENSE_RETRY_ATTEMPTS": "5",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, "https://licenses.example.com/api", cfg.License.ServerURL)
				assert.Equal(t, uint(5), cfg.License.RetryAttempts)
			},
		},
		{
			name:    "invalid fingerprint algorithm",
			env:     map[string]string{"LICENSECORE_FINGERPRINT_ALGORITHM": "md5"},
			wantErr: true,
		},
		{
			name: "critical threshold above warning",
			env: map[string]string{
				"LICENSECORE_GRACE_CRITICAL_THRESHOLD": "72h",
			},
			wantErr: true,
		},
		{
			name:    "short token secret",
			env:     map[string]string{"LICENSECORE_LICENSE_TOKEN_SECRET": "too-short"},
			wantErr: true,
		},
		{
			name:     "malformed yaml",
			fileBody: "logging: [unclosed",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			t.Setenv("LICENSECORE_HOME", home)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := ""
			if tt.fileBody != "" {
				path = filepath.Join(home, "custom.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.fileBody), 0o600))
			}

			cfg, err := Load(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestStateDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LICENSECORE_HOME", dir)

	got, err := StateDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.Equal(t, filepath.Join(dir, "state.db"), DefaultStoragePath(dir, "sqlite"))
	assert.Equal(t, filepath.Join(dir, "state"), DefaultStoragePath(dir, "file"))
}
