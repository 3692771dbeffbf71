// Package storage persists the opaque JSON state of the license core: the
// activated license, the cached validation, the offline grace state and the
// job queue snapshot. Values are stored under fixed keys.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"licensecore/internal/config"
)

// Well-known keys
const (
	KeyLicense          = "license"
	KeyCachedValidation = "validation"
	KeyToken            = "token"
	KeyOfflineState     = "offline_state"
	KeyQueueSnapshot    = "queue_snapshot"
)

// ErrNotFound is returned by Get when the key holds no value
var ErrNotFound = errors.New("storage: key not found")

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,127}$`)

// Store is a small key/value blob store
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("storage: invalid key %q", key)
	}
	return nil
}

// GetJSON loads key into v. It returns ErrNotFound when nothing is stored.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("storage: failed to decode %s: %w", key, err)
	}
	return nil
}

// PutJSON stores v under key
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: failed to encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}

// Open returns the store selected by cfg.Driver
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "file", "":
		var opts []FileOption
		if cfg.Passphrase != "" {
			opts = append(opts, WithPassphrase([]byte(cfg.Passphrase)))
		}
		return NewFileStore(cfg.Path, opts...)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	}
	return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
}
