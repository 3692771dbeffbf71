package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"licensecore/internal/security"
)

// FileStore writes one JSON file per key under a directory. When a passphrase
// is set every value is sealed with AES-256-GCM before it touches disk.
type FileStore struct {
	dir        string
	passphrase []byte
	encryption *security.EncryptionConfig
	mu         sync.Mutex
}

// FileOption configures a FileStore
type FileOption func(*FileStore)

// WithPassphrase seals values under a key derived from passphrase
func WithPassphrase(passphrase []byte) FileOption {
	return func(s *FileStore) {
		s.passphrase = append([]byte(nil), passphrase...)
	}
}

// WithEncryptionConfig overrides the scrypt/GCM parameters
func WithEncryptionConfig(cfg *security.EncryptionConfig) FileOption {
	return func(s *FileStore) { s.encryption = cfg }
}

// NewFileStore creates dir if needed and returns a store rooted there
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("storage: file store requires a directory")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("storage: failed to create %s: %w", dir, err)
	}

	s := &FileStore{dir: dir, encryption: security.DefaultEncryptionConfig()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get reads and, when sealed, decrypts the value of key
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: failed to read %s: %w", key, err)
	}
	if len(s.passphrase) == 0 {
		return data, nil
	}

	var sealed security.SealedPayload
	if err := json.Unmarshal(data, &sealed); err != nil {
		return nil, fmt.Errorf("storage: %s is not a sealed payload: %w", key, err)
	}
	plaintext, err := security.Open(&sealed, s.passphrase, s.encryption)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open %s: %w", key, err)
	}
	return plaintext, nil
}

// Put writes value atomically through a temp file and rename
func (s *FileStore) Put(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data := value
	if len(s.passphrase) > 0 {
		sealed, err := security.Seal(value, s.passphrase, s.encryption)
		if err != nil {
			return fmt.Errorf("storage: failed to seal %s: %w", key, err)
		}
		if data, err = json.Marshal(sealed); err != nil {
			return fmt.Errorf("storage: failed to encode sealed %s: %w", key, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage: failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("storage: failed to replace %s: %w", key, err)
	}
	return nil
}

// Delete removes the file for key
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: failed to delete %s: %w", key, err)
	}
	return nil
}

// Close is a no-op
func (s *FileStore) Close() error {
	return nil
}
