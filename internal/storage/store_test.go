package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensecore/internal/config"
	"licensecore/internal/security"
	"licensecore/pkg/contracts/domain"
)

func fastEncryption() *security.EncryptionConfig {
	cfg := security.DefaultEncryptionConfig()
	cfg.SCryptN = 1024
	return cfg
}

func drivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	plain, err := NewFileStore(filepath.Join(dir, "plain"))
	require.NoError(t, err)
	sealed, err := NewFileStore(filepath.Join(dir, "sealed"),
		WithPassphrase([]byte("s3cret")), WithEncryptionConfig(fastEncryption()))
	require.NoError(t, err)
	db, err := NewSQLiteStore(filepath.Join(dir, "db", "state.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"file":   plain,
		"sealed": sealed,
		"sqlite": db,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, KeyLicense)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, KeyLicense, []byte(`{"a":1}`)))
			got, err := s.Get(ctx, KeyLicense)
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(got))

			require.NoError(t, s.Put(ctx, KeyLicense, []byte(`{"a":2}`)))
			got, err = s.Get(ctx, KeyLicense)
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":2}`, string(got))

			require.NoError(t, s.Delete(ctx, KeyLicense))
			_, err = s.Get(ctx, KeyLicense)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.NoError(t, s.Delete(ctx, KeyLicense), "deleting twice is fine")

			assert.Error(t, s.Put(ctx, "../escape", []byte("x")))
		})
	}
}

func TestJSONHelpersPreserveTimes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	validated := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	in := domain.CachedValidation{
		License:           domain.License{ID: "lic_1", Key: "ABCD-EFGH-IJKL-MNOP", Type: domain.LicenseTypeStandard},
		ValidatedAt:       validated,
		Fingerprint:       "abc",
		OfflineValidUntil: validated.Add(7 * 24 * time.Hour),
	}
	require.NoError(t, PutJSON(ctx, s, KeyCachedValidation, in))

	raw, err := s.Get(ctx, KeyCachedValidation)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"validatedAt":"2025-01-02T03:04:05Z"`)

	var out domain.CachedValidation
	require.NoError(t, GetJSON(ctx, s, KeyCachedValidation, &out))
	assert.True(t, in.OfflineValidUntil.Equal(out.OfflineValidUntil))
	assert.Equal(t, in.License.Key, out.License.Key)

	assert.ErrorIs(t, GetJSON(ctx, s, KeyOfflineState, &out), ErrNotFound)
}

func TestSealedFileIsNotPlaintext(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir, WithPassphrase([]byte("s3cret")), WithEncryptionConfig(fastEncryption()))
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, KeyLicense, []byte(`{"key":"ABCD-EFGH-IJKL-MNOP"}`)))
	raw, err := os.ReadFile(filepath.Join(dir, KeyLicense+".json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "ABCD-EFGH")

	wrong, err := NewFileStore(dir, WithPassphrase([]byte("other")), WithEncryptionConfig(fastEncryption()))
	require.NoError(t, err)
	_, err = wrong.Get(ctx, KeyLicense)
	assert.Error(t, err)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, KeyToken, []byte("tok")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, []byte("tok"), got)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		cfg     config.StorageConfig
		want    any
		wantErr bool
	}{
		{config.StorageConfig{Driver: "memory"}, &MemoryStore{}, false},
		{config.StorageConfig{Driver: "file", Path: filepath.Join(dir, "f")}, &FileStore{}, false},
		{config.StorageConfig{Driver: "sqlite", Path: filepath.Join(dir, "s.db")}, &SQLiteStore{}, false},
		{config.StorageConfig{Driver: "file"}, nil, true},
		{config.StorageConfig{Driver: "redis"}, nil, true},
	}
	for _, tt := range tests {
		s, err := Open(tt.cfg)
		if tt.wantErr {
			assert.Error(t, err, tt.cfg.Driver)
			continue
		}
		require.NoError(t, err)
		assert.IsType(t, tt.want, s)
		s.Close()
	}
}
