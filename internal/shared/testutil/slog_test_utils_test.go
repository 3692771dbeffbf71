package testutil

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBufferedSlogHandler(t *testing.T) {
	t.Run("captures records and derived attrs", func(t *testing.T) {
		logger, handler := NewTestLogger()
		logger = logger.With("component", "test")

		logger.Info("first message", slog.String("key", "value"))
		logger.Error("second message", slog.Int("code", 500))

		assert.Len(t, handler.Records(), 2)
		assert.True(t, handler.ContainsMessage("first"))
		assert.True(t, handler.ContainsAttr("key", "value"))
		assert.True(t, handler.ContainsAttr("component", "test"))
		assert.Len(t, handler.RecordsAt(slog.LevelError), 1)
		AssertLogContains(t, handler, slog.LevelInfo, "first")
	})

	t.Run("no secret", func(t *testing.T) {
		logger, handler := NewTestLogger()
		logger.Info("activated", slog.String("license_key_masked", "ABCD****MNOP"))
		AssertNoSecret(t, handler, ValidLicenseKey)
	})
}

func TestClock(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewClock(start)
	c.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), c.Now())
}
