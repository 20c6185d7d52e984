package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key-123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "key-123", cfg.GeminiAPIKey)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "http://localhost:8080", cfg.PublicURL)
	assert.Equal(t, filepath.Join("data", "tryon.db"), cfg.DatabasePath)
	assert.Equal(t, "gemini-1.5-flash", cfg.DescribeModel)
	assert.Equal(t, "imagen-3.0-generate-002", cfg.ImageModel)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.RetryBackoff)
	assert.Equal(t, 240*time.Second, cfg.RequestTimeout)
	assert.Equal(t, int64(25<<20), cfg.MaxUploadBytes)
	assert.Equal(t, "stylist", cfg.StylistField)
}

func TestLoadOverridesAndClamps(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key-123")
	t.Setenv("PUBLIC_URL", "https://salon.example/")
	t.Setenv("DATABASE_PATH", "/var/lib/tryon/app.db")
	t.Setenv("RETRY_ATTEMPTS", "0")
	t.Setenv("API_RATE_LIMIT", "-3")
	t.Setenv("MAX_UPLOAD_MB", "5")
	t.Setenv("TOKEN_TTL_SECONDS", "60")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://salon.example", cfg.PublicURL, "trailing slash is stripped")
	assert.Equal(t, "/var/lib/tryon/app.db", cfg.DatabasePath)
	assert.Equal(t, 1, cfg.RetryAttempts, "attempt floor is one")
	assert.Equal(t, float64(1), cfg.RatePerSecond, "rate floor is one")
	assert.Equal(t, int64(5<<20), cfg.MaxUploadBytes)
	assert.Equal(t, time.Minute, cfg.TokenTTL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("X_STR", "  value  ")
	t.Setenv("X_INT", "17")
	t.Setenv("X_BAD_INT", "seventeen")
	t.Setenv("X_BOOL", "true")

	assert.Equal(t, "value", getEnv("X_STR", "fallback"))
	assert.Equal(t, "fallback", getEnv("X_UNSET", "fallback"))
	assert.Equal(t, 17, getEnvInt("X_INT", 5))
	assert.Equal(t, 5, getEnvInt("X_BAD_INT", 5))
	assert.True(t, getEnvBool("X_BOOL", false))
	assert.False(t, getEnvBool("X_UNSET", false))
}
