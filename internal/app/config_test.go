package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresAuthSecret(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "0123456789abcdef0123")
	t.Setenv("DB_TIMEOUT", "2s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.DBTimeout)
	assert.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	assert.Equal(t, "₹", cfg.CurrencySymbol)
	assert.False(t, cfg.IsProduction())
}

func TestValidateRejectsShortSecret(t *testing.T) {
	cfg := Config{AuthSecret: "short", DBTimeout: time.Second}
	assert.Error(t, cfg.Validate())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel(&Config{LogLevel: "DEBUG"}))
	assert.Equal(t, slog.LevelInfo, parseLevel(nil))
}
