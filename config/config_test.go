package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "default", cfg.DefaultTenant)
	assert.Equal(t, 5*time.Second, cfg.RetryMaxElapsed)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.CORSOrigins)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LEDGER_PORT=9090\nLEDGER_DATA_DIR=/tmp/books\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("LEDGER_PORT")
		os.Unsetenv("LEDGER_DATA_DIR")
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/books", cfg.DataDir)
}

func TestLoadEnvironmentWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LEDGER_DEFAULT_TENANT=from-file\n"), 0o600))
	t.Setenv("LEDGER_DEFAULT_TENANT", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.DefaultTenant)
}

func TestLoadBadDuration(t *testing.T) {
	t.Setenv("LEDGER_RETRY_MAX_ELAPSED", "soon")

	_, err := Load("")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.log")

	logger, closer, err := NewLogger("debug", path)
	require.NoError(t, err)
	logger.Debug().Str("entry", "JE-SALE-2025-00001").Msg("posted")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "JE-SALE-2025-00001")
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, _, err := NewLogger("chatty", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"chatty"`)
}

func TestNewLoggerEmptyLevelIsInfo(t *testing.T) {
	logger, closer, err := NewLogger("", "")
	require.NoError(t, err)
	defer closer.Close()
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		field string
	}{
		{"port out of range", "LEDGER_PORT", "70000", "Port"},
		{"port zero", "LEDGER_PORT", "0", "Port"},
		{"unknown log level", "LEDGER_LOG_LEVEL", "chatty", "LogLevel"},
		{"empty default tenant", "LEDGER_DEFAULT_TENANT", "", "DefaultTenant"},
		{"zero retry budget", "LEDGER_RETRY_MAX_ELAPSED", "0s", "RetryMaxElapsed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load("")

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoadNormalisesLogLevel(t *testing.T) {
	t.Setenv("LEDGER_LOG_LEVEL", " DEBUG ")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}
