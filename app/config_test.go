package peerchat

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	return file
}

func TestDefaultConfig(t *testing.T) {
	config, err := (&DefaultConfigLoader{}).Load()
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, "ws://127.0.0.1:8787/ws", config.Backend.URL)
	assert.Equal(t, 10*time.Second, config.Backend.HistoryTimeout)
	assert.Equal(t, 7070, config.API.Port)
	assert.Equal(t, []string{"*"}, config.API.AllowedOrigins)
	assert.Len(t, config.Auth.Secret, 32)
	assert.Equal(t, 6*time.Second, config.Call.ICEGatheringTimeout)
	assert.Equal(t, 12*time.Second, config.Call.DisconnectGrace)
	assert.Equal(t, 3, config.Call.MaxICERestarts)
	assert.Equal(t, slog.LevelInfo, config.LogLevel())

	reconnect := config.ReconnectConfig()
	assert.Equal(t, 500*time.Millisecond, reconnect.BaseDelay)
	assert.Equal(t, 2.0, reconnect.Multiplier)
}

func TestConfigFromEnv(t *testing.T) {
	secret := []byte("a fixed secret used for signing")
	t.Setenv("PEERCHAT_AUTH_SECRET", base64.StdEncoding.EncodeToString(secret))
	t.Setenv("PEERCHAT_API_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	t.Setenv("PEERCHAT_BACKEND_HISTORY_TIMEOUT", "2s")
	t.Setenv("PEERCHAT_LOG_LEVEL", "debug")

	config, err := (&DefaultConfigLoader{}).Load()
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, secret, []byte(config.Auth.Secret))
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, config.API.AllowedOrigins)
	assert.Equal(t, 2*time.Second, config.Backend.HistoryTimeout)
	assert.Equal(t, slog.LevelDebug, config.LogLevel())
}

func TestFileConfigLoader(t *testing.T) {
	unsetEnv(t, "PEERCHAT_API_PORT")
	file := writeFile(t, "config.yaml", `
backend:
  url: ws://backend.local:9000/ws
reconnect:
  max_delay: 1m
sqlite:
  file: /tmp/cache.db
`)
	envFile := writeFile(t, ".env", "PEERCHAT_API_PORT=8081\n")

	loader := &FileConfigLoader{File: file, EnvFiles: []string{envFile, filepath.Join(t.TempDir(), "missing.env")}}
	config, err := loader.Load()
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, "ws://backend.local:9000/ws", config.Backend.URL)
	assert.Equal(t, time.Minute, config.Reconnect.MaxDelay)
	assert.Equal(t, "/tmp/cache.db", config.SQLite.File)
	assert.Equal(t, 8081, config.API.Port)
}

func TestFileConfigLoaderMissingFile(t *testing.T) {
	loader := &FileConfigLoader{File: filepath.Join(t.TempDir(), "nope.yaml")}
	_, err := loader.Load()
	require.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	t.Setenv("PEERCHAT_BACKEND_URL", "not a url")
	t.Setenv("PEERCHAT_API_PORT", "70000")
	t.Setenv("PEERCHAT_RECONNECT_BASE_DELAY", "10s")
	t.Setenv("PEERCHAT_RECONNECT_MAX_DELAY", "1s")
	t.Setenv("PEERCHAT_API_TLS_CRT", "server.crt")

	config, err := (&DefaultConfigLoader{}).Load()
	require.NoError(t, err)

	err = config.Validate()
	require.Error(t, err)
	msg := FormatValidationErrors(err)
	assert.Contains(t, msg, "url must be a valid URL")
	assert.Contains(t, msg, "port must be a valid port number")
	assert.Contains(t, msg, "key is required when Crt is set")
	assert.Contains(t, msg, "maxdelay must not be less than BaseDelay")

	_, err = New(context.Background(), config)
	require.ErrorContains(t, err, "invalid config")
}
