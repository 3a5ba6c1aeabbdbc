package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(FileEnv, "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8000/ws/chat", cfg.Assistant.URL)
	assert.Equal(t, 5, cfg.Assistant.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Assistant.ReconnectDelay)
	assert.True(t, cfg.Assistant.AutoReconnect)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, 100, cfg.Stream.ReplaySize)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("ASSISTANT_WS_URL", "wss://assistant.example/ws/chat")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "2")
	t.Setenv("RECONNECT_DELAY", "250ms")
	t.Setenv("AUTO_RECONNECT", "off")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("SEND_RATE_PER_SECOND", "0")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	sc := cfg.SessionConfig()
	assert.Equal(t, "wss://assistant.example/ws/chat", sc.URL)
	assert.Equal(t, 2, sc.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, sc.ReconnectDelay)
	assert.False(t, sc.AutoReconnect)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSAllowedOrigins)
	assert.Nil(t, cfg.SendLimiter())
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offerbot.yaml")
	body := `assistant:
  url: ws://file.example/ws
  max_attempts: 7
  reconnect_delay: 1s
server:
  port: "9090"
  send_rate_per_second: 4
  send_burst: 8
stream:
  keepalive: 30s
  replay_size: 20
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv(FileEnv, path)
	t.Setenv("PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ws://file.example/ws", cfg.Assistant.URL)
	assert.Equal(t, 7, cfg.Assistant.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Assistant.ReconnectDelay)
	assert.Equal(t, 10*time.Second, cfg.Assistant.DialTimeout)
	assert.Equal(t, "7070", cfg.Server.Port)

	opts := cfg.StreamOptions()
	assert.Equal(t, 30*time.Second, opts.KeepAlive)
	assert.Equal(t, 5*time.Second, opts.Retry)
	assert.Equal(t, 20, opts.ReplaySize)

	lim := cfg.SendLimiter()
	require.NotNil(t, lim)
	assert.Equal(t, 8, lim.Burst())
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty url", func(c *Config) { c.Assistant.URL = "" }, "ASSISTANT_WS_URL cannot be empty"},
		{"http scheme", func(c *Config) { c.Assistant.URL = "http://localhost:8000" }, "must use ws or wss"},
		{"no attempts", func(c *Config) { c.Assistant.MaxAttempts = 0 }, "RECONNECT_MAX_ATTEMPTS"},
		{"negative delay", func(c *Config) { c.Assistant.ReconnectDelay = -time.Second }, "RECONNECT_DELAY"},
		{"empty port", func(c *Config) { c.Server.Port = "" }, "PORT cannot be empty"},
		{"zero burst", func(c *Config) { c.Server.SendBurst = 0 }, "SEND_BURST"},
		{"zero replay", func(c *Config) { c.Stream.ReplaySize = 0 }, "SSE_REPLAY_SIZE"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
