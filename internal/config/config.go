// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/ashureev/offer-assistant/internal/session"
	"github.com/ashureev/offer-assistant/internal/stream"
)

// FileEnv names the optional YAML file loaded under the environment.
const FileEnv = "OFFERBOT_CONFIG"

// Config holds all application configuration.
type Config struct {
	Assistant AssistantConfig `yaml:"assistant"`
	Server    ServerConfig    `yaml:"server"`
	Stream    StreamConfig    `yaml:"stream"`
	LogLevel  string          `yaml:"log_level"`
}

// AssistantConfig controls the connection to the assistant backend.
type AssistantConfig struct {
	URL            string        `yaml:"url"`
	MaxAttempts    int           `yaml:"max_attempts"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	AutoReconnect  bool          `yaml:"auto_reconnect"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ReadLimitBytes int64         `yaml:"read_limit_bytes"`
}

// ServerConfig controls the HTTP gateway.
type ServerConfig struct {
	Port               string   `yaml:"port"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	SendRatePerSecond  float64  `yaml:"send_rate_per_second"`
	SendBurst          int      `yaml:"send_burst"`
}

// StreamConfig controls the SSE event stream.
type StreamConfig struct {
	KeepAlive  time.Duration `yaml:"keepalive"`
	Retry      time.Duration `yaml:"retry"`
	ReplaySize int           `yaml:"replay_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Assistant: AssistantConfig{
			URL:            "ws://localhost:8000/ws/chat",
			MaxAttempts:    5,
			ReconnectDelay: 3 * time.Second,
			AutoReconnect:  true,
			DialTimeout:    10 * time.Second,
			WriteTimeout:   5 * time.Second,
			ReadLimitBytes: 1 << 20,
		},
		Server: ServerConfig{
			Port:               "8080",
			CORSAllowedOrigins: []string{"*"},
			SendRatePerSecond:  2,
			SendBurst:          5,
		},
		Stream: StreamConfig{
			KeepAlive:  10 * time.Second,
			Retry:      5 * time.Second,
			ReplaySize: 100,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from the optional YAML file, then from
// environment variables. Environment values win.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	a := &c.Assistant
	a.URL = getEnv("ASSISTANT_WS_URL", a.URL)
	a.MaxAttempts = getEnvInt("RECONNECT_MAX_ATTEMPTS", a.MaxAttempts)
	a.ReconnectDelay = getEnvDuration("RECONNECT_DELAY", a.ReconnectDelay)
	a.AutoReconnect = getEnvBool("AUTO_RECONNECT", a.AutoReconnect)
	a.DialTimeout = getEnvDuration("DIAL_TIMEOUT", a.DialTimeout)
	a.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", a.WriteTimeout)
	a.ReadLimitBytes = int64(getEnvInt("READ_LIMIT_BYTES", int(a.ReadLimitBytes)))

	s := &c.Server
	s.Port = getEnv("PORT", s.Port)
	s.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", s.CORSAllowedOrigins)
	s.SendRatePerSecond = getEnvFloat("SEND_RATE_PER_SECOND", s.SendRatePerSecond)
	s.SendBurst = getEnvInt("SEND_BURST", s.SendBurst)

	st := &c.Stream
	st.KeepAlive = getEnvDuration("SSE_KEEPALIVE", st.KeepAlive)
	st.Retry = getEnvDuration("SSE_RETRY", st.Retry)
	st.ReplaySize = getEnvInt("SSE_REPLAY_SIZE", st.ReplaySize)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Assistant.URL == "" {
		return fmt.Errorf("ASSISTANT_WS_URL cannot be empty")
	}
	u, err := url.Parse(c.Assistant.URL)
	if err != nil {
		return fmt.Errorf("ASSISTANT_WS_URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("ASSISTANT_WS_URL must use ws or wss, got %q", u.Scheme)
	}
	if c.Assistant.MaxAttempts < 1 {
		return fmt.Errorf("RECONNECT_MAX_ATTEMPTS must be >= 1")
	}
	if c.Assistant.ReconnectDelay < 0 {
		return fmt.Errorf("RECONNECT_DELAY cannot be negative")
	}
	if c.Assistant.DialTimeout < 0 || c.Assistant.WriteTimeout < 0 {
		return fmt.Errorf("DIAL_TIMEOUT and WRITE_TIMEOUT cannot be negative")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Server.SendRatePerSecond < 0 {
		return fmt.Errorf("SEND_RATE_PER_SECOND cannot be negative")
	}
	if c.Server.SendRatePerSecond > 0 && c.Server.SendBurst < 1 {
		return fmt.Errorf("SEND_BURST must be >= 1 when rate limiting is enabled")
	}
	if c.Stream.KeepAlive < 0 || c.Stream.Retry < 0 {
		return fmt.Errorf("SSE_KEEPALIVE and SSE_RETRY cannot be negative")
	}
	if c.Stream.ReplaySize <= 0 {
		return fmt.Errorf("SSE_REPLAY_SIZE must be > 0")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SessionConfig returns the session policy.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		URL:            c.Assistant.URL,
		MaxAttempts:    c.Assistant.MaxAttempts,
		ReconnectDelay: c.Assistant.ReconnectDelay,
		AutoReconnect:  c.Assistant.AutoReconnect,
		DialTimeout:    c.Assistant.DialTimeout,
		WriteTimeout:   c.Assistant.WriteTimeout,
	}
}

// Transport returns the WebSocket transport for the assistant backend.
func (c *Config) Transport() *session.WebSocketTransport {
	return &session.WebSocketTransport{ReadLimit: c.Assistant.ReadLimitBytes}
}

// StreamOptions returns the SSE settings.
func (c *Config) StreamOptions() stream.Options {
	return stream.Options{
		KeepAlive:  c.Stream.KeepAlive,
		Retry:      c.Stream.Retry,
		ReplaySize: c.Stream.ReplaySize,
	}
}

// SendLimiter returns the outbound send limiter, or nil when sends are
// not throttled.
func (c *Config) SendLimiter() *rate.Limiter {
	if c.Server.SendRatePerSecond == 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.Server.SendRatePerSecond), c.Server.SendBurst)
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
