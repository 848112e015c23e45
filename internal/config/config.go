package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"geografica/internal/middleware"
)

// Session backends
const (
	SessionBackendFile  = "file"
	SessionBackendRedis = "redis"
)

// RateLimitConfig holds the login throttling settings
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled"`
	Limit   int           `yaml:"limit"`
	Window  time.Duration `yaml:"window"`
}

// SessionConfig selects where the bearer token and profile are persisted
type SessionConfig struct {
	Backend  string `yaml:"backend"`
	FilePath string `yaml:"file_path"`
	RedisKey string `yaml:"redis_key"`
}

// Config holds all configuration for the dashboard
type Config struct {
	APIPort        int           `yaml:"api_port"`
	APIBaseURL     string        `yaml:"api_base_url"`
	RealtimeURL    string        `yaml:"realtime_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Session SessionConfig `yaml:"session"`

	RedisURL    string        `yaml:"redis_url"`
	RedisPrefix string        `yaml:"redis_prefix"`
	LiveTTL     time.Duration `yaml:"live_ttl"`

	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`

	DatabaseURL         string        `yaml:"database_url"`
	OutboxFlushInterval time.Duration `yaml:"outbox_flush_interval"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// TrustedProxies lists the peers whose X-Forwarded-For is honoured;
	// empty trusts none
	TrustedProxies []string `yaml:"trusted_proxies"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		APIPort:        3000,
		APIBaseURL:     "http://localhost:3001",
		RequestTimeout: 15 * time.Second,
		Session: SessionConfig{
			Backend:  SessionBackendFile,
			FilePath: defaultSessionPath(),
			RedisKey: "geografica:session",
		},
		RedisPrefix:         "geografica",
		LiveTTL:             10 * time.Minute,
		NATSSubjectPrefix:   "geografica",
		OutboxFlushInterval: time.Minute,
		LogLevel:            "info",
		LogFormat:           "json",
		RateLimit: RateLimitConfig{
			Enabled: true,
			Limit:   5,
			Window:  time.Minute,
		},
	}
}

// Load loads configuration from the optional YAML file named by
// GEOGRAFICA_CONFIG and then from environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("GEOGRAFICA_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadEnv()

	if cfg.RealtimeURL == "" {
		realtimeURL, err := DeriveRealtimeURL(cfg.APIBaseURL)
		if err != nil {
			return nil, err
		}
		cfg.RealtimeURL = realtimeURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.APIPort = getEnvAsInt("API_PORT", c.APIPort)
	c.APIBaseURL = getEnv("API_BASE_URL", c.APIBaseURL)
	c.RealtimeURL = getEnv("REALTIME_URL", c.RealtimeURL)
	c.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", c.RequestTimeout)

	c.Session.Backend = getEnv("SESSION_BACKEND", c.Session.Backend)
	c.Session.FilePath = getEnv("SESSION_FILE", c.Session.FilePath)
	c.Session.RedisKey = getEnv("SESSION_REDIS_KEY", c.Session.RedisKey)

	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.RedisPrefix = getEnv("REDIS_PREFIX", c.RedisPrefix)
	c.LiveTTL = getEnvAsDuration("LIVE_TTL", c.LiveTTL)

	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.NATSSubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATSSubjectPrefix)

	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.OutboxFlushInterval = getEnvAsDuration("OUTBOX_FLUSH_INTERVAL", c.OutboxFlushInterval)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.TrustedProxies = getEnvAsList("TRUSTED_PROXIES", c.TrustedProxies)

	c.RateLimit.Enabled = getEnvAsBool("RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.Limit = getEnvAsInt("RATE_LIMIT_LOGIN_LIMIT", c.RateLimit.Limit)
	c.RateLimit.Window = getEnvAsDuration("RATE_LIMIT_LOGIN_WINDOW", c.RateLimit.Window)
}

// Validate checks the settings that would otherwise fail late
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("api base url is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	switch c.Session.Backend {
	case SessionBackendFile:
		if c.Session.FilePath == "" {
			return fmt.Errorf("session file path is required for the file backend")
		}
	case SessionBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis url is required for the redis session backend")
		}
	default:
		return fmt.Errorf("unsupported session backend: %s", c.Session.Backend)
	}
	if c.DatabaseURL != "" && c.OutboxFlushInterval <= 0 {
		return fmt.Errorf("outbox flush interval must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Limit <= 0 || c.RateLimit.Window < time.Second) {
		return fmt.Errorf("invalid login rate limit")
	}
	return nil
}

// DeriveRealtimeURL maps the REST base URL onto the websocket endpoint
// served by the same host.
func DeriveRealtimeURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid api base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// LoginRateLimit converts the login settings for the middleware
func (c *Config) LoginRateLimit() *middleware.RateLimitConfig {
	return &middleware.RateLimitConfig{
		Limit:  c.RateLimit.Limit,
		Window: int(c.RateLimit.Window.Seconds()),
	}
}

func defaultSessionPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "geografica", "session.json")
	}
	return "session.json"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
