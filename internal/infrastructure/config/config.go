package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Runtime   RuntimeConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Metrics   MetricsConfig
}

// ServerConfig holds control server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8001"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"8388608"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// RuntimeConfig holds application host configuration.
type RuntimeConfig struct {
	AppDir       string        `envconfig:"APP_DIR" default:"/tmp/antcore/app"`
	LoadTimeout  time.Duration `envconfig:"LOAD_TIMEOUT" default:"5s"`
	StartTimeout time.Duration `envconfig:"START_TIMEOUT" default:"5s"`
	InfoTimeout  time.Duration `envconfig:"INFO_TIMEOUT" default:"2s"`
	MaxCallStack int           `envconfig:"MAX_CALL_STACK" default:"1024"`

	BreakerEnabled  bool          `envconfig:"LOADER_BREAKER_ENABLED" default:"true"`
	BreakerFailures uint32        `envconfig:"LOADER_BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"LOADER_BREAKER_COOLDOWN" default:"30s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	File        string `envconfig:"LOG_FILE"`
	MaxSizeMB   int    `envconfig:"LOG_MAX_SIZE_MB" default:"100"`
	MaxBackups  int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	MaxAgeDays  int    `envconfig:"LOG_MAX_AGE_DAYS" default:"28"`
	Compress    bool   `envconfig:"LOG_COMPRESS" default:"true"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"false"`
	Global            bool `envconfig:"RATE_LIMIT_GLOBAL" default:"false"`
}

// CORSConfig holds cross-origin configuration.
type CORSConfig struct {
	Enabled bool     `envconfig:"CORS_ENABLED" default:"false"`
	Origins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// MetricsConfig holds Prometheus exporter configuration.
type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Address string `envconfig:"METRICS_ADDR" default:"127.0.0.1:9101"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8001",
			Host:            "0.0.0.0",
			MaxBodyBytes:    8 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Runtime: RuntimeConfig{
			AppDir:          "/tmp/antcore/app",
			LoadTimeout:     5 * time.Second,
			StartTimeout:    5 * time.Second,
			InfoTimeout:     2 * time.Second,
			MaxCallStack:    1024,
			BreakerEnabled:  true,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Logging: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
		},
		CORS: CORSConfig{
			Origins: []string{"*"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: "127.0.0.1:9101",
		},
	}
}
