// Package config provides configuration management for the gateway.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the gateway.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Coordinator  CoordinatorConfig  `mapstructure:"coordinator"`
	StorageNodes StorageNodesConfig `mapstructure:"storage_nodes"`
	Upload       UploadConfig       `mapstructure:"upload"`
	RateLimiter  RateLimiterConfig  `mapstructure:"rate_limiter"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// CoordinatorConfig holds HTTP client configuration for the coordinator.
type CoordinatorConfig struct {
	URL          string        `mapstructure:"url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// StorageNodesConfig holds chunk client configuration.
type StorageNodesConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// UploadConfig bounds uploads.
type UploadConfig struct {
	MaxBytes    int64 `mapstructure:"max_bytes"`
	Parallelism int   `mapstructure:"parallelism"`
}

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pairfs-gateway/")
	}

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing file falls back to defaults and environment.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "6m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "5m")

	v.SetDefault("coordinator.url", "http://localhost:8080")
	v.SetDefault("coordinator.timeout", "10s")
	v.SetDefault("coordinator.max_retries", 3)
	v.SetDefault("coordinator.retry_backoff", "200ms")

	v.SetDefault("storage_nodes.request_timeout", "10s")

	v.SetDefault("upload.max_bytes", 256*1024*1024)
	v.SetDefault("upload.parallelism", 8)

	v.SetDefault("rate_limiter.enabled", false)
	v.SetDefault("rate_limiter.requests_per_second", 100.0)
	v.SetDefault("rate_limiter.burst_size", 50)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9100)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.Server.RequestTimeout {
		return fmt.Errorf("server write timeout %s must exceed request timeout %s", c.Server.WriteTimeout, c.Server.RequestTimeout)
	}

	if c.Coordinator.URL == "" {
		return fmt.Errorf("coordinator url is required")
	}
	if c.Coordinator.Timeout <= 0 {
		return fmt.Errorf("coordinator timeout must be positive")
	}
	if c.Coordinator.MaxRetries < 0 {
		return fmt.Errorf("coordinator max retries must not be negative")
	}

	if c.StorageNodes.RequestTimeout <= 0 {
		return fmt.Errorf("storage node request timeout must be positive")
	}

	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload max bytes must be positive")
	}
	if c.Upload.Parallelism <= 0 {
		return fmt.Errorf("upload parallelism must be positive")
	}

	if c.RateLimiter.Enabled {
		if c.RateLimiter.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limiter requests per second must be positive")
		}
		if c.RateLimiter.BurstSize <= 0 {
			return fmt.Errorf("rate limiter burst size must be positive")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	return nil
}
