package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	NodeID          string        `yaml:"node_id"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	AdvertiseURL    string        `yaml:"advertise_url"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CoordinatorConfig holds coordinator client configuration
type CoordinatorConfig struct {
	Enabled           bool          `yaml:"enabled"`
	URL               string        `yaml:"url"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	MaxRetries        int           `yaml:"max_retries"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
}

// Config represents the complete configuration for the storage node
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Storage     StorageConfig     `yaml:"storage"`
	Disk        DiskConfig        `yaml:"disk"`
	Gossip      GossipConfig      `yaml:"gossip"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// StorageConfig holds chunk store configuration
type StorageConfig struct {
	DataDir       string `yaml:"data_dir"`
	MaxChunkBytes int    `yaml:"max_chunk_bytes"`
	SyncWrites    bool   `yaml:"sync_writes"`
}

// DiskConfig holds the disk guard thresholds, in percent of the data volume
type DiskConfig struct {
	CheckInterval           time.Duration `yaml:"check_interval"`
	WarningThreshold        float64       `yaml:"warning_threshold"`
	CircuitBreakerThreshold float64       `yaml:"circuit_breaker_threshold"`
}

// GossipConfig holds gossip protocol configuration
type GossipConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BindAddr       string        `yaml:"bind_addr"`
	BindPort       int           `yaml:"bind_port"`
	SeedNodes      []string      `yaml:"seed_nodes"`
	GossipInterval time.Duration `yaml:"gossip_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from a file. A missing file yields the
// defaults, so a node can be configured from the environment alone.
func LoadConfig(filePath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(filePath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets deployments set per-node identity without a file per node.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NODE_ID"); v != "" {
		cfg.Server.NodeID = v
	}
	if v := os.Getenv("ADVERTISE_URL"); v != "" {
		cfg.Server.AdvertiseURL = v
	}
	if v := os.Getenv("COORDINATOR_URL"); v != "" {
		cfg.Coordinator.URL = v
		cfg.Coordinator.Enabled = true
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9001
	}
	if cfg.Server.AdvertiseURL == "" {
		host := cfg.Server.Host
		if host == "0.0.0.0" || host == "" {
			host = "localhost"
		}
		cfg.Server.AdvertiseURL = fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
	}
	cfg.Server.AdvertiseURL = strings.TrimRight(cfg.Server.AdvertiseURL, "/")
	if cfg.Server.NodeID == "" {
		cfg.Server.NodeID = cfg.Server.AdvertiseURL
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 45 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./storage"
	}
	if cfg.Storage.MaxChunkBytes == 0 {
		cfg.Storage.MaxChunkBytes = 4 * 1024 * 1024 // 4MB
	}

	if cfg.Disk.CheckInterval == 0 {
		cfg.Disk.CheckInterval = 10 * time.Second
	}
	if cfg.Disk.WarningThreshold == 0 {
		cfg.Disk.WarningThreshold = 80.0
	}
	if cfg.Disk.CircuitBreakerThreshold == 0 {
		cfg.Disk.CircuitBreakerThreshold = 95.0
	}

	// Coordinator defaults
	if cfg.Coordinator.URL == "" {
		cfg.Coordinator.URL = "http://localhost:8080"
	}
	if cfg.Coordinator.RequestTimeout == 0 {
		cfg.Coordinator.RequestTimeout = 5 * time.Second
	}
	if cfg.Coordinator.HeartbeatInterval == 0 {
		cfg.Coordinator.HeartbeatInterval = 15 * time.Second
	}
	if cfg.Coordinator.MaxRetries == 0 {
		cfg.Coordinator.MaxRetries = 10
	}
	if cfg.Coordinator.MaxBackoff == 0 {
		cfg.Coordinator.MaxBackoff = 5 * time.Second
	}

	if cfg.Gossip.BindAddr == "" {
		cfg.Gossip.BindAddr = "0.0.0.0"
	}
	if cfg.Gossip.BindPort == 0 {
		cfg.Gossip.BindPort = 7946
	}
	if cfg.Gossip.GossipInterval == 0 {
		cfg.Gossip.GossipInterval = 200 * time.Millisecond
	}
	if cfg.Gossip.ProbeTimeout == 0 {
		cfg.Gossip.ProbeTimeout = 500 * time.Millisecond
	}
	if cfg.Gossip.ProbeInterval == 0 {
		cfg.Gossip.ProbeInterval = time.Second
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9101
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.NodeID == "" {
		return fmt.Errorf("server.node_id is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.WriteTimeout <= c.Server.RequestTimeout {
		return fmt.Errorf("server.write_timeout must exceed server.request_timeout")
	}
	if !strings.HasPrefix(c.Server.AdvertiseURL, "http://") && !strings.HasPrefix(c.Server.AdvertiseURL, "https://") {
		return fmt.Errorf("server.advertise_url must be an http(s) URL, got %q", c.Server.AdvertiseURL)
	}
	if c.Storage.MaxChunkBytes < 0 {
		return fmt.Errorf("storage.max_chunk_bytes must be positive")
	}
	if c.Disk.CircuitBreakerThreshold <= 0 || c.Disk.CircuitBreakerThreshold > 100 {
		return fmt.Errorf("disk.circuit_breaker_threshold must be between 0 and 100")
	}
	if c.Disk.WarningThreshold > c.Disk.CircuitBreakerThreshold {
		return fmt.Errorf("disk.warning_threshold must not exceed disk.circuit_breaker_threshold")
	}
	if c.Coordinator.MaxRetries < 1 {
		return fmt.Errorf("coordinator.max_retries must be at least 1")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
