package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents the coordinator service configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Cluster      ClusterConfig      `mapstructure:"cluster"`
	Snapshot     SnapshotConfig     `mapstructure:"snapshot"`
	Integrity    IntegrityConfig    `mapstructure:"integrity"`
	StorageNodes StorageNodesConfig `mapstructure:"storage_nodes"`
	RateLimiter  RateLimiterConfig  `mapstructure:"rate_limiter"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	NodeID          string        `mapstructure:"node_id"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ClusterConfig holds chunking, replication and liveness parameters
type ClusterConfig struct {
	ChunkSize         int           `mapstructure:"chunk_size"`
	ReplicationFactor int           `mapstructure:"replication_factor"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
}

// SnapshotConfig selects where the metadata snapshot is persisted
type SnapshotConfig struct {
	Backend   string         `mapstructure:"backend"`
	Path      string         `mapstructure:"path"`
	BoltPath  string         `mapstructure:"bolt_path"`
	BadgerDir string         `mapstructure:"badger_dir"`
	Postgres  PostgresConfig `mapstructure:"postgres"`
	Redis     RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig represents the PostgreSQL snapshot backend configuration
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig represents the Redis snapshot backend configuration
type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// IntegrityConfig controls the periodic reconciliation passes
type IntegrityConfig struct {
	Enabled             bool               `mapstructure:"enabled"`
	Workers             int                `mapstructure:"workers"`
	ProbeCacheTTL       time.Duration      `mapstructure:"probe_cache_ttl"`
	RepairInterval      time.Duration      `mapstructure:"repair_interval"`
	RepairDelay         time.Duration      `mapstructure:"repair_initial_delay"`
	ReplicationInterval time.Duration      `mapstructure:"replication_interval"`
	ReplicationDelay    time.Duration      `mapstructure:"replication_initial_delay"`
	StaleInterval       time.Duration      `mapstructure:"stale_interval"`
	StaleDelay          time.Duration      `mapstructure:"stale_initial_delay"`
	GCInterval          time.Duration      `mapstructure:"gc_interval"`
	GCDelay             time.Duration      `mapstructure:"gc_initial_delay"`
	StaleCleanup        StaleCleanupConfig `mapstructure:"stale_cleanup"`
}

// StaleCleanupConfig tunes how replicas on unhealthy nodes are forgotten
type StaleCleanupConfig struct {
	Policy      string        `mapstructure:"policy"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// StorageNodesConfig configures outbound calls to storage nodes
type StorageNodesConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RateLimiterConfig configures request rate limiting
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Stale cleanup policies.
const (
	StalePolicyAggressive = "aggressive"
	StalePolicyGrace      = "grace"
	StalePolicyDisabled   = "disabled"
)

// Snapshot backends.
const (
	BackendFile     = "file"
	BackendBolt     = "bolt"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Server.NodeID == "" {
		return errors.New("server.node_id is required")
	}
	// A manual integrity run answers synchronously, so the connection must
	// outlive the request deadline.
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.Server.RequestTimeout {
		return errors.New("server.write_timeout must exceed server.request_timeout")
	}
	if c.Cluster.ChunkSize <= 0 {
		return errors.New("cluster.chunk_size must be positive")
	}
	if c.Cluster.ReplicationFactor <= 0 {
		return errors.New("cluster.replication_factor must be positive")
	}
	if c.Cluster.HeartbeatTimeout <= 0 {
		return errors.New("cluster.heartbeat_timeout must be positive")
	}

	if c.Snapshot.Backend == "" {
		c.Snapshot.Backend = BackendFile
	}
	switch c.Snapshot.Backend {
	case BackendFile:
		if c.Snapshot.Path == "" {
			return errors.New("snapshot.path is required for the file backend")
		}
	case BackendBolt:
		if c.Snapshot.BoltPath == "" {
			return errors.New("snapshot.bolt_path is required for the bolt backend")
		}
	case BackendBadger:
		if c.Snapshot.BadgerDir == "" {
			return errors.New("snapshot.badger_dir is required for the badger backend")
		}
	case BackendPostgres:
		if c.Snapshot.Postgres.Host == "" || c.Snapshot.Postgres.Database == "" || c.Snapshot.Postgres.User == "" {
			return errors.New("snapshot.postgres host, database and user are required")
		}
	case BackendRedis:
		if c.Snapshot.Redis.Host == "" {
			return errors.New("snapshot.redis.host is required")
		}
	default:
		return fmt.Errorf("snapshot.backend must be one of: file, bolt, badger, postgres, redis (got %q)", c.Snapshot.Backend)
	}

	if c.Integrity.Workers <= 0 {
		c.Integrity.Workers = 4
	}
	if c.Integrity.StaleCleanup.Policy == "" {
		c.Integrity.StaleCleanup.Policy = StalePolicyAggressive
	}
	switch c.Integrity.StaleCleanup.Policy {
	case StalePolicyAggressive, StalePolicyDisabled:
	case StalePolicyGrace:
		if c.Integrity.StaleCleanup.GracePeriod <= 0 {
			return errors.New("integrity.stale_cleanup.grace_period must be positive for the grace policy")
		}
	default:
		return errors.New("integrity.stale_cleanup.policy must be one of: aggressive, grace, disabled")
	}
	for name, d := range map[string]time.Duration{
		"repair_interval":      c.Integrity.RepairInterval,
		"replication_interval": c.Integrity.ReplicationInterval,
		"stale_interval":       c.Integrity.StaleInterval,
		"gc_interval":          c.Integrity.GCInterval,
	} {
		if c.Integrity.Enabled && d <= 0 {
			return fmt.Errorf("integrity.%s must be positive", name)
		}
	}

	if c.StorageNodes.RequestTimeout <= 0 {
		c.StorageNodes.RequestTimeout = 10 * time.Second
	}
	if c.RateLimiter.Enabled && c.RateLimiter.RequestsPerSecond <= 0 {
		return errors.New("rate_limiter.requests_per_second must be positive")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			NodeID:          "coordinator-1",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Cluster: ClusterConfig{
			ChunkSize:         32768,
			ReplicationFactor: 3,
			HeartbeatTimeout:  30 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Backend:   BackendFile,
			Path:      "./metadata/blobs.json",
			BoltPath:  "./metadata/blobs.db",
			BadgerDir: "./metadata/badger",
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "pairfs_metadata",
				User:            "coordinator",
				MaxConnections:  10,
				MinConnections:  1,
				ConnMaxLifetime: 30 * time.Minute,
			},
			Redis: RedisConfig{
				Host:       "localhost",
				Port:       6379,
				MaxRetries: 3,
				PoolSize:   10,
			},
		},
		Integrity: IntegrityConfig{
			Enabled:             true,
			Workers:             4,
			ProbeCacheTTL:       5 * time.Second,
			RepairInterval:      30 * time.Second,
			RepairDelay:         10 * time.Second,
			ReplicationInterval: 60 * time.Second,
			ReplicationDelay:    20 * time.Second,
			StaleInterval:       120 * time.Second,
			StaleDelay:          45 * time.Second,
			GCInterval:          300 * time.Second,
			GCDelay:             60 * time.Second,
			StaleCleanup: StaleCleanupConfig{
				Policy:      StalePolicyAggressive,
				GracePeriod: 10 * time.Minute,
			},
		},
		StorageNodes: StorageNodesConfig{
			RequestTimeout: 10 * time.Second,
		},
		RateLimiter: RateLimiterConfig{
			Enabled:           false,
			RequestsPerSecond: 1000,
			BurstSize:         2000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
