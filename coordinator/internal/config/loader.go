package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Config file is optional; defaults and environment variables still apply.
	if err := v.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not read config file %s: %v. Using defaults and environment variables.\n", configPath, err)
	} else {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Environment variables take precedence
	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(cfg *Config) {
	if nodeID := os.Getenv("COORDINATOR_NODE_ID"); nodeID != "" {
		cfg.Server.NodeID = nodeID
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	// Cluster parameters
	if cs := os.Getenv("CHUNK_SIZE"); cs != "" {
		if v, err := strconv.Atoi(cs); err == nil {
			cfg.Cluster.ChunkSize = v
		}
	}
	if rf := os.Getenv("REPLICATION_FACTOR"); rf != "" {
		if v, err := strconv.Atoi(rf); err == nil {
			cfg.Cluster.ReplicationFactor = v
		}
	}
	if hb := os.Getenv("HEARTBEAT_TIMEOUT"); hb != "" {
		if d, err := time.ParseDuration(hb); err == nil {
			cfg.Cluster.HeartbeatTimeout = d
		}
	}

	// Snapshot backend
	if backend := os.Getenv("SNAPSHOT_BACKEND"); backend != "" {
		cfg.Snapshot.Backend = backend
	}
	if path := os.Getenv("SNAPSHOT_PATH"); path != "" {
		cfg.Snapshot.Path = path
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		cfg.Snapshot.Postgres.Host = dbHost
	}
	if dbPort := os.Getenv("DATABASE_PORT"); dbPort != "" {
		if p, err := strconv.Atoi(dbPort); err == nil {
			cfg.Snapshot.Postgres.Port = p
		}
	}
	if dbName := os.Getenv("DATABASE_NAME"); dbName != "" {
		cfg.Snapshot.Postgres.Database = dbName
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		cfg.Snapshot.Postgres.User = dbUser
	}
	if dbPassword := os.Getenv("DATABASE_PASSWORD"); dbPassword != "" {
		cfg.Snapshot.Postgres.Password = dbPassword
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		cfg.Snapshot.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		if p, err := strconv.Atoi(redisPort); err == nil {
			cfg.Snapshot.Redis.Port = p
		}
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Snapshot.Redis.Password = redisPassword
	}

	if policy := os.Getenv("STALE_CLEANUP_POLICY"); policy != "" {
		cfg.Integrity.StaleCleanup.Policy = policy
	}
	if enabled := os.Getenv("INTEGRITY_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.Integrity.Enabled = b
		}
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		cfg.Logging.Format = logFormat
	}
}
