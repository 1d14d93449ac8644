package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 32768, cfg.Cluster.ChunkSize)
	assert.Equal(t, 3, cfg.Cluster.ReplicationFactor)
	assert.Equal(t, 30*time.Second, cfg.Cluster.HeartbeatTimeout)
	assert.Equal(t, BackendFile, cfg.Snapshot.Backend)
	assert.Equal(t, "./metadata/blobs.json", cfg.Snapshot.Path)
	assert.Equal(t, 30*time.Second, cfg.Integrity.RepairInterval)
	assert.Equal(t, 60*time.Second, cfg.Integrity.ReplicationInterval)
	assert.Equal(t, 120*time.Second, cfg.Integrity.StaleInterval)
	assert.Equal(t, 300*time.Second, cfg.Integrity.GCInterval)
	assert.Equal(t, StalePolicyAggressive, cfg.Integrity.StaleCleanup.Policy)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9100
  node_id: coord-a
cluster:
  chunk_size: 4
  replication_factor: 2
  heartbeat_timeout: 5s
snapshot:
  backend: bolt
  bolt_path: /tmp/pairfs.db
integrity:
  enabled: true
  repair_interval: 1s
  replication_interval: 2s
  stale_interval: 3s
  gc_interval: 4s
  stale_cleanup:
    policy: grace
    grace_period: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "coord-a", cfg.Server.NodeID)
	assert.Equal(t, 4, cfg.Cluster.ChunkSize)
	assert.Equal(t, 2, cfg.Cluster.ReplicationFactor)
	assert.Equal(t, 5*time.Second, cfg.Cluster.HeartbeatTimeout)
	assert.Equal(t, BackendBolt, cfg.Snapshot.Backend)
	assert.Equal(t, time.Second, cfg.Integrity.RepairInterval)
	assert.Equal(t, StalePolicyGrace, cfg.Integrity.StaleCleanup.Policy)
	assert.Equal(t, time.Minute, cfg.Integrity.StaleCleanup.GracePeriod)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("COORDINATOR_NODE_ID", "coord-env")
	t.Setenv("REPLICATION_FACTOR", "5")
	t.Setenv("SNAPSHOT_BACKEND", "redis")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("STALE_CLEANUP_POLICY", "disabled")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "coord-env", cfg.Server.NodeID)
	assert.Equal(t, 5, cfg.Cluster.ReplicationFactor)
	assert.Equal(t, BackendRedis, cfg.Snapshot.Backend)
	assert.Equal(t, "cache.internal", cfg.Snapshot.Redis.Host)
	assert.Equal(t, StalePolicyDisabled, cfg.Integrity.StaleCleanup.Policy)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"write timeout below request timeout", func(c *Config) {
			c.Server.WriteTimeout = 30 * time.Second
			c.Server.RequestTimeout = 60 * time.Second
		}, "write_timeout"},
		{"no write timeout", func(c *Config) { c.Server.WriteTimeout = 0 }, ""},
		{"zero chunk size", func(c *Config) { c.Cluster.ChunkSize = 0 }, "chunk_size"},
		{"zero replication factor", func(c *Config) { c.Cluster.ReplicationFactor = 0 }, "replication_factor"},
		{"unknown backend", func(c *Config) { c.Snapshot.Backend = "etcd" }, "snapshot.backend"},
		{"postgres without host", func(c *Config) {
			c.Snapshot.Backend = BackendPostgres
			c.Snapshot.Postgres.Host = ""
		}, "postgres"},
		{"grace without period", func(c *Config) {
			c.Integrity.StaleCleanup.Policy = StalePolicyGrace
			c.Integrity.StaleCleanup.GracePeriod = 0
		}, "grace_period"},
		{"unknown policy", func(c *Config) { c.Integrity.StaleCleanup.Policy = "lazy" }, "policy"},
		{"zero interval while enabled", func(c *Config) { c.Integrity.GCInterval = 0 }, "gc_interval"},
		{"zero interval while disabled", func(c *Config) {
			c.Integrity.Enabled = false
			c.Integrity.GCInterval = 0
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
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

func TestValidate_FillsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Snapshot.Backend = ""
	cfg.Integrity.Workers = 0
	cfg.Integrity.StaleCleanup.Policy = ""
	cfg.StorageNodes.RequestTimeout = 0
	cfg.Logging = LoggingConfig{}

	require.NoError(t, cfg.Validate())
	assert.Greater(t, cfg.Server.WriteTimeout, cfg.Server.RequestTimeout)
	assert.Equal(t, BackendFile, cfg.Snapshot.Backend)
	assert.Equal(t, 4, cfg.Integrity.Workers)
	assert.Equal(t, StalePolicyAggressive, cfg.Integrity.StaleCleanup.Policy)
	assert.Equal(t, 10*time.Second, cfg.StorageNodes.RequestTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}
