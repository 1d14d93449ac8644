package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/storage-node/internal/storage/diskmanager"
)

// DiskUsageProvider reports the state of the data volume
type DiskUsageProvider interface {
	GetDiskUsage() diskmanager.DiskUsageStats
}

// HealthChecker performs health checks for the storage node
type HealthChecker struct {
	nodeID   string
	dataDir  string
	disk     DiskUsageProvider
	logger   *zap.Logger
	draining atomic.Bool
}

// HealthStatus represents the health status response
type HealthStatus struct {
	NodeID    string            `json:"nodeId"`
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker. disk may be nil.
func NewHealthChecker(nodeID, dataDir string, disk DiskUsageProvider, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		nodeID:  nodeID,
		dataDir: dataDir,
		disk:    disk,
		logger:  logger,
	}
}

// SetDraining marks the node not ready, for graceful shutdown
func (h *HealthChecker) SetDraining(draining bool) {
	h.draining.Store(draining)
}

// checkDiskSpace fails once the disk guard refuses writes
func (h *HealthChecker) checkDiskSpace() error {
	if h.disk == nil {
		return nil
	}
	usage := h.disk.GetDiskUsage()
	if usage.Err != nil {
		return usage.Err
	}
	if usage.IsCircuitBroken {
		return fmt.Errorf("disk usage critical: %.2f%%", usage.UsagePercent)
	}
	return nil
}

// checkDataDirWritable creates and removes a probe file in the data directory
func (h *HealthChecker) checkDataDirWritable() error {
	info, err := os.Stat(h.dataDir)
	if err != nil {
		return fmt.Errorf("data directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path is not a directory")
	}

	probe := filepath.Join(h.dataDir, fmt.Sprintf(".health_check_%d", time.Now().UnixNano()))
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("cannot write to data directory: %w", err)
	}
	f.Close()
	os.Remove(probe)
	return nil
}

// LivenessHandler handles HTTP liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, HealthStatus{
		NodeID:    h.nodeID,
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	})
}

// ReadinessHandler handles HTTP readiness probe requests
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true

	record := func(name string, err error) {
		if err != nil {
			h.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "unhealthy: " + err.Error()
			ready = false
			return
		}
		checks[name] = "healthy"
	}
	record("disk_space", h.checkDiskSpace())
	record("data_dir_writable", h.checkDataDirWritable())

	if h.draining.Load() {
		checks["lifecycle"] = "draining"
		ready = false
	}

	status := HealthStatus{
		NodeID:    h.nodeID,
		Status:    "ready",
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}
	code := http.StatusOK
	if !ready {
		status.Status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	writeStatus(w, code, status)
}

func writeStatus(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
