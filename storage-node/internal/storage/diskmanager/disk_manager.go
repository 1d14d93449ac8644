package diskmanager

import (
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/storage-node/internal/errors"
)

// UsageFunc reports filesystem usage for a path. disk.Usage in production.
type UsageFunc func(path string) (*disk.UsageStat, error)

// DiskManager monitors disk space and refuses writes when the data volume is full
type DiskManager struct {
	dataDir       string
	logger        *zap.Logger
	usage         UsageFunc
	checkInterval time.Duration

	// Thresholds, in percent
	warningThreshold        float64
	circuitBreakerThreshold float64

	mu                   sync.Mutex
	lastCheck            time.Time
	cachedUsagePercent   float64
	cachedAvailableBytes uint64
	cachedTotalBytes     uint64
	isCircuitBroken      bool
	lastErr              error
}

// DiskManagerConfig holds configuration for disk manager
type DiskManagerConfig struct {
	DataDir                 string
	CheckInterval           time.Duration
	WarningThreshold        float64
	CircuitBreakerThreshold float64
	// Usage overrides the filesystem probe; nil uses gopsutil.
	Usage UsageFunc
}

// DefaultConfig returns default disk manager configuration
func DefaultConfig(dataDir string) *DiskManagerConfig {
	return &DiskManagerConfig{
		DataDir:                 dataDir,
		CheckInterval:           10 * time.Second,
		WarningThreshold:        80.0,
		CircuitBreakerThreshold: 95.0,
	}
}

// NewDiskManager creates a new disk manager with specified thresholds
func NewDiskManager(cfg *DiskManagerConfig, logger *zap.Logger) (*DiskManager, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}

	usage := cfg.Usage
	if usage == nil {
		usage = disk.Usage
	}

	dm := &DiskManager{
		dataDir:                 cfg.DataDir,
		logger:                  logger,
		usage:                   usage,
		checkInterval:           cfg.CheckInterval,
		warningThreshold:        cfg.WarningThreshold,
		circuitBreakerThreshold: cfg.CircuitBreakerThreshold,
	}

	if err := dm.ForceCheck(); err != nil {
		logger.Warn("Initial disk space check failed", zap.Error(err))
	}

	return dm, nil
}

// CheckBeforeWrite checks if a write of the given size can proceed.
// Returns a DiskFull storage error if the write should be rejected.
func (dm *DiskManager) CheckBeforeWrite(estimatedBytes uint64) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.refreshLocked()

	// An unreadable filesystem is not treated as full
	if dm.lastErr != nil {
		return nil
	}

	if dm.isCircuitBroken {
		return errors.DiskFull(dm.cachedUsagePercent, dm.cachedAvailableBytes).
			WithDetail("circuit_broken", true)
	}

	if estimatedBytes > dm.cachedAvailableBytes {
		return errors.DiskFull(dm.cachedUsagePercent, dm.cachedAvailableBytes).
			WithDetail("requested_bytes", estimatedBytes)
	}

	return nil
}

func (dm *DiskManager) refreshLocked() {
	if time.Since(dm.lastCheck) <= dm.checkInterval {
		return
	}
	if err := dm.checkDiskSpaceLocked(); err != nil {
		dm.logger.Warn("Disk space check failed", zap.Error(err))
	}
}

// checkDiskSpaceLocked probes the filesystem and updates state.
// Must be called with mu held.
func (dm *DiskManager) checkDiskSpaceLocked() error {
	dm.lastCheck = time.Now()

	stat, err := dm.usage(dm.dataDir)
	if err != nil {
		dm.lastErr = fmt.Errorf("failed to stat filesystem: %w", err)
		return dm.lastErr
	}
	dm.lastErr = nil

	usagePercent := stat.UsedPercent
	dm.cachedUsagePercent = usagePercent
	dm.cachedAvailableBytes = stat.Free
	dm.cachedTotalBytes = stat.Total

	previouslyBroken := dm.isCircuitBroken
	dm.isCircuitBroken = usagePercent >= dm.circuitBreakerThreshold

	if dm.isCircuitBroken && !previouslyBroken {
		dm.logger.Error("Disk circuit breaker ENGAGED",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", stat.Free),
			zap.Float64("threshold", dm.circuitBreakerThreshold))
	} else if !dm.isCircuitBroken && previouslyBroken {
		dm.logger.Info("Disk circuit breaker DISENGAGED",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", stat.Free))
	}

	if usagePercent >= dm.warningThreshold && !dm.isCircuitBroken {
		dm.logger.Warn("Disk usage warning",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", stat.Free),
			zap.Float64("warning_threshold", dm.warningThreshold))
	}

	return nil
}

// GetDiskUsage returns current disk usage statistics
func (dm *DiskManager) GetDiskUsage() DiskUsageStats {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.refreshLocked()

	return DiskUsageStats{
		UsagePercent:    dm.cachedUsagePercent,
		AvailableBytes:  dm.cachedAvailableBytes,
		TotalBytes:      dm.cachedTotalBytes,
		IsCircuitBroken: dm.isCircuitBroken,
		LastCheck:       dm.lastCheck,
		Err:             dm.lastErr,
	}
}

// ForceCheck forces an immediate disk space check
func (dm *DiskManager) ForceCheck() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.checkDiskSpaceLocked()
}

// DiskUsageStats contains disk usage statistics
type DiskUsageStats struct {
	UsagePercent    float64
	AvailableBytes  uint64
	TotalBytes      uint64
	IsCircuitBroken bool
	LastCheck       time.Time
	Err             error
}
