package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/storage-node/internal/metrics"
	"github.com/devrev/pairfs/storage-node/internal/model"
	"github.com/devrev/pairfs/storage-node/internal/storage/chunkstore"
)

// Coordinator is the part of the coordinator API a storage node calls
type Coordinator interface {
	Register(ctx context.Context, nodeID, nodeURL string) error
	Heartbeat(ctx context.Context, req *api.HeartbeatRequest) error
}

// InventorySource supplies the heartbeat payload
type InventorySource interface {
	Inventory(ctx context.Context) (api.Inventory, error)
	Stats(ctx context.Context) (chunkstore.Stats, error)
}

// HeartbeatConfig holds registration and heartbeat settings
type HeartbeatConfig struct {
	NodeID     string
	URL        string
	Interval   time.Duration
	MaxRetries int
	// Registration attempt n waits min(MaxBackoff, n*BackoffUnit) before retrying.
	BackoffUnit time.Duration
	MaxBackoff  time.Duration
}

// HeartbeatService registers the node with the coordinator and reports its
// inventory periodically. Coordinator failures are logged, never fatal.
type HeartbeatService struct {
	cfg         HeartbeatConfig
	coordinator Coordinator
	inventory   InventorySource
	disk        DiskGuard
	metrics     *metrics.Metrics
	logger      *zap.Logger

	registered          atomic.Bool
	consecutiveFailures atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHeartbeatService creates a heartbeat sender. disk may be nil.
func NewHeartbeatService(
	cfg HeartbeatConfig,
	coordinator Coordinator,
	inventory InventorySource,
	disk DiskGuard,
	m *metrics.Metrics,
	logger *zap.Logger,
) *HeartbeatService {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * cfg.BackoffUnit
	}
	return &HeartbeatService{
		cfg:         cfg,
		coordinator: coordinator,
		inventory:   inventory,
		disk:        disk,
		metrics:     m,
		logger:      logger,
	}
}

// Registered reports whether the last registration or heartbeat succeeded
func (s *HeartbeatService) Registered() bool {
	return s.registered.Load()
}

func (s *HeartbeatService) backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * s.cfg.BackoffUnit
	if d > s.cfg.MaxBackoff {
		d = s.cfg.MaxBackoff
	}
	return d
}

// RegisterWithRetry attempts to register with the coordinator with retries
func (s *HeartbeatService) RegisterWithRetry(ctx context.Context) error {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		err := s.coordinator.Register(ctx, s.cfg.NodeID, s.cfg.URL)
		s.metrics.RecordRegistration(err)
		if err == nil {
			s.registered.Store(true)
			s.logger.Info("Registered with coordinator",
				zap.String("node_id", s.cfg.NodeID),
				zap.String("url", s.cfg.URL),
				zap.Int("attempt", attempt))
			return nil
		}

		lastErr = err
		s.logger.Warn("Failed to register with coordinator, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", s.cfg.MaxRetries),
			zap.Error(err))

		if attempt < s.cfg.MaxRetries {
			timer := time.NewTimer(s.backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("context cancelled during registration: %w", ctx.Err())
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("failed to register after %d attempts: %w", s.cfg.MaxRetries, lastErr)
}

// SendHeartbeat sends one heartbeat. A node that lost the coordinator
// re-registers first so the coordinator resets its view of the node.
func (s *HeartbeatService) SendHeartbeat(ctx context.Context) error {
	if !s.registered.Load() {
		err := s.coordinator.Register(ctx, s.cfg.NodeID, s.cfg.URL)
		s.metrics.RecordRegistration(err)
		if err != nil {
			s.recordFailure(err)
			return err
		}
		s.registered.Store(true)
		s.logger.Info("Re-registered with coordinator", zap.String("node_id", s.cfg.NodeID))
	}

	req, err := s.buildHeartbeat(ctx)
	if err != nil {
		s.logger.Error("Failed to collect heartbeat inventory", zap.Error(err))
		return err
	}

	err = s.coordinator.Heartbeat(ctx, req)
	s.metrics.RecordHeartbeat(err)
	if err != nil {
		s.registered.Store(false)
		s.recordFailure(err)
		return err
	}

	if n := s.consecutiveFailures.Swap(0); n > 0 {
		s.logger.Info("Connection to coordinator restored", zap.Int64("failed_attempts", n))
	}
	return nil
}

func (s *HeartbeatService) recordFailure(err error) {
	n := s.consecutiveFailures.Add(1)
	if n == 1 {
		s.logger.Warn("Lost connection to coordinator", zap.Error(err))
	} else if n%4 == 0 {
		s.logger.Warn("Coordinator still unavailable",
			zap.Int64("failed_attempts", n),
			zap.Error(err))
	}
}

func (s *HeartbeatService) buildHeartbeat(ctx context.Context) (*api.HeartbeatRequest, error) {
	inv, err := s.inventory.Inventory(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.inventory.Stats(ctx)
	if err != nil {
		return nil, err
	}

	status := model.NodeStatusUp
	if s.disk != nil {
		status = model.StatusForDisk(s.disk.GetDiskUsage().IsCircuitBroken)
	}

	return &api.HeartbeatRequest{
		NodeID:        s.cfg.NodeID,
		URL:           s.cfg.URL,
		Status:        string(status),
		Timestamp:     time.Now().UnixMilli(),
		Inventory:     inv,
		TotalChunks:   st.TotalChunks,
		StorageUsedMB: st.StorageUsedMB(),
	}, nil
}

// Start registers in the background and then heartbeats every interval
func (s *HeartbeatService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

func (s *HeartbeatService) run(ctx context.Context) {
	if err := s.RegisterWithRetry(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("Initial registration failed, heartbeats will keep retrying", zap.Error(err))
	}

	s.SendHeartbeat(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Heartbeat sender stopped")
			return
		case <-ticker.C:
			s.SendHeartbeat(ctx)
		}
	}
}

// Stop cancels the sender and waits for it to exit
func (s *HeartbeatService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
