package service

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/metrics"
	"github.com/devrev/pairfs/coordinator/internal/model"
	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/pkg/apierrors"
)

// MembershipService tracks storage nodes by endpoint. Health is derived from
// the last heartbeat whenever it is consulted; there is no down transition.
type MembershipService struct {
	mu      sync.RWMutex
	nodes   map[string]*model.NodeRecord
	timeout time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewMembershipService creates a membership tracker with the given heartbeat timeout
func NewMembershipService(timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *MembershipService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MembershipService{
		nodes:   make(map[string]*model.NodeRecord),
		timeout: timeout,
		now:     time.Now,
		metrics: m,
		logger:  logger,
	}
}

// SetClock replaces the wall clock, for tests.
func (s *MembershipService) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Timeout returns the heartbeat timeout.
func (s *MembershipService) Timeout() time.Duration {
	return s.timeout
}

func normalizeEndpoint(endpoint string) string {
	return strings.TrimRight(strings.TrimSpace(endpoint), "/")
}

// Register upserts a node and resets its heartbeat clock and inventory.
func (s *MembershipService) Register(endpoint, id string) error {
	endpoint = normalizeEndpoint(endpoint)
	if endpoint == "" {
		return apierrors.BadRequest("url is required")
	}
	if id == "" {
		id = endpoint
	}

	s.mu.Lock()
	now := s.now()
	node, ok := s.nodes[endpoint]
	if !ok {
		node = &model.NodeRecord{Endpoint: endpoint}
		s.nodes[endpoint] = node
	}
	node.ID = id
	node.Status = "registered"
	node.RegisteredAt = now
	node.LastHeartbeat = now
	node.Inventory = make(map[string][]int)
	node.TotalChunks = 0
	node.StorageUsedMB = 0
	healthy, total := s.countLocked(now)
	s.mu.Unlock()

	s.metrics.UpdateStorageNodes(healthy, total)
	s.logger.Info("Storage node registered",
		zap.String("node_id", id),
		zap.String("endpoint", endpoint),
		zap.Bool("new", !ok))
	return nil
}

// Heartbeat records a liveness report, creating the node if it is unknown.
func (s *MembershipService) Heartbeat(req *api.HeartbeatRequest) error {
	endpoint := normalizeEndpoint(req.URL)
	if endpoint == "" {
		return apierrors.BadRequest("url is required")
	}
	id := req.NodeID
	if id == "" {
		id = endpoint
	}

	inventory := make(map[string][]int, len(req.Inventory))
	for blobID, indices := range req.Inventory {
		inventory[blobID] = append([]int(nil), indices...)
	}

	s.mu.Lock()
	now := s.now()
	node, ok := s.nodes[endpoint]
	if !ok {
		node = &model.NodeRecord{Endpoint: endpoint, RegisteredAt: now}
		s.nodes[endpoint] = node
	}
	wasHealthy := ok && node.Healthy(now, s.timeout)
	node.ID = id
	node.Status = req.Status
	node.LastHeartbeat = now
	node.Inventory = inventory
	node.TotalChunks = req.TotalChunks
	node.StorageUsedMB = req.StorageUsedMB
	healthy, total := s.countLocked(now)
	s.mu.Unlock()

	s.metrics.RecordHeartbeat()
	s.metrics.UpdateStorageNodes(healthy, total)
	if !wasHealthy {
		s.logger.Info("Storage node healthy",
			zap.String("node_id", id),
			zap.String("endpoint", endpoint),
			zap.Bool("new", !ok))
	}
	return nil
}

func (s *MembershipService) countLocked(now time.Time) (healthy, total int) {
	for _, node := range s.nodes {
		if node.Healthy(now, s.timeout) {
			healthy++
		}
	}
	return healthy, len(s.nodes)
}

// HealthyNodes returns copies of the healthy node records ordered by endpoint.
func (s *MembershipService) HealthyNodes() []*model.NodeRecord {
	return s.collect(true)
}

// Nodes returns copies of every known node record ordered by endpoint.
func (s *MembershipService) Nodes() []*model.NodeRecord {
	return s.collect(false)
}

func (s *MembershipService) collect(healthyOnly bool) []*model.NodeRecord {
	s.mu.RLock()
	now := s.now()
	out := make([]*model.NodeRecord, 0, len(s.nodes))
	for _, node := range s.nodes {
		if healthyOnly && !node.Healthy(now, s.timeout) {
			continue
		}
		out = append(out, node.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

// HealthyEndpoints returns the endpoints of healthy nodes ordered by endpoint.
func (s *MembershipService) HealthyEndpoints() []string {
	nodes := s.HealthyNodes()
	out := make([]string, len(nodes))
	for i, node := range nodes {
		out[i] = node.Endpoint
	}
	return out
}

// HealthyCount returns the number of healthy nodes.
func (s *MembershipService) HealthyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	healthy, _ := s.countLocked(s.now())
	return healthy
}

// IsHealthy reports whether the node at endpoint heartbeated within the timeout.
func (s *MembershipService) IsHealthy(endpoint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[normalizeEndpoint(endpoint)]
	return ok && node.Healthy(s.now(), s.timeout)
}

// Node returns a copy of the record for endpoint.
func (s *MembershipService) Node(endpoint string) (*model.NodeRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[normalizeEndpoint(endpoint)]
	if !ok {
		return nil, false
	}
	return node.Clone(), true
}
