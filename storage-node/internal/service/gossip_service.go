package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/storage-node/internal/metrics"
	"github.com/devrev/pairfs/storage-node/internal/model"
)

// GossipConfig holds gossip protocol configuration
type GossipConfig struct {
	BindAddr       string
	BindPort       int
	SeedNodes      []string
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
}

// GossipService shares node meta between storage nodes so each can report
// its peers. The coordinator remains the authority on membership.
type GossipService struct {
	memberlist *memberlist.Memberlist
	nodeID     string
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu      sync.RWMutex
	local   model.NodeMeta
	members atomic.Int64
}

// NewGossipService creates a memberlist node and joins the seed nodes
func NewGossipService(cfg *GossipConfig, self model.NodeMeta, m *metrics.Metrics, logger *zap.Logger) (*GossipService, error) {
	gs := &GossipService{
		nodeID:  self.NodeID,
		metrics: m,
		logger:  logger,
		local:   self,
	}
	gs.local.Timestamp = time.Now().Unix()
	if gs.local.Status == "" {
		gs.local.Status = model.NodeStatusUp
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = self.NodeID
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	if cfg.ProbeTimeout > 0 {
		mlConfig.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.ProbeInterval > 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	mlConfig.Delegate = gs
	mlConfig.Events = &GossipEventDelegate{service: gs}
	mlConfig.Logger = zap.NewStdLog(logger.Named("memberlist"))

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	gs.memberlist = ml

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("Failed to join some seed nodes", zap.Error(err))
		}
	}

	return gs, nil
}

// Addr returns the host:port other nodes use to join this one
func (s *GossipService) Addr() string {
	return s.memberlist.LocalNode().Address()
}

// Join adds seed addresses after startup
func (s *GossipService) Join(seeds []string) (int, error) {
	return s.memberlist.Join(seeds)
}

// NodeMeta implements memberlist.Delegate
func (s *GossipService) NodeMeta(limit int) []byte {
	s.mu.RLock()
	data, err := json.Marshal(s.local)
	s.mu.RUnlock()
	if err != nil || len(data) > limit {
		return nil
	}
	return data
}

// NotifyMsg implements memberlist.Delegate
func (s *GossipService) NotifyMsg(data []byte) {}

// GetBroadcasts implements memberlist.Delegate
func (s *GossipService) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState implements memberlist.Delegate
func (s *GossipService) LocalState(join bool) []byte {
	return nil
}

// MergeRemoteState implements memberlist.Delegate
func (s *GossipService) MergeRemoteState(buf []byte, join bool) {}

// UpdateLocal refreshes the meta advertised to peers
func (s *GossipService) UpdateLocal(totalChunks int, diskUsage float64, status model.NodeStatus) {
	s.mu.Lock()
	s.local.TotalChunks = totalChunks
	s.local.DiskUsage = diskUsage
	s.local.Status = status
	s.local.Timestamp = time.Now().Unix()
	s.mu.Unlock()

	if err := s.memberlist.UpdateNode(time.Second); err != nil {
		s.logger.Debug("Failed to propagate node meta", zap.Error(err))
	}
}

// Peers lists the other live members with their advertised meta
func (s *GossipService) Peers() []api.PeerInfo {
	members := s.memberlist.Members()
	peers := make([]api.PeerInfo, 0, len(members))
	for _, node := range members {
		if node.Name == s.nodeID {
			continue
		}
		peer := api.PeerInfo{
			NodeID:  node.Name,
			Address: node.Address(),
		}
		var meta model.NodeMeta
		if len(node.Meta) > 0 && json.Unmarshal(node.Meta, &meta) == nil {
			peer.URL = meta.URL
			peer.TotalChunks = meta.TotalChunks
		}
		peers = append(peers, peer)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].NodeID < peers[j].NodeID })
	return peers
}

// Run periodically republishes local meta from the inventory source until ctx ends
func (s *GossipService) Run(ctx context.Context, inv InventorySource, disk DiskGuard, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := inv.Stats(ctx)
			if err != nil {
				continue
			}
			var usage float64
			broken := false
			if disk != nil {
				du := disk.GetDiskUsage()
				usage, broken = du.UsagePercent, du.IsCircuitBroken
			}
			s.UpdateLocal(st.TotalChunks, usage, model.StatusForDisk(broken))
		}
	}
}

// Shutdown leaves the cluster and shuts down the gossip service
func (s *GossipService) Shutdown() error {
	if err := s.memberlist.Leave(time.Second); err != nil {
		s.logger.Debug("Failed to leave gossip cluster cleanly", zap.Error(err))
	}
	return s.memberlist.Shutdown()
}

// GossipEventDelegate handles memberlist events
type GossipEventDelegate struct {
	service *GossipService
}

func (d *GossipEventDelegate) updateMembers(delta int64) {
	d.service.metrics.UpdateGossipMembers(int(d.service.members.Add(delta)))
}

// NotifyJoin is called when a node joins
func (d *GossipEventDelegate) NotifyJoin(node *memberlist.Node) {
	d.service.logger.Info("Node joined",
		zap.String("node_id", node.Name),
		zap.String("addr", node.Address()))
	d.updateMembers(1)
}

// NotifyLeave is called when a node leaves
func (d *GossipEventDelegate) NotifyLeave(node *memberlist.Node) {
	d.service.logger.Info("Node left",
		zap.String("node_id", node.Name))
	d.updateMembers(-1)
}

// NotifyUpdate is called when a node is updated
func (d *GossipEventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.service.logger.Debug("Node updated",
		zap.String("node_id", node.Name))
}
