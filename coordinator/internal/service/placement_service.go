package service

import (
	"sort"

	"github.com/devrev/pairfs/coordinator/internal/model"
)

// PlacementService selects replica sets for chunks from the healthy nodes.
// Selection is deterministic for a given chunk index and load snapshot.
type PlacementService struct {
	replicationFactor int
	chunkSize         int
}

// NewPlacementService creates a placement planner
func NewPlacementService(replicationFactor, chunkSize int) *PlacementService {
	return &PlacementService{
		replicationFactor: replicationFactor,
		chunkSize:         chunkSize,
	}
}

// ReplicaCount returns how many replicas a chunk gets with n healthy nodes.
func (p *PlacementService) ReplicaCount(n int) int {
	if n < p.replicationFactor {
		return n
	}
	return p.replicationFactor
}

// Rank orders nodes by ascending load: reported chunk count, then estimated
// bytes used, then endpoint. The result is the load snapshot for one plan.
func (p *PlacementService) Rank(nodes []*model.NodeRecord) []string {
	type load struct {
		endpoint string
		chunks   int
		bytes    int64
	}
	loads := make([]load, len(nodes))
	for i, node := range nodes {
		loads[i] = load{
			endpoint: node.Endpoint,
			chunks:   node.ChunkCount(),
			bytes:    node.EstimatedBytes(p.chunkSize),
		}
	}
	sort.Slice(loads, func(i, j int) bool {
		a, b := loads[i], loads[j]
		if a.chunks != b.chunks {
			return a.chunks < b.chunks
		}
		if a.bytes != b.bytes {
			return a.bytes < b.bytes
		}
		return a.endpoint < b.endpoint
	})

	ranked := make([]string, len(loads))
	for i, l := range loads {
		ranked[i] = l.endpoint
	}
	return ranked
}

// Select returns the replica set for chunkIndex: the ranked list rotated left
// by chunkIndex mod n, truncated to min(replicationFactor, n). Position in the
// result is the replica slot.
func (p *PlacementService) Select(chunkIndex int, ranked []string) []string {
	n := len(ranked)
	if n == 0 {
		return nil
	}
	r := p.ReplicaCount(n)
	offset := chunkIndex % n
	if offset < 0 {
		offset += n
	}
	out := make([]string, r)
	for i := 0; i < r; i++ {
		out[i] = ranked[(offset+i)%n]
	}
	return out
}

// Plan places every chunk of a blob of size bytes using one load snapshot.
func (p *PlacementService) Plan(size int64, nodes []*model.NodeRecord) []model.ReplicaLocation {
	ranked := p.Rank(nodes)
	numChunks := model.NumChunks(size, p.chunkSize)
	locations := make([]model.ReplicaLocation, 0, numChunks*p.ReplicaCount(len(ranked)))
	for idx := 0; idx < numChunks; idx++ {
		for slot, endpoint := range p.Select(idx, ranked) {
			locations = append(locations, model.ReplicaLocation{
				ChunkIndex:   idx,
				NodeEndpoint: endpoint,
				Slot:         slot,
			})
		}
	}
	return locations
}
