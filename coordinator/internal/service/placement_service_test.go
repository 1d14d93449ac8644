package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/devrev/pairfs/coordinator/internal/model"
)

func TestPlacementRank(t *testing.T) {
	p := NewPlacementService(3, 4)
	nodes := []*model.NodeRecord{
		{Endpoint: "http://a", TotalChunks: 5},
		{Endpoint: "http://b", TotalChunks: 1, StorageUsedMB: 2},
		{Endpoint: "http://c", TotalChunks: 1, StorageUsedMB: 1},
		{Endpoint: "http://d", Inventory: map[string][]int{"x": {0}}},
		{Endpoint: "http://e"},
	}

	assert.Equal(t, []string{"http://e", "http://d", "http://c", "http://b", "http://a"}, p.Rank(nodes))
}

func TestPlacementSelectRotates(t *testing.T) {
	p := NewPlacementService(2, 4)
	ranked := []string{"a", "b", "c"}

	assert.Equal(t, []string{"a", "b"}, p.Select(0, ranked))
	assert.Equal(t, []string{"b", "c"}, p.Select(1, ranked))
	assert.Equal(t, []string{"c", "a"}, p.Select(2, ranked))
	assert.Equal(t, []string{"a", "b"}, p.Select(3, ranked))
	assert.Nil(t, p.Select(0, nil))
}

func TestPlacementReplicaCountCappedByHealthyNodes(t *testing.T) {
	p := NewPlacementService(3, 4)
	nodes := []*model.NodeRecord{{Endpoint: "http://a"}, {Endpoint: "http://b"}}

	// 10 bytes at chunk size 4: chunks of 4, 4 and 2 bytes.
	locs := p.Plan(10, nodes)
	groups := (&model.BlobMetadata{Replicas: locs}).ReplicasByChunk()

	assert.Len(t, groups, 3)
	for idx := 0; idx < 3; idx++ {
		replicas := groups[idx]
		assert.Len(t, replicas, 2, "chunk %d", idx)
		assert.Equal(t, 0, replicas[0].Slot)
		assert.Equal(t, 1, replicas[1].Slot)
		assert.NotEqual(t, replicas[0].NodeEndpoint, replicas[1].NodeEndpoint)
	}
}

func TestPlacementDeterministic(t *testing.T) {
	p := NewPlacementService(2, 8)
	nodes := []*model.NodeRecord{{Endpoint: "http://c"}, {Endpoint: "http://a"}, {Endpoint: "http://b"}}

	assert.Equal(t, p.Plan(100, nodes), p.Plan(100, nodes))
	assert.Empty(t, p.Plan(0, nodes))
}
