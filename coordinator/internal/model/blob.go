package model

import (
	"sort"
	"time"
)

// ReplicaLocation is one stored copy of a chunk. Slot 0 is the primary.
// Slots are never renumbered after removals, so gaps are expected.
type ReplicaLocation struct {
	ChunkIndex   int    `json:"chunkIndex"`
	NodeEndpoint string `json:"nodeEndpoint"`
	Slot         int    `json:"replicaIndex"`
}

// BlobMetadata is the placement record of a blob
type BlobMetadata struct {
	BlobID    string            `json:"blobId"`
	Size      int64             `json:"size"`
	ChunkSize int               `json:"chunkSize"`
	CreatedAt time.Time         `json:"createdAt"`
	Replicas  []ReplicaLocation `json:"chunks"`
}

// NumChunks returns ceil(Size/ChunkSize).
func NumChunks(size int64, chunkSize int) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	cs := int64(chunkSize)
	return int((size + cs - 1) / cs)
}

// NumChunks returns the number of chunks the blob is split into.
func (b *BlobMetadata) NumChunks() int {
	return NumChunks(b.Size, b.ChunkSize)
}

// Clone returns a deep copy.
func (b *BlobMetadata) Clone() *BlobMetadata {
	if b == nil {
		return nil
	}
	c := *b
	c.Replicas = append([]ReplicaLocation(nil), b.Replicas...)
	return &c
}

// ReplicasByChunk groups replica locations by chunk index, each group ordered by slot.
func (b *BlobMetadata) ReplicasByChunk() map[int][]ReplicaLocation {
	groups := make(map[int][]ReplicaLocation)
	for _, r := range b.Replicas {
		groups[r.ChunkIndex] = append(groups[r.ChunkIndex], r)
	}
	for idx := range groups {
		g := groups[idx]
		sort.SliceStable(g, func(i, j int) bool { return g[i].Slot < g[j].Slot })
	}
	return groups
}

// ChunkIndices returns the distinct chunk indices that have at least one
// location, ascending.
func (b *BlobMetadata) ChunkIndices() []int {
	seen := make(map[int]struct{})
	var out []int
	for _, r := range b.Replicas {
		if _, ok := seen[r.ChunkIndex]; ok {
			continue
		}
		seen[r.ChunkIndex] = struct{}{}
		out = append(out, r.ChunkIndex)
	}
	sort.Ints(out)
	return out
}

// HasReplica reports whether the chunk is already placed on endpoint.
func (b *BlobMetadata) HasReplica(chunkIndex int, endpoint string) bool {
	for _, r := range b.Replicas {
		if r.ChunkIndex == chunkIndex && r.NodeEndpoint == endpoint {
			return true
		}
	}
	return false
}

// NextSlot returns one past the highest slot used by the chunk, or 0.
func (b *BlobMetadata) NextSlot(chunkIndex int) int {
	next := 0
	for _, r := range b.Replicas {
		if r.ChunkIndex == chunkIndex && r.Slot >= next {
			next = r.Slot + 1
		}
	}
	return next
}

// FilterReplicas returns a copy keeping only replicas for which keep is true.
func (b *BlobMetadata) FilterReplicas(keep func(ReplicaLocation) bool) *BlobMetadata {
	c := b.Clone()
	c.Replicas = c.Replicas[:0]
	for _, r := range b.Replicas {
		if keep(r) {
			c.Replicas = append(c.Replicas, r)
		}
	}
	return c
}
