package model

import "time"

// NodeRecord tracks one storage node as seen through registration and heartbeats.
// Records are never deleted; stale nodes are only excluded from the healthy set.
type NodeRecord struct {
	ID            string
	Endpoint      string
	Status        string
	RegisteredAt  time.Time
	LastHeartbeat time.Time
	Inventory     map[string][]int
	TotalChunks   int
	StorageUsedMB float64
}

// Healthy reports whether the node heartbeated within timeout of now.
func (n *NodeRecord) Healthy(now time.Time, timeout time.Duration) bool {
	return now.Sub(n.LastHeartbeat) < timeout
}

// ChunkCount returns the reported chunk total, falling back to the inventory size.
func (n *NodeRecord) ChunkCount() int {
	if n.TotalChunks > 0 {
		return n.TotalChunks
	}
	count := 0
	for _, idx := range n.Inventory {
		count += len(idx)
	}
	return count
}

// EstimatedBytes returns the reported storage use, or chunkCount*chunkSize when
// the node did not report it.
func (n *NodeRecord) EstimatedBytes(chunkSize int) int64 {
	if n.StorageUsedMB > 0 {
		return int64(n.StorageUsedMB * 1024 * 1024)
	}
	return int64(n.ChunkCount()) * int64(chunkSize)
}

// Clone returns a deep copy.
func (n *NodeRecord) Clone() *NodeRecord {
	c := *n
	c.Inventory = make(map[string][]int, len(n.Inventory))
	for blobID, idx := range n.Inventory {
		c.Inventory[blobID] = append([]int(nil), idx...)
	}
	return &c
}
