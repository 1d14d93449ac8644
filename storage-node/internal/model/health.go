package model

// NodeStatus defines the operational status of a node as reported to the
// coordinator and to gossip peers
type NodeStatus string

const (
	NodeStatusUp       NodeStatus = "UP"
	NodeStatusDegraded NodeStatus = "DEGRADED"
)

// NodeMeta is the state a storage node shares with its gossip peers
type NodeMeta struct {
	NodeID      string     `json:"nodeId"`
	URL         string     `json:"url"`
	Status      NodeStatus `json:"status"`
	TotalChunks int        `json:"totalChunks"`
	DiskUsage   float64    `json:"diskUsagePercent"`
	Timestamp   int64      `json:"timestamp"`
}

// StatusForDisk degrades a node whose disk guard has tripped
func StatusForDisk(circuitBroken bool) NodeStatus {
	if circuitBroken {
		return NodeStatusDegraded
	}
	return NodeStatusUp
}
