// Package api defines the JSON wire types exchanged between the coordinator,
// storage nodes and clients.
package api

import "time"

// PlanUploadRequest is the body of POST /plan-upload.
type PlanUploadRequest struct {
	BlobID string `json:"blobId"`
	Size   int64  `json:"size"`
}

// ChunkPlacement is one replica location of a chunk.
type ChunkPlacement struct {
	ChunkIndex   int    `json:"chunkIndex"`
	NodeEndpoint string `json:"nodeEndpoint"`
	ReplicaIndex int    `json:"replicaIndex"`
}

// PlanUploadResponse is the placement plan returned for an upload.
type PlanUploadResponse struct {
	BlobID            string           `json:"blobId"`
	Size              int64            `json:"size"`
	ChunkSize         int              `json:"chunkSize"`
	ReplicationFactor int              `json:"replicationFactor"`
	Chunks            []ChunkPlacement `json:"chunks"`
}

// BlobMetadataResponse is the body of GET /metadata/{blobId} and an entry of GET /blobs.
type BlobMetadataResponse struct {
	BlobID    string           `json:"blobId"`
	Size      int64            `json:"size"`
	ChunkSize int              `json:"chunkSize,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	Chunks    []ChunkPlacement `json:"chunks"`
}

// HeartbeatRequest is the periodic liveness report sent by a storage node.
type HeartbeatRequest struct {
	NodeID        string           `json:"nodeId"`
	URL           string           `json:"url"`
	Status        string           `json:"status"`
	Timestamp     int64            `json:"timestamp"`
	Inventory     map[string][]int `json:"inventory"`
	TotalChunks   int              `json:"totalChunks"`
	StorageUsedMB float64          `json:"storageUsedMB"`
}

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

// AckResponse acknowledges a mutating request.
type AckResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NodeLoad describes one storage node in the status report.
type NodeLoad struct {
	NodeID        string    `json:"nodeId"`
	URL           string    `json:"url"`
	Healthy       bool      `json:"healthy"`
	Chunks        int       `json:"chunks"`
	StorageUsedMB float64   `json:"storageUsedMB"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	TotalNodes        int        `json:"totalNodes"`
	HealthyNodes      int        `json:"healthyNodes"`
	UnhealthyNodes    int        `json:"unhealthyNodes"`
	HealthyServers    []string   `json:"healthyServers"`
	TotalBlobs        int        `json:"totalBlobs"`
	ChunkSize         int        `json:"chunkSize"`
	ReplicationFactor int        `json:"replicationFactor"`
	TotalChunks       int        `json:"totalChunks"`
	TotalReplicas     int        `json:"totalReplicas"`
	LoadDistribution  []NodeLoad `json:"loadDistribution"`
}

// PassResult summarizes a single integrity monitor pass run.
type PassResult struct {
	Pass       string        `json:"pass"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	Checked    int           `json:"checked"`
	Repaired   int           `json:"repaired"`
	Relocated  int           `json:"relocated"`
	Created    int           `json:"created"`
	Removed    int           `json:"removed"`
	Unresolved int           `json:"unresolved"`
}

// IntegrityStatsResponse is the body of GET /integrity/stats.
type IntegrityStatsResponse struct {
	TotalChecks              int64                `json:"totalChecks"`
	TotalRepairs             int64                `json:"totalRepairs"`
	TotalRelocations         int64                `json:"totalRelocations"`
	TotalReReplications      int64                `json:"totalReReplications"`
	TotalOverReplicasRemoved int64                `json:"totalOverReplicasRemoved"`
	TotalStaleRemoved        int64                `json:"totalStaleRemoved"`
	TotalGarbageCollected    int64                `json:"totalGarbageCollected"`
	TotalUnresolved          int64                `json:"totalUnresolved"`
	LastRun                  map[string]time.Time `json:"lastRun"`
}
