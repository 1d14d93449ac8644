package api

// WriteChunkRequest is the body of POST /chunk/write. Data travels base64 encoded.
type WriteChunkRequest struct {
	BlobID     string `json:"blobId"`
	PdfID      string `json:"pdfId,omitempty"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       []byte `json:"data"`
}

// ResolvedBlobID returns the blob id, accepting the legacy pdfId field.
func (r *WriteChunkRequest) ResolvedBlobID() string {
	if r.BlobID != "" {
		return r.BlobID
	}
	return r.PdfID
}

// ReadChunkResponse is the body of GET /chunk/read.
type ReadChunkResponse struct {
	BlobID     string `json:"blobId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       []byte `json:"data"`
	Size       int    `json:"size"`
}

// ExistsResponse is the body of GET /chunk/exists.
type ExistsResponse struct {
	Exists bool `json:"exists"`
}

// Inventory maps blob id to the chunk indices present on a node.
type Inventory map[string][]int

// PeerInfo is a gossip peer as seen by a storage node.
type PeerInfo struct {
	NodeID      string `json:"nodeId"`
	URL         string `json:"url"`
	Address     string `json:"address"`
	TotalChunks int    `json:"totalChunks"`
}

// NodeStatsResponse is the body of GET /chunk/stats.
type NodeStatsResponse struct {
	NodeID        string     `json:"nodeId"`
	TotalChunks   int        `json:"totalChunks"`
	StorageUsedMB float64    `json:"storageUsedMB"`
	DiskUsage     float64    `json:"diskUsagePercent"`
	Peers         []PeerInfo `json:"peers,omitempty"`
}
