package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger is a dependency whose availability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NodeCounter reports how many storage nodes are currently healthy.
type NodeCounter interface {
	HealthyCount() int
}

// HealthChecker provides health check endpoints
type HealthChecker struct {
	metadataStore Pinger
	membership    NodeCounter
	logger        *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(metadataStore Pinger, membership NodeCounter, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		metadataStore: metadataStore,
		membership:    membership,
		logger:        logger,
	}
}

// LivenessHandler handles liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ReadinessHandler handles readiness probe requests. The coordinator is ready
// when its snapshot backend answers; an empty cluster is reported but does not
// make the coordinator unready, since nodes register against it.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.checkMetadataStore(ctx); err != nil {
		h.logger.Error("Metadata store health check failed", zap.Error(err))
		checks["metadata_store"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["metadata_store"] = "healthy"
	}

	if h.membership != nil {
		checks["storage_nodes"] = fmt.Sprintf("%d healthy", h.membership.HealthyCount())
	}

	status := HealthStatus{
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")

	if allHealthy {
		status.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		status.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(status)
}

func (h *HealthChecker) checkMetadataStore(ctx context.Context) error {
	if h.metadataStore == nil {
		return nil
	}
	return h.metadataStore.Ping(ctx)
}
