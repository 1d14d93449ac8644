// Package health provides health check endpoints for the gateway.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/pkg/api"
)

// StatusChecker reports cluster status; the coordinator client satisfies it.
type StatusChecker interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
}

// HealthObserver is notified of readiness changes.
type HealthObserver interface {
	SetHealthStatus(healthy bool)
}

// HealthCheck tracks whether the coordinator is reachable.
type HealthCheck struct {
	coordinator   StatusChecker
	observer      HealthObserver
	logger        *zap.Logger
	checkInterval time.Duration
	checkTimeout  time.Duration

	mu           sync.RWMutex
	ready        bool
	healthyNodes int
	lastErr      error
	lastCheck    time.Time
}

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthCheck creates a new HealthCheck. observer may be nil.
func NewHealthCheck(coordinator StatusChecker, observer HealthObserver, logger *zap.Logger) *HealthCheck {
	return &HealthCheck{
		coordinator:   coordinator,
		observer:      observer,
		logger:        logger,
		checkInterval: 5 * time.Second,
		checkTimeout:  5 * time.Second,
	}
}

// Start runs periodic checks until ctx is done.
func (hc *HealthCheck) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(hc.checkInterval)
		defer ticker.Stop()

		hc.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hc.Check(ctx)
			}
		}
	}()
}

// Check queries the coordinator once and records the result.
func (hc *HealthCheck) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, hc.checkTimeout)
	defer cancel()

	status, err := hc.coordinator.Status(ctx)

	hc.mu.Lock()
	wasReady := hc.ready
	hc.ready = err == nil
	hc.lastErr = err
	hc.lastCheck = time.Now()
	if err == nil {
		hc.healthyNodes = status.HealthyNodes
	}
	hc.mu.Unlock()

	if err != nil && wasReady {
		hc.logger.Warn("Coordinator health check failed", zap.Error(err))
	}
	if hc.observer != nil {
		hc.observer.SetHealthStatus(err == nil)
	}
	return err == nil
}

// IsReady returns the current readiness status.
func (hc *HealthCheck) IsReady() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.ready
}

// LivenessHandler handles GET /health/live. It reports OK while the process runs.
func (hc *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	})
}

// ReadinessHandler handles GET /health/ready. A cached failure is re-checked
// before answering so the gateway becomes ready as soon as the coordinator is.
func (hc *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if !hc.IsReady() {
		hc.Check(r.Context())
	}

	hc.mu.RLock()
	ready, nodes, lastErr := hc.ready, hc.healthyNodes, hc.lastErr
	hc.mu.RUnlock()

	if !ready {
		msg := "unreachable"
		if lastErr != nil {
			msg = "unhealthy: " + lastErr.Error()
		}
		writeStatus(w, http.StatusServiceUnavailable, HealthStatus{
			Status:    "not_ready",
			Timestamp: time.Now().Unix(),
			Checks:    map[string]string{"coordinator": msg},
		})
		return
	}

	writeStatus(w, http.StatusOK, HealthStatus{
		Status:    "ready",
		Timestamp: time.Now().Unix(),
		Checks: map[string]string{
			"coordinator":   "healthy",
			"storage_nodes": fmt.Sprintf("%d healthy", nodes),
		},
	})
}

func writeStatus(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
