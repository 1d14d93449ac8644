package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), "cs-1")

	m.RecordChunkOp("write", time.Millisecond, 32768, nil)
	m.RecordChunkOp("write", time.Millisecond, 0, errors.New("disk full"))
	m.RecordHeartbeat(nil)
	m.RecordHeartbeat(errors.New("refused"))
	m.RecordHeartbeat(errors.New("refused"))
	m.UpdateInventory(12, 4096)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChunkOpsTotal.WithLabelValues("write", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChunkOpsTotal.WithLabelValues("write", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HeartbeatsTotal.WithLabelValues("failure")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.ChunksStored))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/chunk/read", 200, time.Millisecond)
		m.RecordChunkOp("read", time.Millisecond, 10, nil)
		m.RecordChecksumFailure()
		m.RecordDiskFull()
		m.RecordRegistration(nil)
		m.UpdateGossipMembers(3)
		m.UpdateSystemStats(50, 1, 1, 1)
	})
}
