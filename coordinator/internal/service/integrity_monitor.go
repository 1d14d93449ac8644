package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/config"
	"github.com/devrev/pairfs/coordinator/internal/metrics"
	"github.com/devrev/pairfs/coordinator/internal/model"
	"github.com/devrev/pairfs/coordinator/internal/store"
	"github.com/devrev/pairfs/coordinator/internal/util/workerpool"
	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/pkg/apierrors"
)

// Integrity pass names.
const (
	PassRepair      = "repair"
	PassReplication = "replication"
	PassStale       = "stale"
	PassGC          = "gc"
)

// Passes lists every integrity pass in scheduling order.
var Passes = []string{PassRepair, PassReplication, PassStale, PassGC}

// IntegrityMonitor runs the four reconciliation passes that drive physical
// chunk state toward the metadata. Passes run on independent timers and never
// lock each other out; every mutation names an explicit (blob, chunk, node).
type IntegrityMonitor struct {
	metadataStore     store.MetadataStore
	membership        NodeDirectory
	placement         *PlacementService
	chunks            ChunkClient
	probes            *store.ProbeCache
	pool              *workerpool.WorkerPool
	cfg               config.IntegrityConfig
	replicationFactor int
	now               func() time.Time
	metrics           *metrics.Metrics
	logger            *zap.Logger

	running map[string]*int32

	totalChecks         int64
	totalRepairs        int64
	totalRelocations    int64
	totalReReplications int64
	totalOverRemoved    int64
	totalStaleRemoved   int64
	totalGarbage        int64
	totalUnresolved     int64

	lastRunMu sync.Mutex
	lastRun   map[string]time.Time

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewIntegrityMonitor creates a monitor. Passes run only after Start or RunPass.
func NewIntegrityMonitor(
	metadataStore store.MetadataStore,
	membership NodeDirectory,
	placement *PlacementService,
	chunks ChunkClient,
	probes *store.ProbeCache,
	cfg config.IntegrityConfig,
	replicationFactor int,
	m *metrics.Metrics,
	logger *zap.Logger,
) *IntegrityMonitor {
	if probes == nil {
		probes = store.NewProbeCache(0)
	}
	running := make(map[string]*int32, len(Passes))
	for _, pass := range Passes {
		running[pass] = new(int32)
	}
	return &IntegrityMonitor{
		metadataStore: metadataStore,
		membership:    membership,
		placement:     placement,
		chunks:        chunks,
		probes:        probes,
		pool: workerpool.NewWorkerPool(workerpool.Config{
			Name:       "integrity",
			MaxWorkers: cfg.Workers,
			Logger:     logger,
		}),
		cfg:               cfg,
		replicationFactor: replicationFactor,
		now:               time.Now,
		metrics:           m,
		logger:            logger,
		running:           running,
		lastRun:           make(map[string]time.Time),
	}
}

type passSchedule struct {
	pass     string
	delay    time.Duration
	interval time.Duration
}

func (m *IntegrityMonitor) schedules() []passSchedule {
	return []passSchedule{
		{PassRepair, m.cfg.RepairDelay, m.cfg.RepairInterval},
		{PassReplication, m.cfg.ReplicationDelay, m.cfg.ReplicationInterval},
		{PassStale, m.cfg.StaleDelay, m.cfg.StaleInterval},
		{PassGC, m.cfg.GCDelay, m.cfg.GCInterval},
	}
}

// Start launches one goroutine per pass. Each waits its initial delay and then
// runs on its own ticker until Stop is called or ctx is done.
func (m *IntegrityMonitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	for _, sched := range m.schedules() {
		if sched.interval <= 0 {
			m.logger.Warn("Integrity pass disabled: no interval", zap.String("pass", sched.pass))
			continue
		}
		m.wg.Add(1)
		go m.loop(ctx, sched)
	}

	m.logger.Info("Integrity monitor started",
		zap.Int("workers", m.cfg.Workers),
		zap.String("stale_policy", m.cfg.StaleCleanup.Policy))
}

func (m *IntegrityMonitor) loop(ctx context.Context, sched passSchedule) {
	defer m.wg.Done()

	delay := time.NewTimer(sched.delay)
	defer delay.Stop()
	select {
	case <-ctx.Done():
		return
	case <-delay.C:
	}

	ticker := time.NewTicker(sched.interval)
	defer ticker.Stop()

	for {
		if _, err := m.RunPass(ctx, sched.pass); err != nil && ctx.Err() == nil {
			m.logger.Warn("Integrity pass did not run",
				zap.String("pass", sched.pass),
				zap.Error(err))
		}

		// A tick that fired while the pass was running is dropped.
		select {
		case <-ticker.C:
			m.metrics.RecordPass(sched.pass, "skipped", 0)
			m.logger.Debug("Integrity pass tick skipped, previous run overlapped", zap.String("pass", sched.pass))
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels every pass and waits for the pass goroutines to exit.
func (m *IntegrityMonitor) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()
		if err := m.pool.Stop(10 * time.Second); err != nil {
			m.logger.Warn("Integrity worker pool did not stop cleanly", zap.Error(err))
		}
		m.logger.Info("Integrity monitor stopped")
	})
}

// RunPass runs one pass synchronously. It fails with Unavailable when the
// same pass is already running and BadRequest for an unknown pass name.
func (m *IntegrityMonitor) RunPass(ctx context.Context, pass string) (*api.PassResult, error) {
	flag, ok := m.running[pass]
	if !ok {
		return nil, apierrors.BadRequest("unknown integrity pass %q (want repair, replication, stale or gc)", pass)
	}
	if !atomic.CompareAndSwapInt32(flag, 0, 1) {
		m.metrics.RecordPass(pass, "skipped", 0)
		return nil, apierrors.Unavailable("integrity pass %s is already running", pass)
	}
	defer atomic.StoreInt32(flag, 0)

	res := &passCounters{}
	started := m.now()

	var err error
	switch pass {
	case PassRepair:
		err = m.runRepair(ctx, res)
	case PassReplication:
		err = m.runReplication(ctx, res)
	case PassStale:
		err = m.runStaleCleanup(ctx, res)
	case PassGC:
		err = m.runOrphanGC(ctx, res)
	}

	result := res.result(pass, started, m.now().Sub(started))
	m.record(result)

	if err != nil {
		m.metrics.RecordPass(pass, "error", result.Duration)
		m.logger.Error("Integrity pass failed",
			zap.String("pass", pass),
			zap.Duration("duration", result.Duration),
			zap.Error(err))
		return result, err
	}

	m.metrics.RecordPass(pass, "ok", result.Duration)
	logFn := m.logger.Debug
	if result.Repaired+result.Relocated+result.Created+result.Removed+result.Unresolved > 0 {
		logFn = m.logger.Info
	}
	logFn("Integrity pass completed",
		zap.String("pass", pass),
		zap.Duration("duration", result.Duration),
		zap.Int("checked", result.Checked),
		zap.Int("repaired", result.Repaired),
		zap.Int("relocated", result.Relocated),
		zap.Int("created", result.Created),
		zap.Int("removed", result.Removed),
		zap.Int("unresolved", result.Unresolved))
	return result, nil
}

func (m *IntegrityMonitor) record(r *api.PassResult) {
	atomic.AddInt64(&m.totalChecks, int64(r.Checked))
	atomic.AddInt64(&m.totalUnresolved, int64(r.Unresolved))
	m.metrics.RecordPassAction(r.Pass, "unresolved", r.Unresolved)

	switch r.Pass {
	case PassRepair:
		atomic.AddInt64(&m.totalRepairs, int64(r.Repaired))
		atomic.AddInt64(&m.totalRelocations, int64(r.Relocated))
		m.metrics.RecordPassAction(r.Pass, "repaired", r.Repaired)
		m.metrics.RecordPassAction(r.Pass, "relocated", r.Relocated)
	case PassReplication:
		atomic.AddInt64(&m.totalReReplications, int64(r.Created))
		atomic.AddInt64(&m.totalOverRemoved, int64(r.Removed))
		m.metrics.RecordPassAction(r.Pass, "created", r.Created)
		m.metrics.RecordPassAction(r.Pass, "removed", r.Removed)
	case PassStale:
		atomic.AddInt64(&m.totalStaleRemoved, int64(r.Removed))
		m.metrics.RecordPassAction(r.Pass, "removed", r.Removed)
	case PassGC:
		atomic.AddInt64(&m.totalGarbage, int64(r.Removed))
		m.metrics.RecordPassAction(r.Pass, "removed", r.Removed)
	}

	m.lastRunMu.Lock()
	m.lastRun[r.Pass] = r.StartedAt
	m.lastRunMu.Unlock()
}

// Stats returns the cumulative counters since process start.
func (m *IntegrityMonitor) Stats() *api.IntegrityStatsResponse {
	m.lastRunMu.Lock()
	lastRun := make(map[string]time.Time, len(m.lastRun))
	for pass, t := range m.lastRun {
		lastRun[pass] = t
	}
	m.lastRunMu.Unlock()

	return &api.IntegrityStatsResponse{
		TotalChecks:              atomic.LoadInt64(&m.totalChecks),
		TotalRepairs:             atomic.LoadInt64(&m.totalRepairs),
		TotalRelocations:         atomic.LoadInt64(&m.totalRelocations),
		TotalReReplications:      atomic.LoadInt64(&m.totalReReplications),
		TotalOverReplicasRemoved: atomic.LoadInt64(&m.totalOverRemoved),
		TotalStaleRemoved:        atomic.LoadInt64(&m.totalStaleRemoved),
		TotalGarbageCollected:    atomic.LoadInt64(&m.totalGarbage),
		TotalUnresolved:          atomic.LoadInt64(&m.totalUnresolved),
		LastRun:                  lastRun,
	}
}

// passCounters accumulates one pass run across worker goroutines.
type passCounters struct {
	checked    int64
	repaired   int64
	relocated  int64
	created    int64
	removed    int64
	unresolved int64
}

func (c *passCounters) add(field *int64, n int) {
	atomic.AddInt64(field, int64(n))
}

func (c *passCounters) result(pass string, started time.Time, d time.Duration) *api.PassResult {
	return &api.PassResult{
		Pass:       pass,
		StartedAt:  started,
		Duration:   d,
		Checked:    int(atomic.LoadInt64(&c.checked)),
		Repaired:   int(atomic.LoadInt64(&c.repaired)),
		Relocated:  int(atomic.LoadInt64(&c.relocated)),
		Created:    int(atomic.LoadInt64(&c.created)),
		Removed:    int(atomic.LoadInt64(&c.removed)),
		Unresolved: int(atomic.LoadInt64(&c.unresolved)),
	}
}

// forEachBlob runs fn for every blob on the worker pool and waits for all of them.
func (m *IntegrityMonitor) forEachBlob(ctx context.Context, pass string, fn func(ctx context.Context, meta *model.BlobMetadata) error) error {
	blobs, err := m.metadataStore.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list blobs: %w", err)
	}

	tasks := make([]workerpool.Task, 0, len(blobs))
	for _, meta := range blobs {
		meta := meta
		tasks = append(tasks, workerpool.Task{
			ID: pass + ":" + meta.BlobID,
			Fn: func(ctx context.Context) error { return fn(ctx, meta) },
		})
	}

	_, err = m.pool.RunAll(ctx, tasks)
	return err
}

// probe checks chunk existence through the probe cache. Errors are not cached.
func (m *IntegrityMonitor) probe(ctx context.Context, endpoint, blobID string, chunkIndex int) (bool, error) {
	if exists, ok := m.probes.Get(endpoint, blobID, chunkIndex); ok {
		m.metrics.RecordProbeCache(true)
		return exists, nil
	}
	m.metrics.RecordProbeCache(false)

	exists, err := m.chunks.Exists(ctx, endpoint, blobID, chunkIndex)
	if err != nil {
		return false, err
	}
	m.probes.Set(endpoint, blobID, chunkIndex, exists)
	return exists, nil
}

// copyChunk reads a chunk from src and writes it to dst.
func (m *IntegrityMonitor) copyChunk(ctx context.Context, blobID string, chunkIndex int, src, dst string) error {
	data, err := m.chunks.Read(ctx, src, blobID, chunkIndex)
	if err != nil {
		m.metrics.RecordReplicaCopy("failure")
		return fmt.Errorf("failed to read chunk from %s: %w", src, err)
	}
	err = m.chunks.Write(ctx, dst, blobID, chunkIndex, data)
	m.probes.Invalidate(dst, blobID, chunkIndex)
	if err != nil {
		m.metrics.RecordReplicaCopy("failure")
		return fmt.Errorf("failed to write chunk to %s: %w", dst, err)
	}
	m.metrics.RecordReplicaCopy("success")
	return nil
}

// deleteChunk physically removes a chunk from endpoint.
func (m *IntegrityMonitor) deleteChunk(ctx context.Context, endpoint, blobID string, chunkIndex int) error {
	err := m.chunks.Delete(ctx, endpoint, blobID, chunkIndex)
	m.probes.Invalidate(endpoint, blobID, chunkIndex)
	return err
}

// findSource returns a healthy replica of the chunk, other than exclude, whose
// existence is confirmed. Replicas are tried in slot order.
func (m *IntegrityMonitor) findSource(ctx context.Context, meta *model.BlobMetadata, chunkIndex int, exclude string) string {
	for _, loc := range meta.ReplicasByChunk()[chunkIndex] {
		if loc.NodeEndpoint == exclude || !m.membership.IsHealthy(loc.NodeEndpoint) {
			continue
		}
		exists, err := m.probe(ctx, loc.NodeEndpoint, meta.BlobID, chunkIndex)
		if err != nil {
			m.logger.Debug("Source probe failed",
				zap.String("blob_id", meta.BlobID),
				zap.Int("chunk_index", chunkIndex),
				zap.String("endpoint", loc.NodeEndpoint),
				zap.Error(err))
			continue
		}
		if exists {
			return loc.NodeEndpoint
		}
	}
	return ""
}

// rankedHealthy returns healthy endpoints least loaded first.
func (m *IntegrityMonitor) rankedHealthy() []string {
	return m.placement.Rank(m.membership.HealthyNodes())
}

func (m *IntegrityMonitor) targetReplicas(healthy int) int {
	if healthy < m.replicationFactor {
		return healthy
	}
	return m.replicationFactor
}
