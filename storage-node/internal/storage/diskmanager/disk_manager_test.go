package diskmanager

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/storage-node/internal/errors"
)

type fakeDisk struct {
	mu    sync.Mutex
	stat  disk.UsageStat
	err   error
	calls int
}

func (f *fakeDisk) set(usedPercent float64, free uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stat = disk.UsageStat{Total: 100 << 30, Free: free, UsedPercent: usedPercent}
}

func (f *fakeDisk) usage(path string) (*disk.UsageStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	stat := f.stat
	stat.Path = path
	return &stat, nil
}

func newTestManager(t *testing.T, fd *fakeDisk) *DiskManager {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.CheckInterval = time.Hour
	cfg.Usage = fd.usage
	dm, err := NewDiskManager(cfg, zap.NewNop())
	require.NoError(t, err)
	return dm
}

func TestCheckBeforeWrite(t *testing.T) {
	fd := &fakeDisk{}
	fd.set(50, 1<<30)
	dm := newTestManager(t, fd)

	assert.NoError(t, dm.CheckBeforeWrite(32768))

	err := dm.CheckBeforeWrite(2 << 30)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDiskFull, errors.GetCode(err))
}

func TestCircuitBreaker(t *testing.T) {
	fd := &fakeDisk{}
	fd.set(96, 1<<30)
	dm := newTestManager(t, fd)

	err := dm.CheckBeforeWrite(1)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDiskFull, errors.GetCode(err))
	assert.True(t, dm.GetDiskUsage().IsCircuitBroken)

	fd.set(70, 1<<30)
	require.NoError(t, dm.ForceCheck())
	assert.NoError(t, dm.CheckBeforeWrite(1))
	assert.False(t, dm.GetDiskUsage().IsCircuitBroken)
}

func TestUsageIsCachedForCheckInterval(t *testing.T) {
	fd := &fakeDisk{}
	fd.set(10, 1<<30)
	dm := newTestManager(t, fd)

	for i := 0; i < 5; i++ {
		require.NoError(t, dm.CheckBeforeWrite(1))
	}
	assert.Equal(t, 1, fd.calls)
}

func TestProbeFailureDoesNotBlockWrites(t *testing.T) {
	fd := &fakeDisk{err: fmt.Errorf("statfs: permission denied")}
	dm := newTestManager(t, fd)

	assert.NoError(t, dm.CheckBeforeWrite(1))
	assert.Error(t, dm.GetDiskUsage().Err)
}

func TestNewDiskManagerRequiresDataDir(t *testing.T) {
	_, err := NewDiskManager(&DiskManagerConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestRealFilesystem(t *testing.T) {
	dm, err := NewDiskManager(DefaultConfig(t.TempDir()), zap.NewNop())
	require.NoError(t, err)

	stats := dm.GetDiskUsage()
	require.NoError(t, stats.Err)
	assert.Greater(t, stats.TotalBytes, uint64(0))
}
