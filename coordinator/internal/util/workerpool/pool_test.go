package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunAllWaitsForEveryTask(t *testing.T) {
	pool := NewWorkerPool(Config{Name: "test", MaxWorkers: 3, QueueSize: 2, Logger: zap.NewNop()})
	defer pool.Stop(time.Second)

	var ran int64
	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = Task{ID: fmt.Sprintf("t%d", i), Fn: func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&ran, 1)
			return nil
		}}
	}

	failed, err := pool.RunAll(context.Background(), tasks)
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Equal(t, int64(20), atomic.LoadInt64(&ran))
	assert.Equal(t, uint64(20), pool.Stats().CompletedTasks)
}

func TestRunAllCountsFailuresAndPanics(t *testing.T) {
	pool := NewWorkerPool(Config{Name: "test", MaxWorkers: 2})
	defer pool.Stop(time.Second)

	tasks := []Task{
		{ID: "ok", Fn: func(ctx context.Context) error { return nil }},
		{ID: "err", Fn: func(ctx context.Context) error { return errors.New("boom") }},
		{ID: "panic", Fn: func(ctx context.Context) error { panic("bad") }},
	}

	failed, err := pool.RunAll(context.Background(), tasks)
	require.NoError(t, err)
	assert.Equal(t, 2, failed)
	assert.Equal(t, uint64(2), pool.Stats().FailedTasks)
}

func TestRunAllCanceled(t *testing.T) {
	pool := NewWorkerPool(Config{Name: "test", MaxWorkers: 1, QueueSize: 1})
	defer pool.Stop(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int64
	tasks := []Task{{ID: "a", Fn: func(ctx context.Context) error {
		atomic.AddInt64(&ran, 1)
		return nil
	}}}
	_, err := pool.RunAll(ctx, tasks)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Zero(t, atomic.LoadInt64(&ran))
}

func TestSubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(Config{Name: "test", MaxWorkers: 1})
	require.NoError(t, pool.Stop(time.Second))

	err := pool.SubmitWithContext(context.Background(), Task{ID: "late", Fn: func(context.Context) error { return nil }})
	assert.Error(t, err)
	assert.Equal(t, uint64(1), pool.Stats().RejectedTasks)
}
