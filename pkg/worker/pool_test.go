package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolProcessesWork(t *testing.T) {
	var sum atomic.Int64
	pool := NewPool(2, 10, func(_ context.Context, n int64) error {
		sum.Add(n)
		return nil
	})
	require.NoError(t, pool.Start(testContext(t)))

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, pool.Submit(i))
	}
	require.NoError(t, pool.Stop(5*time.Second))

	assert.Equal(t, int64(15), sum.Load())
	stats := pool.Stats()
	assert.Equal(t, int64(5), stats.Submitted)
	assert.Equal(t, int64(5), stats.Processed)
	assert.Zero(t, stats.Failed)
}

func TestPoolCountsFailures(t *testing.T) {
	pool := NewPool(1, 10, func(context.Context, int) error {
		return fmt.Errorf("boom")
	})
	require.NoError(t, pool.Start(testContext(t)))

	require.NoError(t, pool.Submit(1))
	require.NoError(t, pool.Stop(5*time.Second))

	assert.Equal(t, int64(1), pool.Stats().Failed)
}

func TestPoolDropsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ int) error {
		<-block
		return nil
	})
	require.NoError(t, pool.Start(testContext(t)))
	defer func() {
		close(block)
		_ = pool.Stop(5 * time.Second)
	}()

	// One item occupies the worker, one fills the queue; the next drops.
	require.NoError(t, pool.Submit(1))
	require.Eventually(t, func() bool {
		return pool.Submit(2) == nil
	}, time.Second, time.Millisecond)

	err := pool.Submit(3)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, int64(1), pool.Stats().Dropped)
}

func TestPoolLifecycleErrors(t *testing.T) {
	pool := NewPool(1, 1, func(context.Context, int) error { return nil })

	assert.ErrorIs(t, pool.Submit(1), ErrPoolNotStarted)

	require.NoError(t, pool.Start(testContext(t)))
	assert.ErrorIs(t, pool.Start(testContext(t)), ErrPoolAlreadyStarted)

	require.NoError(t, pool.Stop(time.Second))
	assert.ErrorIs(t, pool.Submit(1), ErrPoolStopped)

	// Stopping twice is a no-op.
	require.NoError(t, pool.Stop(time.Second))
}

func TestNewPoolNilProcessorPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewPool[int](1, 1, nil)
	})
}
