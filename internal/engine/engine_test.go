package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiberEngineSubmitRunsTask(t *testing.T) {
	e := NewFactory(Fiber).New(3)
	var sawID int
	h := e.Submit(context.Background(), func(ctx context.Context) error {
		id, ok := IDFromContext(ctx)
		require.True(t, ok)
		sawID = id
		return nil
	})
	require.NoError(t, h.Wait())
	assert.Equal(t, 3, sawID)
}

func TestThreadEngineSubmitRunsTask(t *testing.T) {
	e := NewFactory(Thread).New(1)
	h := e.Submit(context.Background(), func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, h.Wait())
	assert.Equal(t, Thread, e.Kind())
}

func TestHandleWaitPropagatesError(t *testing.T) {
	e := NewFactory(Fiber).New(0)
	boom := errors.New("boom")
	h := e.Submit(context.Background(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, h.Wait(), boom)
}

func TestPoolSizeMatchesPartitionLayout(t *testing.T) {
	p := NewPool(NewFactory(Fiber), 2, 2)
	assert.Equal(t, 4, p.Size())
}

func TestPoolRunObservesDistinctEngineIDs(t *testing.T) {
	p := NewPool(NewFactory(Fiber), 2, 2)

	var mu sync.Mutex
	seen := make(map[int]bool)

	err := p.Run(context.Background(), func(ctx context.Context, engineID int) error {
		mu.Lock()
		seen[engineID] = true
		mu.Unlock()
		return nil
	})

	require.NoError(t, err)
	assert.Len(t, seen, 4)
}

func TestPoolRunReturnsFirstError(t *testing.T) {
	p := NewPool(NewFactory(Fiber), 1, 3)
	boom := errors.New("boom")

	err := p.Run(context.Background(), func(ctx context.Context, engineID int) error {
		if engineID == 1 {
			return boom
		}
		return nil
	})

	assert.ErrorIs(t, err, boom)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "fiber", Fiber.String())
	assert.Equal(t, "thread", Thread.String())
}
