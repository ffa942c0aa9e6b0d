package edge

import (
	"context"
	"testing"

	"github.com/flowmesh/dataflow/internal/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectEdgeSameType(t *testing.T) {
	ctx := context.Background()
	w, r, err := Build[int, int](NewRegistry(), 4)
	require.NoError(t, err)

	require.Equal(t, channel.StatusSuccess, w.AwaitWrite(ctx, 7))
	v, status := r.AwaitRead(ctx)
	require.Equal(t, channel.StatusSuccess, status)
	assert.Equal(t, 7, v)
}

func TestBuildFailsWithoutAdapter(t *testing.T) {
	_, _, err := Build[int, string](NewRegistry(), 4)
	assert.Error(t, err)
}

func TestBuildSucceedsWithAdapter(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	Register(reg, func(v int) string { return string(rune('a' + v)) })

	w, r, err := Build[int, string](reg, 4)
	require.NoError(t, err)

	require.Equal(t, channel.StatusSuccess, w.AwaitWrite(ctx, 1))
	v, status := r.AwaitRead(ctx)
	require.Equal(t, channel.StatusSuccess, status)
	assert.Equal(t, "b", v)
}

func TestReleaseClosesDownstream(t *testing.T) {
	ctx := context.Background()
	e := NewEdge[int](2)

	e.Release()
	assert.Equal(t, channel.StatusClosed, e.AwaitWrite(ctx, 1))
}

func TestMultiAcceptorReplacesBinding(t *testing.T) {
	m := NewMultiAcceptor[string, int]()
	first := NewEdge[int](1)
	second := NewEdge[int](1)

	m.Bind("a", first)
	assert.True(t, m.Has("a"))

	m.Bind("a", second)
	got, ok := m.Get("a")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestMultiAcceptorReleaseAll(t *testing.T) {
	m := NewMultiAcceptor[string, int]()
	m.Bind("a", NewEdge[int](1))
	m.Bind("b", NewEdge[int](1))

	assert.ElementsMatch(t, []string{"a", "b"}, m.Keys())

	m.ReleaseAll()
	assert.Empty(t, m.Keys())
}

func TestMultiAcceptorReleaseReturnsEdgeWithoutClosing(t *testing.T) {
	m := NewMultiAcceptor[string, int]()
	e := NewEdge[int](2)
	m.Bind("a", e)

	released, ok := m.Release("a")
	require.True(t, ok)
	assert.Same(t, e, released)
	assert.False(t, m.Has("a"))

	// Not closed by Release itself.
	assert.Equal(t, channel.StatusSuccess, released.AwaitWrite(context.Background(), 1))
}
