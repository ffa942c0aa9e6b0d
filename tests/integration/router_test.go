package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/dataflow/internal/channel"
	"github.com/flowmesh/dataflow/internal/router"
)

type tagged struct {
	key   string
	value int
}

// TestStaticRouterDispatchesByKey feeds ("a",1), ("b",2), ("a",3) through
// a static router over the fixed key set {"a","b"} and checks that each
// downstream edge received exactly the items tagged for it, in order.
func TestStaticRouterDispatchesByKey(t *testing.T) {
	ctx := context.Background()

	r, edges := router.NewStatic[tagged, string, int]("tagged", []string{"a", "b"}, 8,
		func(t tagged) string { return t.key },
		func(t tagged) int { return t.value },
		nil,
	)

	inputs := []tagged{{"a", 1}, {"b", 2}, {"a", 3}}
	for _, in := range inputs {
		require.Equal(t, channel.StatusSuccess, r.AwaitWrite(ctx, in))
	}

	edges["a"].Release()
	edges["b"].Release()

	assert.Equal(t, []int{1, 3}, drainAll(t, edges["a"]))
	assert.Equal(t, []int{2}, drainAll(t, edges["b"]))
}

func drainAll(t *testing.T, e interface {
	AwaitRead(ctx context.Context) (int, channel.Status)
}) []int {
	var out []int
	for {
		v, status := e.AwaitRead(context.Background())
		if status != channel.StatusSuccess {
			return out
		}
		out = append(out, v)
		_ = t
	}
}
