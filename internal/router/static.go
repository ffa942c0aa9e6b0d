package router

import (
	"context"

	"github.com/flowmesh/dataflow/internal/channel"
	"github.com/flowmesh/dataflow/internal/edge"
	"github.com/flowmesh/dataflow/internal/metrics"
)

// Static is a router whose downstream key set is fixed at construction —
// no get_source/drop_source after NewStatic returns.
type Static[In any, K comparable, Out any] struct {
	core *core[In, K, Out]
}

// NewStatic builds a static router with one downstream edge per key,
// returning the router and the edges so the caller can wire each one to
// its consumer.
func NewStatic[In any, K comparable, Out any](name string, keys []K, capacity int, keyFunc KeyFunc[In, K], convert ConvertFunc[In, Out], m *metrics.Metrics) (*Static[In, K, Out], map[K]*edge.Edge[Out]) {
	c := newCore[In, K, Out](name, keyFunc, convert, false, m)
	edges := make(map[K]*edge.Edge[Out], len(keys))
	for _, k := range keys {
		edges[k] = c.getSource(k, capacity)
	}
	return &Static[In, K, Out]{core: c}, edges
}

// HasSource reports whether key is part of the fixed key set.
func (s *Static[In, K, Out]) HasSource(key K) bool {
	return s.core.hasSource(key)
}

// AwaitWrite implements edge.WritableEdge[In], making a Static router
// usable directly as a Component: installed as an upstream node's
// downstream acceptor, driven by that node's push.
func (s *Static[In, K, Out]) AwaitWrite(ctx context.Context, item In) channel.Status {
	return s.core.awaitWrite(ctx, item)
}

// ReleaseAll releases every downstream edge.
func (s *Static[In, K, Out]) ReleaseAll() {
	s.core.releaseAll()
}
