package router

import (
	"context"

	"github.com/flowmesh/dataflow/internal/channel"
	"github.com/flowmesh/dataflow/internal/edge"
	"github.com/flowmesh/dataflow/internal/metrics"
)

// Dynamic is a router whose downstream key set may grow (GetSource) and
// shrink (DropSource) after construction.
type Dynamic[In any, K comparable, Out any] struct {
	core *core[In, K, Out]
}

// NewDynamic builds a dynamic router with an initially empty key set.
func NewDynamic[In any, K comparable, Out any](name string, keyFunc KeyFunc[In, K], convert ConvertFunc[In, Out], m *metrics.Metrics) *Dynamic[In, K, Out] {
	return &Dynamic[In, K, Out]{core: newCore[In, K, Out](name, keyFunc, convert, true, m)}
}

// GetSource installs (or returns the existing) downstream edge bound to
// key, creating one with the given capacity if none exists yet.
func (d *Dynamic[In, K, Out]) GetSource(key K, capacity int) *edge.Edge[Out] {
	return d.core.getSource(key, capacity)
}

// HasSource reports whether key currently has a bound downstream.
func (d *Dynamic[In, K, Out]) HasSource(key K) bool {
	return d.core.hasSource(key)
}

// DropSource removes key's binding. Any write already admitted for key is
// allowed to finish before the downstream edge is released; items
// arriving for key after this call fails with channel.StatusError.
func (d *Dynamic[In, K, Out]) DropSource(key K) bool {
	return d.core.dropSource(key)
}

// AwaitWrite implements edge.WritableEdge[In].
func (d *Dynamic[In, K, Out]) AwaitWrite(ctx context.Context, item In) channel.Status {
	return d.core.awaitWrite(ctx, item)
}

// ReleaseAll releases every downstream edge.
func (d *Dynamic[In, K, Out]) ReleaseAll() {
	d.core.releaseAll()
}
