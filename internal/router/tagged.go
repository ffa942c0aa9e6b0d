package router

import (
	"github.com/flowmesh/dataflow/internal/edge"
	"github.com/flowmesh/dataflow/internal/metrics"
)

// Tagged is the (K, T) input shape a tagged router demultiplexes on: the
// key travels alongside the value instead of being derived from it.
type Tagged[K comparable, T any] struct {
	Key   K
	Value T
}

// NewTaggedStatic builds a static tagged router: the key is read directly
// off each Tagged item and convert maps the carried value (key dropped).
func NewTaggedStatic[K comparable, T, Out any](name string, keys []K, capacity int, convert func(T) Out, m *metrics.Metrics) (*Static[Tagged[K, T], K, Out], map[K]*edge.Edge[Out]) {
	return NewStatic[Tagged[K, T], K, Out](name, keys, capacity,
		func(t Tagged[K, T]) K { return t.Key },
		func(t Tagged[K, T]) Out { return convert(t.Value) },
		m,
	)
}

// NewTaggedDynamic builds a dynamic tagged router.
func NewTaggedDynamic[K comparable, T, Out any](name string, convert func(T) Out, m *metrics.Metrics) *Dynamic[Tagged[K, T], K, Out] {
	return NewDynamic[Tagged[K, T], K, Out](name,
		func(t Tagged[K, T]) K { return t.Key },
		func(t Tagged[K, T]) Out { return convert(t.Value) },
		m,
	)
}
