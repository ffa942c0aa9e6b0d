// Package edge implements the typed connector between a producer and a
// consumer: a direct pass-through when the two sides agree on type, or an
// adapter-mediated connection when they don't. Adapter resolution happens
// at build time — a missing adapter is a construction-time error, never a
// run-time one.
package edge

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/flowmesh/dataflow/internal/channel"
)

// WritableEdge is the producer-facing half of an edge.
type WritableEdge[T any] interface {
	AwaitWrite(ctx context.Context, v T) channel.Status
}

// ReadableEdge is the consumer-facing half of an edge.
type ReadableEdge[T any] interface {
	AwaitRead(ctx context.Context) (T, channel.Status)
}

// Edge is an owning reference from a producer endpoint to a consumer
// endpoint, backed by a bounded Channel. The channel owner (by convention
// the consumer/sink side) creates the Edge; Release closes the underlying
// channel so that a subsequent AwaitWrite returns StatusClosed.
type Edge[T any] struct {
	ch *channel.Channel[T]
}

// NewEdge creates a directly-connected edge for same-typed endpoints.
func NewEdge[T any](capacity int) *Edge[T] {
	return &Edge[T]{ch: channel.New[T](capacity)}
}

// AwaitWrite implements WritableEdge.
func (e *Edge[T]) AwaitWrite(ctx context.Context, v T) channel.Status {
	return e.ch.AwaitWrite(ctx, v)
}

// AwaitRead implements ReadableEdge.
func (e *Edge[T]) AwaitRead(ctx context.Context) (T, channel.Status) {
	return e.ch.AwaitRead(ctx)
}

// Release closes the underlying channel. Safe to call more than once.
func (e *Edge[T]) Release() {
	e.ch.Close()
}

// Len reports the number of buffered items, for metrics/introspection.
func (e *Edge[T]) Len() int { return e.ch.Len() }

// Capacity reports the fixed queue capacity.
func (e *Edge[T]) Capacity() int { return e.ch.Capacity() }

// adaptedWriter adapts writes of In into an Edge[Out] via a conversion
// function, used for genuinely incompatible types.
type adaptedWriter[In, Out any] struct {
	inner *Edge[Out]
	adapt func(In) Out
}

func (a *adaptedWriter[In, Out]) AwaitWrite(ctx context.Context, v In) channel.Status {
	return a.inner.AwaitWrite(ctx, a.adapt(v))
}

// identityWriter adapts writes of In into an Edge[Out] when In and Out are
// the same underlying type, without requiring a registered adapter.
type identityWriter[In, Out any] struct {
	inner *Edge[Out]
}

func (w *identityWriter[In, Out]) AwaitWrite(ctx context.Context, v In) channel.Status {
	out, _ := any(v).(Out)
	return w.inner.AwaitWrite(ctx, out)
}

// AdapterKey identifies a registered conversion by source and destination
// type.
type AdapterKey struct {
	Src, Dst reflect.Type
}

// Registry is a table of (src_type, dst_type) -> adapter function. It is
// not a process-wide global: callers thread a *Registry through the parts
// of the runtime that build edges, per the design note against hidden
// global mutable state.
type Registry struct {
	mu       sync.RWMutex
	adapters map[AdapterKey]any
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[AdapterKey]any)}
}

// Register installs an adapter converting In to Out.
func Register[In, Out any](r *Registry, fn func(In) Out) {
	key := AdapterKey{Src: typeOf[In](), Dst: typeOf[Out]()}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[key] = fn
}

func lookup[In, Out any](r *Registry) (func(In) Out, bool) {
	key := AdapterKey{Src: typeOf[In](), Dst: typeOf[Out]()}
	r.mu.RLock()
	defer r.mu.RUnlock()
	raw, ok := r.adapters[key]
	if !ok {
		return nil, false
	}
	fn, ok := raw.(func(In) Out)
	return fn, ok
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Build constructs a channel-backed edge between an In-typed producer and
// an Out-typed consumer. If In and Out are the same type, the connection
// is direct. Otherwise r must hold a registered (In, Out) adapter; if it
// doesn't, Build fails immediately rather than deferring the failure to
// the first write.
func Build[In, Out any](r *Registry, capacity int) (WritableEdge[In], ReadableEdge[Out], error) {
	inT, outT := typeOf[In](), typeOf[Out]()
	inner := &Edge[Out]{ch: channel.New[Out](capacity)}

	if inT == outT {
		return &identityWriter[In, Out]{inner: inner}, inner, nil
	}

	fn, ok := lookup[In, Out](r)
	if !ok {
		return nil, nil, fmt.Errorf("edge: no adapter registered for %s -> %s", inT, outT)
	}
	return &adaptedWriter[In, Out]{inner: inner, adapt: fn}, inner, nil
}

// MultiAcceptor implements the multi-acceptor endpoint: N distinct writer
// handles identified by key. Binding the same key twice replaces the prior
// binding; the caller is responsible for releasing a replaced edge if it
// still needs draining (see router.Dynamic's drop-then-flush behavior).
type MultiAcceptor[K comparable, T any] struct {
	mu    sync.RWMutex
	edges map[K]*Edge[T]
}

// NewMultiAcceptor creates an empty multi-acceptor.
func NewMultiAcceptor[K comparable, T any]() *MultiAcceptor[K, T] {
	return &MultiAcceptor[K, T]{edges: make(map[K]*Edge[T])}
}

// Bind installs e under key, replacing any prior binding.
func (m *MultiAcceptor[K, T]) Bind(key K, e *Edge[T]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[key] = e
}

// Get returns the edge bound to key, if any.
func (m *MultiAcceptor[K, T]) Get(key K) (*Edge[T], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.edges[key]
	return e, ok
}

// Has reports whether key has a bound edge.
func (m *MultiAcceptor[K, T]) Has(key K) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.edges[key]
	return ok
}

// Release removes and returns the edge bound to key, if any, without
// closing it — the caller decides whether to flush before releasing.
func (m *MultiAcceptor[K, T]) Release(key K) (*Edge[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.edges[key]
	delete(m.edges, key)
	return e, ok
}

// Keys returns the currently bound keys.
func (m *MultiAcceptor[K, T]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]K, 0, len(m.edges))
	for k := range m.edges {
		keys = append(keys, k)
	}
	return keys
}

// ReleaseAll releases every bound edge and clears the acceptor.
func (m *MultiAcceptor[K, T]) ReleaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.edges {
		e.Release()
	}
	m.edges = make(map[K]*Edge[T])
}
