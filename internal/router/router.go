// Package router implements key-based and tagged demultiplexing: a router
// owns N named downstream edges and forwards each input item to exactly
// one of them, chosen by a key function. Static routers fix their key set
// at construction; dynamic routers allow keys to be added and removed at
// runtime. Both come in a Component flavor (a router is itself a
// WritableEdge, driven by the upstream's push) and a Runnable flavor (the
// router owns its own pull loop on an engine).
package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowmesh/dataflow/internal/channel"
	"github.com/flowmesh/dataflow/internal/edge"
	"github.com/flowmesh/dataflow/internal/logging"
	"github.com/flowmesh/dataflow/internal/metrics"
	"github.com/flowmesh/dataflow/internal/runnable"
)

// KeyFunc computes the downstream key for an input item.
type KeyFunc[In any, K comparable] func(In) K

// ConvertFunc converts an input item into the type written downstream.
// When InputT == OutputT this is the identity function.
type ConvertFunc[In, Out any] func(In) Out

// core holds the demultiplexing logic shared by every router variant.
type core[In any, K comparable, Out any] struct {
	mu         sync.RWMutex
	downstream *edge.MultiAcceptor[K, Out]
	inflight   map[K]*sync.WaitGroup
	keyFunc    KeyFunc[In, K]
	convert    ConvertFunc[In, Out]
	dynamic    bool
	name       string
	metrics    *metrics.Metrics
}

func newCore[In any, K comparable, Out any](name string, keyFunc KeyFunc[In, K], convert ConvertFunc[In, Out], dynamic bool, m *metrics.Metrics) *core[In, K, Out] {
	return &core[In, K, Out]{
		downstream: edge.NewMultiAcceptor[K, Out](),
		inflight:   make(map[K]*sync.WaitGroup),
		keyFunc:    keyFunc,
		convert:    convert,
		dynamic:    dynamic,
		name:       name,
		metrics:    m,
	}
}

// getSource installs (or returns the existing) downstream edge bound to
// key, creating one with capacity if none exists.
func (c *core[In, K, Out]) getSource(key K, capacity int) *edge.Edge[Out] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.downstream.Get(key); ok {
		return e
	}
	e := edge.NewEdge[Out](capacity)
	c.downstream.Bind(key, e)
	c.inflight[key] = &sync.WaitGroup{}
	return e
}

// hasSource reports whether key currently has a bound downstream.
func (c *core[In, K, Out]) hasSource(key K) bool {
	return c.downstream.Has(key)
}

// dropSource removes key's binding, waits for any write already admitted
// for that key to finish (flush), and only then releases the downstream
// edge. Returns false if the router is static or key was never bound.
func (c *core[In, K, Out]) dropSource(key K) bool {
	if !c.dynamic {
		return false
	}
	c.mu.Lock()
	wg, hadInflight := c.inflight[key]
	delete(c.inflight, key)
	e, existed := c.downstream.Release(key)
	c.mu.Unlock()

	if !existed {
		return false
	}
	if hadInflight {
		wg.Wait()
	}
	e.Release()
	return true
}

// releaseAll drops every downstream binding, closing each edge.
func (c *core[In, K, Out]) releaseAll() {
	c.mu.Lock()
	c.inflight = make(map[K]*sync.WaitGroup)
	c.mu.Unlock()
	c.downstream.ReleaseAll()
}

// awaitWrite computes item's key, looks up the bound downstream, converts
// the value, and forwards it. A panic raised by keyFunc or convert is
// captured and reported as channel.StatusError rather than propagating.
func (c *core[In, K, Out]) awaitWrite(ctx context.Context, item In) (status channel.Status) {
	defer func() {
		if r := recover(); r != nil {
			status = channel.StatusError
		}
	}()

	key := c.keyFunc(item)

	c.mu.RLock()
	e, ok := c.downstream.Get(key)
	wg := c.inflight[key]
	if ok && wg != nil {
		wg.Add(1)
	}
	c.mu.RUnlock()

	if !ok {
		c.recordError(key)
		return channel.StatusError
	}
	if wg != nil {
		defer wg.Done()
	}

	out := c.convert(item)
	status = e.AwaitWrite(ctx, out)

	if status == channel.StatusSuccess {
		c.recordDispatch(key)
	} else {
		c.recordError(key)
	}
	return status
}

func (c *core[In, K, Out]) recordDispatch(key K) {
	if c.metrics != nil {
		c.metrics.RecordRouterDispatch(c.name, fmt.Sprint(key))
	}
}

func (c *core[In, K, Out]) recordError(key K) {
	if c.metrics != nil {
		c.metrics.RecordRouterError(c.name, fmt.Sprint(key))
	}
}

// WritableReleaser is what a router Component needs to expose to be
// wrapped into a Runnable variant: a WritableEdge plus a way to release
// all of its downstream edges when the runnable's loop exits.
type WritableReleaser[In any] interface {
	edge.WritableEdge[In]
	ReleaseAll()
}

// AsRunnable wraps a router Component into a Runnable variant: the
// runnable pulls from upstream and pushes each item through the router's
// own AwaitWrite, releasing every downstream binding when the loop exits.
func AsRunnable[In any](name string, upstream edge.ReadableEdge[In], router WritableReleaser[In], logger *logging.Logger) *runnable.Runnable[In] {
	return runnable.New(name, upstream, func(rc runnable.Context, v In) channel.Status {
		return router.AwaitWrite(rc.Ctx(), v)
	}, router.ReleaseAll, logger)
}
