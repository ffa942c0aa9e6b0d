// Package manifold implements the cross-segment N:M junction: it
// aggregates writes from any number of local inputs and fans them out,
// round-robin over the currently eligible outputs, to a set of local or
// remote segment addresses. Reconfiguration swaps the output set
// atomically — in-flight routing keeps using the previous set until the
// new one is fully built.
package manifold

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowmesh/dataflow/internal/channel"
	"github.com/flowmesh/dataflow/internal/edge"
	"github.com/flowmesh/dataflow/internal/metrics"
	"github.com/flowmesh/dataflow/internal/resilience"
	"github.com/flowmesh/dataflow/internal/types"
	"golang.org/x/time/rate"
)

// ErrNoEligibleOutputs is returned when a manifold is asked to route with
// an empty output set.
var ErrNoEligibleOutputs = errors.New("manifold: no eligible outputs")

// RemoteSender is the data-plane seam a manifold uses for non-local
// destinations. internal/transport supplies the concrete gRPC/WebSocket
// implementations.
type RemoteSender interface {
	Send(ctx context.Context, dest types.SegmentAddress, payload []byte) error
}

type outputEndpoint[T any] struct {
	address types.SegmentAddress
	isLocal bool
	local   *edge.Edge[T]
}

type outputSet[T any] struct {
	addrs  []types.SegmentAddress
	byAddr map[types.SegmentAddress]*outputEndpoint[T]
}

// Manifold is a typed N:M junction for one named port of a pipeline.
type Manifold[T any] struct {
	name    string
	current atomic.Pointer[outputSet[T]]
	counter atomic.Uint64

	sender RemoteSender
	encode func(T) ([]byte, error)

	remoteLimit rate.Limit
	remoteBurst int
	limiters    sync.Map // types.SegmentAddress -> *rate.Limiter
	breakers    sync.Map // types.SegmentAddress -> *resilience.Breaker

	inputsMu sync.RWMutex
	inputs   map[types.SegmentAddress]bool

	metrics *metrics.Metrics
}

// New builds an empty manifold. remoteRPS <= 0 disables remote-send
// throttling.
func New[T any](name string, sender RemoteSender, encode func(T) ([]byte, error), remoteRPS float64, remoteBurst int, m *metrics.Metrics) *Manifold[T] {
	return &Manifold[T]{
		name:        name,
		sender:      sender,
		encode:      encode,
		remoteLimit: rate.Limit(remoteRPS),
		remoteBurst: remoteBurst,
		inputs:      make(map[types.SegmentAddress]bool),
		metrics:     m,
	}
}

// ReconcileInputs records the requested set of local input segment
// addresses for bookkeeping and introspection; it does not gate
// AwaitWrite, which any local source may call regardless.
func (m *Manifold[T]) ReconcileInputs(requested map[types.SegmentAddress]bool) {
	snapshot := make(map[types.SegmentAddress]bool, len(requested))
	for addr, ok := range requested {
		snapshot[addr] = ok
	}
	m.inputsMu.Lock()
	m.inputs = snapshot
	m.inputsMu.Unlock()
}

// Inputs returns a copy of the current requested input set.
func (m *Manifold[T]) Inputs() map[types.SegmentAddress]bool {
	m.inputsMu.RLock()
	defer m.inputsMu.RUnlock()
	out := make(map[types.SegmentAddress]bool, len(m.inputs))
	for addr, ok := range m.inputs {
		out[addr] = ok
	}
	return out
}

// ReconcileOutputs reconciles requested (address -> is_local) against the
// manifold's actual output set: existing endpoints of unchanged locality
// are reused, missing ones are opened, and ones no longer requested are
// closed after the new set is live. It returns the local edges for newly
// opened local endpoints so the caller can wire each to its consumer.
func (m *Manifold[T]) ReconcileOutputs(requested map[types.SegmentAddress]bool, capacity int) map[types.SegmentAddress]*edge.Edge[T] {
	old := m.current.Load()

	next := &outputSet[T]{byAddr: make(map[types.SegmentAddress]*outputEndpoint[T], len(requested))}
	opened := make(map[types.SegmentAddress]*edge.Edge[T])

	for addr, isLocal := range requested {
		var ep *outputEndpoint[T]
		if old != nil {
			if existing, ok := old.byAddr[addr]; ok && existing.isLocal == isLocal {
				ep = existing
			}
		}
		if ep == nil {
			ep = &outputEndpoint[T]{address: addr, isLocal: isLocal}
			if isLocal {
				ep.local = edge.NewEdge[T](capacity)
				opened[addr] = ep.local
			}
		}
		next.byAddr[addr] = ep
		next.addrs = append(next.addrs, addr)
	}
	sort.Slice(next.addrs, func(i, j int) bool { return next.addrs[i] < next.addrs[j] })

	m.current.Store(next)
	if m.metrics != nil {
		m.metrics.IncManifoldReconciled()
	}

	if old != nil {
		for addr, ep := range old.byAddr {
			if _, stillPresent := next.byAddr[addr]; !stillPresent && ep.isLocal && ep.local != nil {
				ep.local.Release()
			}
		}
	}
	return opened
}

// Outputs returns the current output set as address -> is_local.
func (m *Manifold[T]) Outputs() map[types.SegmentAddress]bool {
	set := m.current.Load()
	if set == nil {
		return nil
	}
	out := make(map[types.SegmentAddress]bool, len(set.addrs))
	for addr, ep := range set.byAddr {
		out[addr] = ep.isLocal
	}
	return out
}

// AwaitWrite selects the next eligible output by round-robin and routes v
// through it: a direct edge write for a local destination, or an
// encode-and-send through RemoteSender for a remote one.
func (m *Manifold[T]) AwaitWrite(ctx context.Context, v T) channel.Status {
	set := m.current.Load()
	if set == nil || len(set.addrs) == 0 {
		return channel.StatusError
	}

	idx := m.counter.Add(1) - 1
	addr := set.addrs[idx%uint64(len(set.addrs))]
	ep := set.byAddr[addr]

	if ep.isLocal {
		status := ep.local.AwaitWrite(ctx, v)
		return status
	}
	return m.sendRemote(ctx, addr, v)
}

func (m *Manifold[T]) sendRemote(ctx context.Context, addr types.SegmentAddress, v T) channel.Status {
	if limiter := m.limiterFor(addr); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return channel.StatusError
		}
	}

	return m.breakerFor(addr).ExecuteChannel(func() channel.Status {
		payload, err := m.encode(v)
		if err != nil {
			return channel.StatusError
		}

		if err := m.sender.Send(ctx, addr, payload); err != nil {
			return channel.StatusError
		}

		if m.metrics != nil {
			m.metrics.RecordManifoldRoutedBytes(m.name, addr.String(), len(payload))
		}
		return channel.StatusSuccess
	})
}

// breakerFor returns this manifold's per-destination circuit breaker,
// tripping remote routing to a consistently failing address over to
// channel.StatusError instead of retrying into it on every write.
func (m *Manifold[T]) breakerFor(addr types.SegmentAddress) *resilience.Breaker {
	if b, ok := m.breakers.Load(addr); ok {
		return b.(*resilience.Breaker)
	}
	b := resilience.New(fmt.Sprintf("manifold-%s-%s", m.name, addr), resilience.Settings{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	actual, _ := m.breakers.LoadOrStore(addr, b)
	return actual.(*resilience.Breaker)
}

func (m *Manifold[T]) limiterFor(addr types.SegmentAddress) *rate.Limiter {
	if m.remoteLimit <= 0 {
		return nil
	}
	if l, ok := m.limiters.Load(addr); ok {
		return l.(*rate.Limiter)
	}
	l, _ := m.limiters.LoadOrStore(addr, rate.NewLimiter(m.remoteLimit, m.remoteBurst))
	return l.(*rate.Limiter)
}

// ReleaseAll closes every local output edge, for executor shutdown.
func (m *Manifold[T]) ReleaseAll() {
	set := m.current.Load()
	if set == nil {
		return
	}
	for _, ep := range set.byAddr {
		if ep.isLocal && ep.local != nil {
			ep.local.Release()
		}
	}
}
