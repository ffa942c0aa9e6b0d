// Package pipeline reconciles the segment instances a control-plane
// assignment requests against the segments this executor currently runs,
// starting newly requested segments and cooperatively stopping ones no
// longer requested.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/flowmesh/dataflow/internal/engine"
	"github.com/flowmesh/dataflow/internal/logging"
	"github.com/flowmesh/dataflow/internal/manifold"
	"github.com/flowmesh/dataflow/internal/metrics"
	"github.com/flowmesh/dataflow/internal/runnable"
	"github.com/flowmesh/dataflow/internal/types"
)

// Segment is the non-generic surface a pipeline Manager drives. Every
// *runnable.Runnable[In], for any In, satisfies this.
type Segment interface {
	Name() string
	Run(ctx context.Context) error
	RequestStop()
	RequestKill()
}

// Factory builds the Segment assigned to a given address. It is called
// once per address the Manager is asked to start.
type Factory func(addr types.SegmentAddress) (Segment, error)

// PortWirer is implemented by segments whose ingress/egress ports are
// manifold-backed rather than a single fixed in-process edge. When a
// Segment built by Factory also implements PortWirer, start hands it the
// Manager's named manifold layer before the segment's Run loop is
// submitted, the way the original pipeline::Manager wires a freshly
// constructed segment's ports into its pipeline's manifolds before
// calling service_start.
type PortWirer interface {
	WirePorts(ports map[string]*manifold.Manifold[[]byte])
}

type running struct {
	segment Segment
	handle  engine.Handle
}

// Manager reconciles a requested segment-address set against the
// segments currently running, the way the original pipeline::Manager
// diffs m_current_segments against a freshly pushed address set.
type Manager struct {
	mu      sync.Mutex
	current map[types.SegmentAddress]*running

	factory   Factory
	eng       engine.Engine
	logger    *logging.Logger
	metrics   *metrics.Metrics
	manifolds map[string]*manifold.Manifold[[]byte]
}

// New constructs a Manager that starts segments on eng using factory.
func New(factory Factory, eng engine.Engine, logger *logging.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		current: make(map[types.SegmentAddress]*running),
		factory: factory,
		eng:     eng,
		logger:  logger,
		metrics: m,
	}
}

// WithManifolds installs the named manifold layer this Manager wires
// into every segment built by Factory that implements PortWirer. Safe to
// call before the first Reconcile; the manifold set itself is not
// reconciled here, since that is driven by the same control-plane update
// that produces the requested address set passed to Reconcile.
func (mgr *Manager) WithManifolds(manifolds map[string]*manifold.Manifold[[]byte]) *Manager {
	mgr.manifolds = manifolds
	return mgr
}

// Current returns the addresses currently running. Safe to call
// concurrently with Reconcile.
func (mgr *Manager) Current() []types.SegmentAddress {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	out := make([]types.SegmentAddress, 0, len(mgr.current))
	for addr := range mgr.current {
		out = append(out, addr)
	}
	return out
}

// Reconcile brings the running segment set in line with requested:
// segments present in requested but not currently running are started
// concurrently; segments currently running but absent from requested are
// cooperatively stopped (RequestStop, not RequestKill) and joined
// concurrently. Reconcile is idempotent when requested already matches
// the current set.
func (mgr *Manager) Reconcile(ctx context.Context, requested map[types.SegmentAddress]bool) error {
	mgr.mu.Lock()
	toStart := make([]types.SegmentAddress, 0)
	for addr, want := range requested {
		if !want {
			continue
		}
		if _, ok := mgr.current[addr]; !ok {
			toStart = append(toStart, addr)
		}
	}
	toStop := make([]types.SegmentAddress, 0)
	for addr := range mgr.current {
		if !requested[addr] {
			toStop = append(toStop, addr)
		}
	}
	mgr.mu.Unlock()

	var g errgroup.Group
	for _, addr := range toStart {
		addr := addr
		g.Go(func() error { return mgr.start(ctx, addr) })
	}
	for _, addr := range toStop {
		addr := addr
		g.Go(func() error { return mgr.stop(addr) })
	}
	return g.Wait()
}

func (mgr *Manager) start(ctx context.Context, addr types.SegmentAddress) error {
	segment, err := mgr.factory(addr)
	if err != nil {
		return fmt.Errorf("starting segment %s: %w", addr, err)
	}

	if mgr.manifolds != nil {
		if wirer, ok := segment.(PortWirer); ok {
			wirer.WirePorts(mgr.manifolds)
		}
	}

	if r, ok := segment.(interface{ ServiceStart() }); ok {
		r.ServiceStart()
	}

	handle := mgr.eng.Submit(ctx, segment.Run)

	mgr.mu.Lock()
	mgr.current[addr] = &running{segment: segment, handle: handle}
	mgr.mu.Unlock()

	if mgr.metrics != nil {
		mgr.metrics.IncSegmentsStarted()
	}
	if mgr.logger != nil {
		mgr.logger.WithSegment(addr, segment.Name()).Info("segment started")
	}
	return nil
}

func (mgr *Manager) stop(addr types.SegmentAddress) error {
	mgr.mu.Lock()
	r, ok := mgr.current[addr]
	if ok {
		delete(mgr.current, addr)
	}
	mgr.mu.Unlock()
	if !ok {
		return nil
	}

	r.segment.RequestStop()
	err := r.handle.Wait()

	if mgr.metrics != nil {
		mgr.metrics.IncSegmentsStopped()
	}
	if mgr.logger != nil {
		mgr.logger.WithSegment(addr, r.segment.Name()).Info("segment stopped")
	}
	if err != nil {
		var rerr *runnable.RuntimeError
		if asRuntimeError(err, &rerr) {
			return nil
		}
		return fmt.Errorf("stopping segment %s: %w", addr, err)
	}
	return nil
}

// KillAll forcibly terminates every currently running segment and waits
// for each to exit, for use on shutdown when cooperative drain isn't
// worth the wait.
func (mgr *Manager) KillAll() error {
	mgr.mu.Lock()
	all := mgr.current
	mgr.current = make(map[types.SegmentAddress]*running)
	mgr.mu.Unlock()

	var g errgroup.Group
	for addr, r := range all {
		addr, r := addr, r
		g.Go(func() error {
			r.segment.RequestKill()
			err := r.handle.Wait()
			if mgr.metrics != nil {
				mgr.metrics.IncSegmentsKilled()
			}
			if mgr.logger != nil {
				mgr.logger.WithSegment(addr, r.segment.Name()).Info("segment killed")
			}
			var rerr *runnable.RuntimeError
			if err != nil && !asRuntimeError(err, &rerr) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func asRuntimeError(err error, target **runnable.RuntimeError) bool {
	rerr, ok := err.(*runnable.RuntimeError)
	if ok {
		*target = rerr
	}
	return ok
}
