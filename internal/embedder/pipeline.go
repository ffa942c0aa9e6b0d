// Package embedder is the user-facing surface: construct a pipeline from
// a definition and a set of segment factories, register it with an
// executor, toggle which segments are enabled, then start/stop/join —
// mirroring mrc::Executor::register_pipeline/start/join from the
// original implementation, where a test builds a pipeline, registers it,
// calls start() then join(), and asserts on what flowed through.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowmesh/dataflow/internal/engine"
	"github.com/flowmesh/dataflow/internal/logging"
	"github.com/flowmesh/dataflow/internal/metrics"
	"github.com/flowmesh/dataflow/internal/pipeline"
	"github.com/flowmesh/dataflow/internal/pipelinedef"
	"github.com/flowmesh/dataflow/internal/runnable"
	"github.com/flowmesh/dataflow/internal/types"
)

// SegmentFactory builds the Segment behind one named segment of a
// pipeline definition, given its fully-resolved address.
type SegmentFactory func(addr types.SegmentAddress) (pipeline.Segment, error)

type runningSegment struct {
	segment pipeline.Segment
	handle  engine.Handle
}

// Pipeline is one registered, runnable instance of a pipelinedef.Definition.
type Pipeline struct {
	def        *pipelinedef.Definition
	runID      string
	executorID uint16
	pool       *engine.Pool
	logger     *logging.Logger
	metrics    *metrics.Metrics

	mu        sync.Mutex
	factories map[string]SegmentFactory
	enabled   map[string]bool
	running   map[string]*runningSegment
	started   bool
	next      int
}

func newPipeline(def *pipelinedef.Definition, executorID uint16, pool *engine.Pool, logger *logging.Logger, m *metrics.Metrics) *Pipeline {
	enabled := make(map[string]bool, len(def.Segments))
	for _, seg := range def.Segments {
		enabled[seg.Name] = seg.Enabled
	}
	return &Pipeline{
		def:        def,
		runID:      uuid.New().String(),
		executorID: executorID,
		pool:       pool,
		logger:     logger,
		metrics:    m,
		factories:  make(map[string]SegmentFactory),
		enabled:    enabled,
		running:    make(map[string]*runningSegment),
	}
}

// Name returns the pipeline definition's name.
func (p *Pipeline) Name() string { return p.def.Name }

// RunID returns the identifier generated for this registration, distinct
// from the definition's wire-addressed PipelineInstanceID: it changes
// every time RegisterPipeline builds a new Pipeline, even for the same
// definition, so its start/exit log lines can distinguish separate
// registrations of an otherwise identical pipeline within one process.
func (p *Pipeline) RunID() string { return p.runID }

// RegisterFactory binds a segment name declared in the definition to the
// factory that builds its Segment. Must be called before Start.
func (p *Pipeline) RegisterFactory(name string, factory SegmentFactory) error {
	if _, ok := p.def.Segment(name); !ok {
		return fmt.Errorf("embedder: pipeline %q has no segment named %q", p.def.Name, name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factories[name] = factory
	return nil
}

// SetEnabled toggles whether a segment is started by the next Start call.
// Toggling a segment that is already running has no effect until the
// pipeline is restarted.
func (p *Pipeline) SetEnabled(name string, enabled bool) error {
	if _, ok := p.def.Segment(name); !ok {
		return fmt.Errorf("embedder: pipeline %q has no segment named %q", p.def.Name, name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled[name] = enabled
	return nil
}

// Start builds and submits every currently-enabled segment onto the
// executor's engine pool. Start is not idempotent; calling it twice on an
// already-started pipeline returns an error.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("embedder: pipeline %q already started", p.def.Name)
	}

	for _, seg := range p.def.Segments {
		if !p.enabled[seg.Name] {
			continue
		}
		factory, ok := p.factories[seg.Name]
		if !ok {
			return fmt.Errorf("embedder: pipeline %q: segment %q enabled but has no registered factory", p.def.Name, seg.Name)
		}
		addr := types.NewSegmentAddress(p.executorID, p.def.PipelineInstanceID, seg.Rank)

		segment, err := factory(addr)
		if err != nil {
			return fmt.Errorf("embedder: building segment %q: %w", seg.Name, err)
		}
		if starter, ok := segment.(interface{ ServiceStart() }); ok {
			starter.ServiceStart()
		}

		e := p.pool.Engines()[p.next%p.pool.Size()]
		p.next++
		handle := e.Submit(ctx, segment.Run)
		p.running[seg.Name] = &runningSegment{segment: segment, handle: handle}

		if p.metrics != nil {
			p.metrics.SegmentsStarted.Inc()
		}
		if p.logger != nil {
			p.logger.Info("embedder started segment",
				zap.String("pipeline", p.def.Name), zap.String("run_id", p.runID), zap.String("segment", seg.Name), zap.Stringer("address", addr))
		}
	}

	p.started = true
	return nil
}

// RunningAddresses returns the resolved address of every segment this
// pipeline has submitted to the engine pool, for introspection surfaces.
func (p *Pipeline) RunningAddresses() []types.SegmentAddress {
	p.mu.Lock()
	defer p.mu.Unlock()
	addrs := make([]types.SegmentAddress, 0, len(p.running))
	for _, seg := range p.def.Segments {
		if _, ok := p.running[seg.Name]; ok {
			addrs = append(addrs, types.NewSegmentAddress(p.executorID, p.def.PipelineInstanceID, seg.Rank))
		}
	}
	return addrs
}

// Stop cooperatively requests every running segment to finish once its
// upstream drains.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.running {
		r.segment.RequestStop()
	}
}

// Kill forcibly terminates every running segment, possibly dropping
// in-flight items.
func (p *Pipeline) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.running {
		r.segment.RequestKill()
	}
}

// Join blocks until every running segment's loop has exited, returning
// the first fatal runtime error encountered, if any.
func (p *Pipeline) Join() error {
	p.mu.Lock()
	running := make([]*runningSegment, 0, len(p.running))
	for _, r := range p.running {
		running = append(running, r)
	}
	p.mu.Unlock()

	var firstErr error
	for _, r := range running {
		if err := r.handle.Wait(); err != nil {
			if p.metrics != nil {
				p.metrics.SegmentsStopped.Inc()
			}
			var rtErr *runnable.RuntimeError
			if p.logger != nil {
				if errors.As(err, &rtErr) {
					p.logger.Error("embedder segment exited with runtime error",
						zap.String("pipeline", p.def.Name), zap.String("run_id", p.runID), zap.String("segment", rtErr.Name), zap.String("side", rtErr.Side))
				} else {
					p.logger.Error("embedder segment exited with error",
						zap.String("pipeline", p.def.Name), zap.String("run_id", p.runID), zap.Error(err))
				}
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if p.metrics != nil {
			p.metrics.SegmentsStopped.Inc()
		}
	}
	return firstErr
}
