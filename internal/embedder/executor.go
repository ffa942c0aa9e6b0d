package embedder

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowmesh/dataflow/internal/config"
	"github.com/flowmesh/dataflow/internal/engine"
	"github.com/flowmesh/dataflow/internal/logging"
	"github.com/flowmesh/dataflow/internal/metrics"
	"github.com/flowmesh/dataflow/internal/pipelinedef"
	"github.com/flowmesh/dataflow/internal/types"
)

// Executor owns the engine pool a process's registered pipelines run on.
// It is the top-level object an embedding program constructs: register
// one or more pipelines, Start them, then Join to block until they
// complete, the way mrc::Executor::register_pipeline/start/join drives a
// pipeline end to end.
type Executor struct {
	id      uint16
	cfg     *config.Config
	pool    *engine.Pool
	logger  *logging.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	pipelines []*Pipeline
}

// NewExecutor builds an Executor with an engine pool sized from
// cfg.Engine.PECount * cfg.Engine.EnginesPerPE.
func NewExecutor(id uint16, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) *Executor {
	if cfg == nil {
		cfg = config.Default()
	}
	kind := engine.Fiber
	if cfg.Engine.Kind == "thread" {
		kind = engine.Thread
	}
	pool := engine.NewPool(engine.NewFactory(kind), cfg.Engine.PECount, cfg.Engine.EnginesPerPE)
	return &Executor{
		id:      id,
		cfg:     cfg,
		pool:    pool,
		logger:  logger,
		metrics: m,
	}
}

// ID returns the executor's control-plane-assigned identifier.
func (e *Executor) ID() uint16 { return e.id }

// Pool returns the executor's engine pool, for callers that need to
// submit work outside the embedder's own pipeline bookkeeping.
func (e *Executor) Pool() *engine.Pool { return e.pool }

// RegisterPipeline builds a Pipeline for def and adds it to this
// executor's registry. The returned Pipeline still needs its segment
// factories registered via RegisterFactory before Start.
func (e *Executor) RegisterPipeline(def *pipelinedef.Definition) (*Pipeline, error) {
	if def == nil {
		return nil, fmt.Errorf("embedder: nil pipeline definition")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.pipelines {
		if existing.Name() == def.Name {
			return nil, fmt.Errorf("embedder: pipeline %q already registered", def.Name)
		}
	}
	p := newPipeline(def, e.id, e.pool, e.logger, e.metrics)
	e.pipelines = append(e.pipelines, p)
	return p, nil
}

// Pipelines returns every pipeline registered with this executor.
func (e *Executor) Pipelines() []*Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Pipeline, len(e.pipelines))
	copy(out, e.pipelines)
	return out
}

// Current returns the running segment addresses across every registered
// pipeline, satisfying admin.SegmentLister.
func (e *Executor) Current() []types.SegmentAddress {
	var out []types.SegmentAddress
	for _, p := range e.Pipelines() {
		out = append(out, p.RunningAddresses()...)
	}
	return out
}

// Start starts every registered pipeline.
func (e *Executor) Start(ctx context.Context) error {
	for _, p := range e.Pipelines() {
		if err := p.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop cooperatively stops every registered pipeline.
func (e *Executor) Stop() {
	for _, p := range e.Pipelines() {
		p.Stop()
	}
}

// Kill forcibly stops every registered pipeline.
func (e *Executor) Kill() {
	for _, p := range e.Pipelines() {
		p.Kill()
	}
}

// Join blocks until every registered pipeline has completed, returning
// an exit code suitable for os.Exit: 0 on a clean join, 1 if any
// pipeline's join surfaced a fatal runtime error.
func (e *Executor) Join() (int, error) {
	var firstErr error
	for _, p := range e.Pipelines() {
		if err := p.Join(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return 1, firstErr
	}
	return 0, nil
}
