// Package builtins provides a small set of ready-made segment
// constructors — a counting generator source and a logging sink — for
// wiring a runnable demonstration pipeline without writing Go code
// against the runnable/edge primitives directly, the way
// test_executor.cpp's LifeCycleSingleSegmentOpMuxer builds a minimal
// rx_source -> rx_sink pipeline to exercise the executor end to end.
package builtins

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowmesh/dataflow/internal/channel"
	"github.com/flowmesh/dataflow/internal/edge"
	"github.com/flowmesh/dataflow/internal/logging"
	"github.com/flowmesh/dataflow/internal/manifold"
	"github.com/flowmesh/dataflow/internal/pipeline"
	"github.com/flowmesh/dataflow/internal/runnable"
)

// GeneratorOptions configures NewGenerator.
type GeneratorOptions struct {
	Name     string
	Count    int
	Interval time.Duration
}

type generator struct {
	opts GeneratorOptions
	out  *edge.Edge[[]byte]

	stopOnce sync.Once
	killOnce sync.Once
	stopC    chan struct{}
	killC    chan struct{}
}

// NewGenerator builds a Segment that writes opts.Count sequentially
// numbered payloads to out, spaced by opts.Interval, then releases out.
func NewGenerator(opts GeneratorOptions, out *edge.Edge[[]byte]) pipeline.Segment {
	return &generator{opts: opts, out: out, stopC: make(chan struct{}), killC: make(chan struct{})}
}

func (g *generator) Name() string { return g.opts.Name }

func (g *generator) RequestStop() { closeOnce(&g.stopOnce, g.stopC) }
func (g *generator) RequestKill() { closeOnce(&g.killOnce, g.killC) }

func closeOnce(once *sync.Once, ch chan struct{}) {
	once.Do(func() { close(ch) })
}

func (g *generator) Run(ctx context.Context) error {
	defer g.out.Release()

	for i := 0; i < g.opts.Count; i++ {
		select {
		case <-g.stopC:
			return nil
		case <-g.killC:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		payload := []byte(fmt.Sprintf("%s-%d", g.opts.Name, i))
		if status := g.out.AwaitWrite(ctx, payload); status != channel.StatusSuccess {
			return &runnable.RuntimeError{Name: g.opts.Name, Side: "write"}
		}
		if g.opts.Interval > 0 {
			select {
			case <-time.After(g.opts.Interval):
			case <-g.killC:
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	}
	return nil
}

// manifoldGenerator is like generator but routes every payload through a
// named output port of the manifold layer instead of a single fixed
// in-process edge, so it can fan out to whatever local or remote
// segments the control plane has currently requested for that port. It
// implements pipeline.PortWirer: the Manager that starts it is expected
// to call WirePorts with the manifold bound to opts' port before Run is
// submitted.
type manifoldGenerator struct {
	opts GeneratorOptions
	port string
	mf   *manifold.Manifold[[]byte]

	stopOnce sync.Once
	killOnce sync.Once
	stopC    chan struct{}
	killC    chan struct{}
}

// NewManifoldGenerator builds a Segment that writes opts.Count
// sequentially numbered payloads through the manifold bound to the
// named output port. The returned Segment only has somewhere to write
// once a pipeline.Manager calls WirePorts on it with that port name
// present.
func NewManifoldGenerator(opts GeneratorOptions, port string) pipeline.Segment {
	return &manifoldGenerator{opts: opts, port: port, stopC: make(chan struct{}), killC: make(chan struct{})}
}

func (g *manifoldGenerator) Name() string { return g.opts.Name }

func (g *manifoldGenerator) RequestStop() { closeOnce(&g.stopOnce, g.stopC) }
func (g *manifoldGenerator) RequestKill() { closeOnce(&g.killOnce, g.killC) }

// WirePorts binds the manifold this generator writes through, per
// pipeline.PortWirer.
func (g *manifoldGenerator) WirePorts(ports map[string]*manifold.Manifold[[]byte]) {
	g.mf = ports[g.port]
}

func (g *manifoldGenerator) Run(ctx context.Context) error {
	if g.mf == nil {
		return fmt.Errorf("builtins: manifold generator %q has no manifold bound to port %q", g.opts.Name, g.port)
	}

	for i := 0; i < g.opts.Count; i++ {
		select {
		case <-g.stopC:
			return nil
		case <-g.killC:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		payload := []byte(fmt.Sprintf("%s-%d", g.opts.Name, i))
		if status := g.mf.AwaitWrite(ctx, payload); status != channel.StatusSuccess {
			return &runnable.RuntimeError{Name: g.opts.Name, Side: "write"}
		}
		if g.opts.Interval > 0 {
			select {
			case <-time.After(g.opts.Interval):
			case <-g.killC:
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	}
	return nil
}

// NewLoggerSink builds a Segment that logs every payload it reads from
// in at Info level until the upstream closes. It is a thin
// convenience wrapper over runnable.New.
func NewLoggerSink(name string, in edge.ReadableEdge[[]byte], logger *logging.Logger) pipeline.Segment {
	return runnable.New[[]byte](name, in, func(_ runnable.Context, v []byte) channel.Status {
		if logger != nil {
			logger.Info("builtin sink received payload", zap.String("segment", name), zap.ByteString("payload", v))
		}
		return channel.StatusSuccess
	}, nil, logger)
}
