// Package engine implements the scheduling vehicles that drive
// runnables: a configurable choice between cooperatively-scheduled
// fibers and OS-thread-pinned workers, fanned out pe_count *
// engines_per_pe wide by a Pool.
package engine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Kind selects the scheduling strategy behind an Engine.
type Kind int

const (
	// Fiber schedules tasks as plain goroutines, cooperatively multiplexed
	// by the Go runtime onto a shared set of OS threads. This is the
	// default.
	Fiber Kind = iota
	// Thread pins each task's goroutine to a dedicated OS thread for its
	// duration, for workloads that need thread-local affinity.
	Thread
)

func (k Kind) String() string {
	switch k {
	case Fiber:
		return "fiber"
	case Thread:
		return "thread"
	default:
		return "unknown"
	}
}

// Handle is a completion token returned by Submit.
type Handle interface {
	Wait() error
}

type future struct {
	done chan struct{}
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) finish(err error) {
	f.err = err
	close(f.done)
}

func (f *future) Wait() error {
	<-f.done
	return f.err
}

// Engine accepts a task and returns a completion handle without blocking
// the caller.
type Engine interface {
	ID() int
	Kind() Kind
	Submit(ctx context.Context, task func(context.Context) error) Handle
}

type fiberEngine struct{ id int }

func (e *fiberEngine) ID() int   { return e.id }
func (e *fiberEngine) Kind() Kind { return Fiber }

func (e *fiberEngine) Submit(ctx context.Context, task func(context.Context) error) Handle {
	f := newFuture()
	go func() {
		f.finish(task(withEngineID(ctx, e.id)))
	}()
	return f
}

type threadEngine struct{ id int }

func (e *threadEngine) ID() int    { return e.id }
func (e *threadEngine) Kind() Kind { return Thread }

func (e *threadEngine) Submit(ctx context.Context, task func(context.Context) error) Handle {
	f := newFuture()
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		f.finish(task(withEngineID(ctx, e.id)))
	}()
	return f
}

type engineIDKey struct{}

func withEngineID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, engineIDKey{}, id)
}

// IDFromContext returns the engine id a task is executing on, if the
// context was produced by an Engine's Submit.
func IDFromContext(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(engineIDKey{}).(int)
	return id, ok
}

// Factory builds engines of a fixed Kind.
type Factory struct {
	kind Kind
}

// NewFactory creates a factory that produces engines of the given kind.
func NewFactory(kind Kind) *Factory {
	return &Factory{kind: kind}
}

// New builds a single engine with the given id.
func (f *Factory) New(id int) Engine {
	if f.kind == Thread {
		return &threadEngine{id: id}
	}
	return &fiberEngine{id: id}
}

// Pool is the fan-out of pe_count partitions, each hosting engines_per_pe
// engines, flattened into one slice for scheduling purposes — the
// partition boundary itself carries no runtime behavior beyond sizing.
type Pool struct {
	engines []Engine
}

// NewPool builds a pool of peCount*enginesPerPE engines from factory.
func NewPool(factory *Factory, peCount, enginesPerPE int) *Pool {
	if peCount < 1 {
		peCount = 1
	}
	if enginesPerPE < 1 {
		enginesPerPE = 1
	}
	total := peCount * enginesPerPE
	engines := make([]Engine, total)
	for i := 0; i < total; i++ {
		engines[i] = factory.New(i)
	}
	return &Pool{engines: engines}
}

// Engines returns the pool's engines in id order.
func (p *Pool) Engines() []Engine {
	return p.engines
}

// Size returns the number of engines in the pool.
func (p *Pool) Size() int {
	return len(p.engines)
}

// Run submits task to every engine in the pool and waits for all of them
// to complete, returning the first error encountered (per
// golang.org/x/sync/errgroup semantics) and canceling the shared context
// for the remaining engines once one fails.
func (p *Pool) Run(ctx context.Context, task func(ctx context.Context, engineID int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range p.engines {
		e := e
		g.Go(func() error {
			h := e.Submit(gctx, func(c context.Context) error {
				return task(c, e.ID())
			})
			return h.Wait()
		})
	}
	return g.Wait()
}
