// Package runnable implements the scheduled-unit state machine described
// in spec.md §4.4: a node pulls from an upstream edge, processes each item,
// and writes downstream until either side signals non-success, honoring a
// cooperative Stop or a forced Kill.
package runnable

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowmesh/dataflow/internal/channel"
	"github.com/flowmesh/dataflow/internal/edge"
	"github.com/flowmesh/dataflow/internal/logging"
	"go.uber.org/zap"
)

// State is a runnable's lifecycle state.
type State int

const (
	Init State = iota
	Queued
	Running
	Stop
	Kill
	Completed
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Stop:
		return "stop"
	case Kill:
		return "kill"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// stopToken is observable from the run loop and, once requested, stays
// requested forever.
type stopToken struct {
	ch   chan struct{}
	once sync.Once
}

func newStopToken() *stopToken {
	return &stopToken{ch: make(chan struct{})}
}

func (s *stopToken) request() {
	s.once.Do(func() { close(s.ch) })
}

func (s *stopToken) requested() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Context is what a Runnable's loop and Process function observe: the
// caller's context.Context plus the runnable's own stop token.
type Context struct {
	ctx  context.Context
	stop *stopToken
}

// Ctx returns the underlying context.Context, for deadline/cancellation
// propagation into blocking edge operations.
func (c Context) Ctx() context.Context { return c.ctx }

// StopRequested reports whether Kill has been requested.
func (c Context) StopRequested() bool { return c.stop.requested() }

// Process handles one item read from upstream, writing it downstream
// (directly, through a router, or through a manifold) and returning the
// resulting write-side channel.Status.
type Process[In any] func(ctx Context, v In) channel.Status

// RuntimeError is the fatal error raised when the read or write side of a
// Runnable's loop reports channel.StatusError.
type RuntimeError struct {
	Name string
	Side string // "read" or "write"
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runnable %q: fatal %s-side error", e.Name, e.Side)
}

// Runnable drives a single upstream-to-downstream processing loop.
type Runnable[In any] struct {
	name     string
	upstream edge.ReadableEdge[In]
	process  Process[In]
	release  func()
	logger   *logging.Logger

	mu    sync.Mutex
	state State
	stop  *stopToken
}

// New creates a Runnable in state Init. release is invoked once, after the
// loop exits for any reason, to release downstream edges; it may be nil.
func New[In any](name string, upstream edge.ReadableEdge[In], process Process[In], release func(), logger *logging.Logger) *Runnable[In] {
	return &Runnable[In]{
		name:     name,
		upstream: upstream,
		process:  process,
		release:  release,
		logger:   logger,
		state:    Init,
		stop:     newStopToken(),
	}
}

// Name returns the runnable's name, for logs and error messages.
func (r *Runnable[In]) Name() string { return r.name }

// State returns the current lifecycle state.
func (r *Runnable[In]) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runnable[In]) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// ServiceStart transitions Init -> Queued, making the runnable eligible
// for engine pickup.
func (r *Runnable[In]) ServiceStart() {
	r.setState(Queued)
}

// RequestStop requests cooperative termination: the stop token is left
// untouched so the loop keeps draining until the upstream closes on its
// own.
func (r *Runnable[In]) RequestStop() {
	r.setState(Stop)
}

// RequestKill requests forced termination: the stop token is set so the
// loop exits on its next suspension point, possibly dropping in-flight
// items.
func (r *Runnable[In]) RequestKill() {
	r.setState(Kill)
	r.stop.request()
}

// Run is the engine's entrypoint. It blocks until the loop exits, releases
// downstream edges, transitions to Completed, and returns a *RuntimeError
// if the read or write side failed.
func (r *Runnable[In]) Run(ctx context.Context) error {
	r.setState(Running)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.stop.ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	rc := Context{ctx: ctx, stop: r.stop}

	readStatus := channel.StatusSuccess
	writeStatus := channel.StatusSuccess

	for !r.stop.requested() {
		var item In
		item, readStatus = r.upstream.AwaitRead(ctx)
		if readStatus != channel.StatusSuccess {
			break
		}
		writeStatus = r.process(rc, item)
		if writeStatus != channel.StatusSuccess {
			break
		}
	}

	if r.release != nil {
		r.release()
	}
	r.setState(Completed)

	if readStatus == channel.StatusError {
		if r.logger != nil {
			r.logger.Error("runnable read-side failure", zap.String("runnable", r.name))
		}
		return &RuntimeError{Name: r.name, Side: "read"}
	}
	if writeStatus == channel.StatusError {
		if r.logger != nil {
			r.logger.Error("runnable write-side failure", zap.String("runnable", r.name))
		}
		return &RuntimeError{Name: r.name, Side: "write"}
	}
	return nil
}
