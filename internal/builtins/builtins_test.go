package builtins

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/dataflow/internal/channel"
	"github.com/flowmesh/dataflow/internal/edge"
	"github.com/flowmesh/dataflow/internal/manifold"
	"github.com/flowmesh/dataflow/internal/types"
)

func TestGeneratorWritesExactCountThenReleases(t *testing.T) {
	e := edge.NewEdge[[]byte](8)
	gen := NewGenerator(GeneratorOptions{Name: "gen", Count: 3}, e)

	errC := make(chan error, 1)
	go func() { errC <- gen.Run(context.Background()) }()

	received := 0
	for {
		_, status := e.AwaitRead(context.Background())
		if status != channel.StatusSuccess {
			break
		}
		received++
	}
	assert.Equal(t, 3, received)
	require.NoError(t, <-errC)
}

func TestGeneratorRequestStopHaltsEarly(t *testing.T) {
	e := edge.NewEdge[[]byte](1)
	gen := NewGenerator(GeneratorOptions{Name: "gen", Count: 1000, Interval: time.Millisecond}, e)

	errC := make(chan error, 1)
	go func() { errC <- gen.Run(context.Background()) }()

	_, status := e.AwaitRead(context.Background())
	require.Equal(t, channel.StatusSuccess, status)

	gen.RequestStop()
	select {
	case err := <-errC:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("generator never stopped")
	}
}

func TestGeneratorRequestKillHaltsImmediately(t *testing.T) {
	e := edge.NewEdge[[]byte](1000)
	gen := NewGenerator(GeneratorOptions{Name: "gen", Count: 1000000, Interval: time.Hour}, e)

	errC := make(chan error, 1)
	go func() { errC <- gen.Run(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	gen.RequestKill()

	select {
	case err := <-errC:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("generator never killed")
	}
}

// TestGeneratorRequestStopThenRequestKillStillHalts guards against Stop
// and Kill sharing a single-use guard: once Stop has fired, a later Kill
// must still take effect rather than being silently swallowed.
func TestGeneratorRequestStopThenRequestKillStillHalts(t *testing.T) {
	e := edge.NewEdge[[]byte](1000)
	gen := NewGenerator(GeneratorOptions{Name: "gen", Count: 1000000, Interval: time.Hour}, e)

	errC := make(chan error, 1)
	go func() { errC <- gen.Run(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	gen.RequestStop()
	gen.RequestKill()

	select {
	case err := <-errC:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("generator never halted after stop followed by kill")
	}
}

func TestManifoldGeneratorFailsWithoutWirePorts(t *testing.T) {
	gen := NewManifoldGenerator(GeneratorOptions{Name: "gen", Count: 3}, "out")
	err := gen.Run(context.Background())
	assert.Error(t, err)
}

func TestManifoldGeneratorRoutesThroughWiredPort(t *testing.T) {
	gen := NewManifoldGenerator(GeneratorOptions{Name: "gen", Count: 3}, "out")

	mf := manifold.New[[]byte]("out", nil, nil, 0, 0, nil)
	sinkAddr := types.NewSegmentAddress(1, 1, 1)
	opened := mf.ReconcileOutputs(map[types.SegmentAddress]bool{sinkAddr: true}, 8)
	in := opened[sinkAddr]
	require.NotNil(t, in)

	gen.(interface {
		WirePorts(map[string]*manifold.Manifold[[]byte])
	}).WirePorts(map[string]*manifold.Manifold[[]byte]{"out": mf})

	errC := make(chan error, 1)
	go func() { errC <- gen.Run(context.Background()) }()

	received := 0
	for {
		_, status := in.AwaitRead(context.Background())
		if status != channel.StatusSuccess {
			break
		}
		received++
		if received == 3 {
			break
		}
	}
	assert.Equal(t, 3, received)
	require.NoError(t, <-errC)
}

func TestLoggerSinkConsumesUntilUpstreamCloses(t *testing.T) {
	e := edge.NewEdge[[]byte](4)
	sink := NewLoggerSink("sink", e, nil)

	require.Equal(t, channel.StatusSuccess, e.AwaitWrite(context.Background(), []byte("a")))
	require.Equal(t, channel.StatusSuccess, e.AwaitWrite(context.Background(), []byte("b")))
	e.Release()

	require.NoError(t, sink.Run(context.Background()))
}

func TestGeneratorAndSinkEndToEnd(t *testing.T) {
	e := edge.NewEdge[[]byte](4)
	gen := NewGenerator(GeneratorOptions{Name: "gen", Count: 5}, e)
	sink := NewLoggerSink("sink", e, nil)

	genErr := make(chan error, 1)
	sinkErr := make(chan error, 1)
	go func() { genErr <- gen.Run(context.Background()) }()
	go func() { sinkErr <- sink.Run(context.Background()) }()

	require.NoError(t, <-genErr)
	require.NoError(t, <-sinkErr)
}
