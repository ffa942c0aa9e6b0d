// Command srf is the embedder entrypoint: it loads executor
// configuration and a pipeline definition, registers the pipeline with
// an executor, starts it, serves the admin introspection surface, and
// joins — exiting 0 on a clean join or non-zero on a fatal runtime
// error, the way cmd/server/main.go in the teacher drives its own
// server through flag parsing and a signal-driven graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/flowmesh/dataflow/internal/admin"
	"github.com/flowmesh/dataflow/internal/builtins"
	"github.com/flowmesh/dataflow/internal/config"
	"github.com/flowmesh/dataflow/internal/controlplane"
	"github.com/flowmesh/dataflow/internal/edge"
	"github.com/flowmesh/dataflow/internal/embedder"
	"github.com/flowmesh/dataflow/internal/engine"
	"github.com/flowmesh/dataflow/internal/logging"
	"github.com/flowmesh/dataflow/internal/manifold"
	"github.com/flowmesh/dataflow/internal/metrics"
	"github.com/flowmesh/dataflow/internal/pipeline"
	"github.com/flowmesh/dataflow/internal/pipelinedef"
	"github.com/flowmesh/dataflow/internal/transport"
	"github.com/flowmesh/dataflow/internal/types"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML executor configuration file")
	pipelinePath := flag.String("pipeline", "", "path to a YAML pipeline definition; a built-in two-segment demo runs if empty")
	executorID := flag.Uint("executor-id", 1, "this process's control-plane executor id")
	watchControlPlane := flag.Bool("watch-control-plane", false, "poll the control-plane address configured in [control] for introspection")
	flag.Parse()

	cfg := config.LoadOrDefault(*configPath)

	logCfg := logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development, OutputPaths: []string{"stdout"}}
	logger, err := logging.New(logCfg)
	if err != nil {
		logger = logging.NewDefault()
	}
	defer logger.Sync()

	m := metrics.NewMetrics()

	def, err := loadDefinition(*pipelinePath)
	if err != nil {
		log.Fatalf("srf: loading pipeline definition: %v", err)
	}

	ex := embedder.NewExecutor(uint16(*executorID), cfg, logger, m)
	p, err := ex.RegisterPipeline(def)
	if err != nil {
		log.Fatalf("srf: registering pipeline: %v", err)
	}

	if err := wireBuiltinFactories(def, p, cfg, logger); err != nil {
		log.Fatalf("srf: wiring segment factories: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var watcher *controlplane.Watcher
	var cp *controlPlaneWiring
	if *watchControlPlane && cfg.Control.Address != "" {
		cp = newControlPlaneWiring(uint16(*executorID), ex.Pool().Engines()[0], cfg, logger, m)
		watcher = controlplane.NewWatcher(cfg.Control.Address, time.Duration(cfg.Control.WatchPollMS)*time.Millisecond, logger,
			func(snap *controlplane.Snapshot) {
				logger.Info("observed control-plane update", zap.Uint64("nonce", snap.Nonce()))
				cp.reconcile(ctx, snap)
			})
	}

	var adminSrv *admin.Server
	if cfg.Admin.Enabled {
		opts := admin.Options{ExecutorID: uint16(*executorID), Segments: ex}
		if watcher != nil {
			opts.Snapshots = watcher
		}
		adminSrv = admin.NewServer(cfg, opts, logger, m)
		go func() {
			if err := adminSrv.Run(ctx); err != nil {
				logger.Error("admin server exited with error", zap.Error(err))
			}
		}()
	}

	if watcher != nil {
		go func() {
			if err := watcher.Run(); err != nil {
				logger.Warn("control-plane watcher exited", zap.Error(err))
			}
		}()
		defer watcher.Stop()
	}

	logger.Info("starting pipeline", zap.String("pipeline", def.Name), zap.Uint("executor_id", *executorID))
	if err := ex.Start(ctx); err != nil {
		log.Fatalf("srf: starting pipeline: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitChan := make(chan int, 1)
	go func() {
		code, joinErr := ex.Join()
		if joinErr != nil {
			logger.Error("pipeline joined with error", zap.Error(joinErr))
		} else {
			logger.Info("pipeline joined cleanly")
		}
		exitChan <- code
	}()

	var exitCode int
	select {
	case <-sigChan:
		logger.Info("shutting down on signal")
		ex.Stop()
		if cp != nil {
			if err := cp.manager.KillAll(); err != nil {
				logger.Warn("control-plane managed segments exited with error", zap.Error(err))
			}
		}
		exitCode = <-exitChan
	case exitCode = <-exitChan:
	}

	cancel()
	os.Exit(exitCode)
}

// loadDefinition loads a pipeline definition from disk, or falls back to
// a built-in generator/sink demo pipeline if no path was given.
func loadDefinition(path string) (*pipelinedef.Definition, error) {
	if path == "" {
		return pipelinedef.Parse([]byte(`
name: demo
pipeline_instance_id: 1
segments:
  - name: source
    rank: 0
    factory: generator
    enabled: true
  - name: sink
    rank: 1
    factory: log_sink
    enabled: true
`))
	}
	return pipelinedef.Load(path)
}

// wireBuiltinFactories resolves every enabled segment's factory name
// against the builtins registry. Segments whose factory is "generator"
// feed into the next-by-rank enabled segment whose factory is "log_sink"
// over a single shared
// in-process edge; this is the demo wiring exercised when no custom
// embedding code registers its own factories.
func wireBuiltinFactories(def *pipelinedef.Definition, p *embedder.Pipeline, cfg *config.Config, logger *logging.Logger) error {
	enabled := make([]pipelinedef.SegmentDef, 0, len(def.Segments))
	for _, seg := range def.Segments {
		if seg.Enabled {
			enabled = append(enabled, seg)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Rank < enabled[j].Rank })

	var e *edge.Edge[[]byte]
	for _, seg := range enabled {
		switch seg.Factory {
		case "generator":
			e = edge.NewEdge[[]byte](cfg.Channel.DefaultCapacity)
			name := seg.Name
			out := e
			if err := p.RegisterFactory(name, func(types.SegmentAddress) (pipeline.Segment, error) {
				return builtins.NewGenerator(builtins.GeneratorOptions{Name: name, Count: 1000}, out), nil
			}); err != nil {
				return err
			}
		case "log_sink":
			if e == nil {
				return fmt.Errorf("srf: segment %q is a log_sink with no preceding generator to read from", seg.Name)
			}
			name := seg.Name
			in := e
			if err := p.RegisterFactory(name, func(types.SegmentAddress) (pipeline.Segment, error) {
				return builtins.NewLoggerSink(name, in, logger), nil
			}); err != nil {
				return err
			}
			e = nil
		default:
			return fmt.Errorf("srf: segment %q: unknown built-in factory %q (register it with custom embedding code instead)", seg.Name, seg.Factory)
		}
	}
	return nil
}

// controlPlaneWiring is the --watch-control-plane counterpart to
// wireBuiltinFactories: instead of a single fixed in-process edge
// assembled once at startup, it holds a pipeline.Manager whose Factory
// resolves a segment's role from the most recently observed snapshot and
// a manifold carrying "source" segments' output toward whichever local
// or remote "sink" addresses the control plane currently requests for
// that port, so Manager.Reconcile both starts/stops segments and wires
// their ports to the manifold layer on every control-plane update, the
// way the pipeline manager does in section 4.7 of the runtime's design.
type controlPlaneWiring struct {
	executorID uint16
	cfg        *config.Config
	logger     *logging.Logger
	manager    *pipeline.Manager
	out        *manifold.Manifold[[]byte]
	transport  *transport.GRPCTransport

	mu    sync.Mutex
	roles map[types.SegmentAddress]string
	edges map[types.SegmentAddress]*edge.Edge[[]byte]
}

// newControlPlaneWiring builds the manifold (backed by a real
// internal/transport GRPC sender for non-local destinations) and the
// pipeline.Manager that routes newly requested addresses through it.
func newControlPlaneWiring(executorID uint16, eng engine.Engine, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) *controlPlaneWiring {
	dial := func(dest uint64) (string, error) {
		return cfg.Transport.ListenAddress, nil
	}
	grpcTransport := transport.NewGRPCTransport(dial)
	identity := func(v []byte) ([]byte, error) { return v, nil }
	out := manifold.New[[]byte]("out", grpcTransport, identity, 0, 0, m)

	cp := &controlPlaneWiring{
		executorID: executorID,
		cfg:        cfg,
		logger:     logger,
		out:        out,
		transport:  grpcTransport,
		roles:      make(map[types.SegmentAddress]string),
		edges:      make(map[types.SegmentAddress]*edge.Edge[[]byte]),
	}

	factory := func(addr types.SegmentAddress) (pipeline.Segment, error) {
		cp.mu.Lock()
		role := cp.roles[addr]
		in := cp.edges[addr]
		cp.mu.Unlock()

		switch role {
		case "source":
			return builtins.NewManifoldGenerator(builtins.GeneratorOptions{Name: fmt.Sprintf("cp-source-%s", addr), Count: 1000}, "out"), nil
		case "sink":
			if in == nil {
				return nil, fmt.Errorf("srf: no manifold-opened edge yet for sink %s", addr)
			}
			return builtins.NewLoggerSink(fmt.Sprintf("cp-sink-%s", addr), in, logger), nil
		default:
			return nil, fmt.Errorf("srf: control-plane segment %s has unrecognized role %q", addr, role)
		}
	}

	cp.manager = pipeline.New(factory, eng, logger, m).
		WithManifolds(map[string]*manifold.Manifold[[]byte]{"out": out})
	return cp
}

// reconcile folds one observed snapshot into the manifold's output set
// and the pipeline manager's requested address set, then reconciles
// both: the manifold learns which destinations this executor's "out"
// port should currently fan out to (opening local edges for newly local
// ones), and the manager starts/stops segments to match, wiring each
// started segment's ports to the manifold layer via PortWirer.
func (cp *controlPlaneWiring) reconcile(ctx context.Context, snap *controlplane.Snapshot) {
	assigned := false
	for _, id := range snap.ExecutorIDs() {
		if id == uint64(cp.executorID) {
			assigned = true
			break
		}
	}
	if !assigned {
		return
	}

	requested := make(map[types.SegmentAddress]bool)
	roles := make(map[types.SegmentAddress]string)
	outputs := make(map[types.SegmentAddress]bool)

	for _, pi := range snap.Executor(uint64(cp.executorID)).AssignedPipelines() {
		for _, seg := range pi.Segments() {
			addr := types.SegmentAddress(seg.SegmentAddress())
			requested[addr] = true
			roles[addr] = seg.Name()
		}
		for _, mf := range pi.Manifolds() {
			if mf.PortName() != "out" {
				continue
			}
			for packed, isLocal := range mf.RequestedOutputSegments() {
				outputs[types.SegmentAddress(packed)] = isLocal
			}
		}
	}

	opened := cp.out.ReconcileOutputs(outputs, cp.cfg.Channel.DefaultCapacity)

	cp.mu.Lock()
	cp.roles = roles
	for addr, e := range opened {
		cp.edges[addr] = e
	}
	cp.mu.Unlock()

	if err := cp.manager.Reconcile(ctx, requested); err != nil {
		cp.logger.Warn("control-plane reconcile failed", zap.Error(err))
	}
}
