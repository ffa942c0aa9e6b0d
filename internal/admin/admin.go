// Package admin exposes a read-only introspection HTTP surface over an
// executor's running state: its control-plane view, the segments its
// pipeline manager currently runs, and Prometheus metrics — grounded on
// the teacher's gin router wiring (internal/infrastructure/server) and
// its metrics-aggregator snapshot handler
// (internal/api/http/metrics_aggregator.go), adapted to this domain's
// state instead of AgentOS's kernel/AI-service metrics.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/flowmesh/dataflow/internal/config"
	"github.com/flowmesh/dataflow/internal/controlplane"
	"github.com/flowmesh/dataflow/internal/logging"
	"github.com/flowmesh/dataflow/internal/metrics"
	"github.com/flowmesh/dataflow/internal/types"
)

// SegmentLister reports the segment addresses an executor currently
// runs. *pipeline.Manager satisfies this.
type SegmentLister interface {
	Current() []types.SegmentAddress
}

// SnapshotProvider reports the last normalized control-plane snapshot an
// executor observed. *controlplane.Watcher satisfies this.
type SnapshotProvider interface {
	Last() *controlplane.Snapshot
}

// Server is the admin HTTP surface for one executor.
type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	logger  *logging.Logger
	metrics *metrics.Metrics

	executorID uint16
	segments   SegmentLister
	snapshots  SnapshotProvider
	startTime  time.Time
}

// Options configures a Server's view onto executor state. Segments and
// Snapshots may be nil if that source of state is not wired up yet.
type Options struct {
	ExecutorID uint16
	Segments   SegmentLister
	Snapshots  SnapshotProvider
}

// NewServer builds the admin HTTP server. If m is nil, request
// instrumentation is skipped.
func NewServer(cfg *config.Config, opts Options, logger *logging.Logger, m *metrics.Metrics) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))
	if m != nil {
		router.Use(metrics.Middleware(m))
	}

	s := &Server{
		router:     router,
		logger:     logger,
		metrics:    m,
		executorID: opts.ExecutorID,
		segments:   opts.Segments,
		snapshots:  opts.Snapshots,
		startTime:  time.Now(),
	}

	router.GET("/healthz", s.handleHealthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/segments", s.handleSegments)
	router.GET("/control-plane/snapshot", s.handleSnapshot)
	router.GET("/control-plane/executors", s.handleExecutors)
	router.GET("/control-plane/pipelines", s.handlePipelines)

	addr := cfg.Admin.Port
	if addr != "" && addr[0] != ':' {
		addr = ":" + addr
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router exposes the underlying gin engine for tests and for callers
// that want to register additional routes.
func (s *Server) Router() *gin.Engine { return s.router }

// Run blocks serving HTTP until ctx is canceled, then gracefully shuts
// down the underlying http.Server.
func (s *Server) Run(ctx context.Context) error {
	errC := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Info("admin server listening", zap.String("addr", s.httpSrv.Addr))
		}
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
			return
		}
		errC <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errC
	case err := <-errC:
		return err
	}
}

// Close forcibly closes the admin server's listener without waiting for
// in-flight requests.
func (s *Server) Close() error {
	return s.httpSrv.Close()
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"executor_id": s.executorID,
		"uptime":      time.Since(s.startTime).String(),
	})
}

func (s *Server) handleSegments(c *gin.Context) {
	if s.segments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "segment lister not wired up"})
		return
	}
	addrs := s.segments.Current()
	rendered := make([]gin.H, 0, len(addrs))
	for _, a := range addrs {
		rendered = append(rendered, gin.H{
			"address":              a.String(),
			"executor_id":          a.ExecutorID(),
			"pipeline_instance_id": a.PipelineInstanceID(),
			"segment_rank":         a.SegmentRank(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"segments": rendered})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	snap := s.currentSnapshot(c)
	if snap == nil {
		return
	}
	c.JSON(http.StatusOK, snap.Raw())
}

func (s *Server) handleExecutors(c *gin.Context) {
	snap := s.currentSnapshot(c)
	if snap == nil {
		return
	}
	ids := snap.ExecutorIDs()
	out := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		ex := snap.Executor(id)
		workerIDs := make([]uint64, 0)
		for _, w := range ex.Workers() {
			workerIDs = append(workerIDs, w.ID())
		}
		pipelineIDs := make([]uint64, 0)
		for _, p := range ex.AssignedPipelines() {
			pipelineIDs = append(pipelineIDs, p.ID())
		}
		out = append(out, gin.H{
			"id":                 id,
			"peer_info":          ex.PeerInfo(),
			"workers":            workerIDs,
			"assigned_pipelines": pipelineIDs,
		})
	}
	c.JSON(http.StatusOK, gin.H{"executors": out})
}

func (s *Server) handlePipelines(c *gin.Context) {
	snap := s.currentSnapshot(c)
	if snap == nil {
		return
	}
	ids := snap.PipelineInstanceIDs()
	out := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		pi := snap.PipelineInstance(id)
		out = append(out, gin.H{
			"id":    id,
			"state": pi.State(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"pipeline_instances": out})
}

func (s *Server) currentSnapshot(c *gin.Context) *controlplane.Snapshot {
	if s.snapshots == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "control-plane watcher not wired up"})
		return nil
	}
	snap := s.snapshots.Last()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no control-plane snapshot observed yet"})
		return nil
	}
	return snap
}
