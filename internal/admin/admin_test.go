package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/dataflow/internal/config"
	"github.com/flowmesh/dataflow/internal/controlplane"
	"github.com/flowmesh/dataflow/internal/types"
	pb "github.com/flowmesh/dataflow/proto/controlplane"
)

type fakeSegmentLister struct {
	addrs []types.SegmentAddress
}

func (f fakeSegmentLister) Current() []types.SegmentAddress { return f.addrs }

type fakeSnapshotProvider struct {
	snap *controlplane.Snapshot
}

func (f fakeSnapshotProvider) Last() *controlplane.Snapshot { return f.snap }

func sampleSnapshot() *controlplane.Snapshot {
	return controlplane.Normalize(&pb.ControlPlaneState{
		Nonce: 3,
		Executors: pb.IDList[pb.Executor]{
			IDs: []uint64{1},
			Entities: map[uint64]pb.Executor{
				1: {ID: 1, PeerInfo: "host:1", WorkerIDs: nil, AssignedPipelineIDs: []uint64{100}},
			},
		},
		PipelineInstances: pb.IDList[pb.PipelineInstance]{
			IDs: []uint64{100},
			Entities: map[uint64]pb.PipelineInstance{
				100: {ID: 100, DefinitionID: 50, ExecutorID: 1, State: pb.ResourceState{ActualStatus: pb.ActualRunning}},
			},
		},
	})
}

func doGet(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthzReportsOK(t *testing.T) {
	srv := NewServer(config.Default(), Options{ExecutorID: 7}, nil, nil)
	rec := doGet(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestSegmentsUnavailableWithoutLister(t *testing.T) {
	srv := NewServer(config.Default(), Options{}, nil, nil)
	rec := doGet(t, srv, "/segments")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSegmentsRendersCurrentAddresses(t *testing.T) {
	addr := types.NewSegmentAddress(1, 2, 3)
	srv := NewServer(config.Default(), Options{Segments: fakeSegmentLister{addrs: []types.SegmentAddress{addr}}}, nil, nil)
	rec := doGet(t, srv, "/segments")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Segments []map[string]interface{} `json:"segments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Segments, 1)
	assert.Equal(t, float64(1), body.Segments[0]["executor_id"])
}

func TestSnapshotUnavailableWithoutProvider(t *testing.T) {
	srv := NewServer(config.Default(), Options{}, nil, nil)
	rec := doGet(t, srv, "/control-plane/snapshot")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSnapshotUnavailableBeforeFirstPoll(t *testing.T) {
	srv := NewServer(config.Default(), Options{Snapshots: fakeSnapshotProvider{snap: nil}}, nil, nil)
	rec := doGet(t, srv, "/control-plane/snapshot")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSnapshotRendersRawState(t *testing.T) {
	srv := NewServer(config.Default(), Options{Snapshots: fakeSnapshotProvider{snap: sampleSnapshot()}}, nil, nil)
	rec := doGet(t, srv, "/control-plane/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)

	var body pb.ControlPlaneState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, uint64(3), body.Nonce)
}

func TestExecutorsRendersWorkerAndPipelineIDs(t *testing.T) {
	srv := NewServer(config.Default(), Options{Snapshots: fakeSnapshotProvider{snap: sampleSnapshot()}}, nil, nil)
	rec := doGet(t, srv, "/control-plane/executors")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Executors []map[string]interface{} `json:"executors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Executors, 1)
	assert.Equal(t, "host:1", body.Executors[0]["peer_info"])
}

func TestPipelinesRendersState(t *testing.T) {
	srv := NewServer(config.Default(), Options{Snapshots: fakeSnapshotProvider{snap: sampleSnapshot()}}, nil, nil)
	rec := doGet(t, srv, "/control-plane/pipelines")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		PipelineInstances []map[string]interface{} `json:"pipeline_instances"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.PipelineInstances, 1)
}

func TestMetricsRouteIsReachable(t *testing.T) {
	srv := NewServer(config.Default(), Options{}, nil, nil)
	rec := doGet(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunServesUntilContextCanceled(t *testing.T) {
	cfg := config.Default()
	cfg.Admin.Port = "0"
	srv := NewServer(cfg, Options{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run never returned after context cancellation")
	}
}
