package controlplane

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/flowmesh/dataflow/internal/logging"
	"github.com/flowmesh/dataflow/internal/resilience"
	pb "github.com/flowmesh/dataflow/proto/controlplane"
)

// OnUpdate is invoked with the first snapshot the Watcher successfully
// decodes and then with each one that is not Equal to the previous one;
// a poll that returns unchanged state does not invoke it.
type OnUpdate func(*Snapshot)

// Watcher long-polls a control-plane endpoint for its published state
// and normalizes each response into a Snapshot. It stops polling once
// Stop is called.
type Watcher struct {
	url      string
	interval time.Duration
	client   *retryablehttp.Client
	breaker  *resilience.Breaker
	logger   *logging.Logger
	onUpdate OnUpdate

	last  atomic.Pointer[Snapshot]
	stopC chan struct{}
}

// NewWatcher constructs a Watcher against the given control-plane state
// endpoint, polling at interval.
func NewWatcher(url string, interval time.Duration, logger *logging.Logger, onUpdate OnUpdate) *Watcher {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil

	breaker := resilience.New("control-plane-watch", resilience.Settings{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Watcher{
		url:      url,
		interval: interval,
		client:   rc,
		breaker:  breaker,
		logger:   logger,
		onUpdate: onUpdate,
		stopC:    make(chan struct{}),
	}
}

// Last returns the most recently decoded snapshot, or nil if none has
// been received yet.
func (w *Watcher) Last() *Snapshot {
	return w.last.Load()
}

// Run polls until Stop is called and then returns nil; it never returns
// a non-nil error. Poll failures are logged and retried on the next tick.
func (w *Watcher) Run() error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll()
	for {
		select {
		case <-w.stopC:
			return nil
		case <-ticker.C:
			w.poll()
		}
	}
}

// Stop halts a running Watcher. Safe to call once.
func (w *Watcher) Stop() {
	close(w.stopC)
}

func (w *Watcher) poll() {
	raw, err := w.fetch()
	if err != nil {
		w.logger.Warn("control plane poll failed", zap.Error(err))
		return
	}

	snap := Normalize(raw)
	if prev := w.last.Load(); prev != nil && Equal(prev, snap) {
		return
	}
	w.last.Store(snap)
	if w.onUpdate != nil {
		w.onUpdate(snap)
	}
}

func (w *Watcher) fetch() (*pb.ControlPlaneState, error) {
	result, err := w.breaker.Execute(func() (interface{}, error) {
		req, err := retryablehttp.NewRequest(http.MethodGet, w.url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := w.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("control plane returned status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		var state pb.ControlPlaneState
		if err := sonic.Unmarshal(body, &state); err != nil {
			return nil, fmt.Errorf("decoding control plane state: %w", err)
		}
		return &state, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*pb.ControlPlaneState), nil
}
