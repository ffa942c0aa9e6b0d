package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowmesh/dataflow/internal/resilience"
	"github.com/flowmesh/dataflow/internal/types"
)

// URLResolver resolves a destination id (a packed segment address or a
// subscription tag) to the WebSocket URL it's reachable at.
type URLResolver func(dest uint64) (url string, err error)

// WSTransport sends descriptor frames as binary WebSocket messages,
// dialing lazily and keeping one connection and one circuit breaker per
// destination id. It exists for environments where a gRPC/HTTP2 path
// isn't available, the same role gorilla/websocket plays for the
// browser-facing side of the teacher's stack. Implements both
// manifold.RemoteSender (Send) and pubsub.Sender (SendTo).
type WSTransport struct {
	resolve URLResolver
	dialer  *websocket.Dialer

	mu    sync.Mutex
	conns map[uint64]*websocket.Conn

	breakers sync.Map // uint64 -> *resilience.Breaker
}

// NewWSTransport constructs a transport resolving destinations through
// resolve.
func NewWSTransport(resolve URLResolver) *WSTransport {
	return &WSTransport{
		resolve: resolve,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		conns:   make(map[uint64]*websocket.Conn),
	}
}

// Send implements manifold.RemoteSender.
func (t *WSTransport) Send(ctx context.Context, dest types.SegmentAddress, payload []byte) error {
	return t.push(ctx, uint64(dest), payload)
}

// SendTo implements pubsub.Sender.
func (t *WSTransport) SendTo(ctx context.Context, tag types.Tag, payload []byte) error {
	return t.push(ctx, uint64(tag), payload)
}

func (t *WSTransport) push(ctx context.Context, dest uint64, payload []byte) error {
	breaker := t.breakerFor(dest)
	_, err := breaker.Execute(func() (interface{}, error) {
		frame, err := EncodeDescriptor(dest, payload)
		if err != nil {
			return nil, err
		}

		conn, err := t.connFor(ctx, dest)
		if err != nil {
			return nil, err
		}

		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			t.drop(dest)
			return nil, fmt.Errorf("transport: writing to %d: %w", dest, err)
		}
		return nil, nil
	})
	return err
}

func (t *WSTransport) connFor(ctx context.Context, dest uint64) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if conn, ok := t.conns[dest]; ok {
		return conn, nil
	}

	url, err := t.resolve(dest)
	if err != nil {
		return nil, fmt.Errorf("transport: resolving url for %d: %w", dest, err)
	}

	conn, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %d at %s: %w", dest, url, err)
	}

	t.conns[dest] = conn
	return conn, nil
}

func (t *WSTransport) drop(dest uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if conn, ok := t.conns[dest]; ok {
		conn.Close()
		delete(t.conns, dest)
	}
}

func (t *WSTransport) breakerFor(dest uint64) *resilience.Breaker {
	if b, ok := t.breakers.Load(dest); ok {
		return b.(*resilience.Breaker)
	}
	b := resilience.New(fmt.Sprintf("ws-transport-%d", dest), resilience.Settings{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	actual, _ := t.breakers.LoadOrStore(dest, b)
	return actual.(*resilience.Breaker)
}

// Close closes every cached connection.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for dest, conn := range t.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing connection to %d: %w", dest, err)
		}
	}
	t.conns = make(map[uint64]*websocket.Conn)
	return firstErr
}
