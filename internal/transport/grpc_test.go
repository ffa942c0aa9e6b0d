package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/flowmesh/dataflow/internal/types"
)

func TestGRPCTransportSendDeliversToServer(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var gotDest uint64
	var gotPayload []byte
	received := make(chan struct{}, 1)

	srv := NewGRPCServer(func(dest uint64, payload []byte) {
		mu.Lock()
		gotDest = dest
		gotPayload = append([]byte{}, payload...)
		mu.Unlock()
		received <- struct{}{}
	}, nil)
	go srv.Serve(lis)
	defer srv.Stop()

	addr := lis.Addr().String()
	transport := NewGRPCTransport(func(dest uint64) (string, error) { return addr, nil })
	defer transport.Close()

	dest := types.NewSegmentAddress(1, 1, 1)
	require.NoError(t, transport.Send(context.Background(), dest, []byte("payload")))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received frame")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, uint64(dest), gotDest)
	assert.Equal(t, []byte("payload"), gotPayload)
}

func TestGRPCTransportSendToDeliversToServer(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	received := make(chan uint64, 1)
	srv := NewGRPCServer(func(dest uint64, payload []byte) { received <- dest }, nil)
	go srv.Serve(lis)
	defer srv.Stop()

	transport := NewGRPCTransport(func(dest uint64) (string, error) { return lis.Addr().String(), nil })
	defer transport.Close()

	require.NoError(t, transport.SendTo(context.Background(), types.Tag(99), []byte("x")))
	select {
	case got := <-received:
		assert.Equal(t, uint64(99), got)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received frame")
	}
}

func TestGRPCTransportDialErrorPropagates(t *testing.T) {
	transport := NewGRPCTransport(func(dest uint64) (string, error) {
		return "", assert.AnError
	})
	err := transport.Send(context.Background(), types.NewSegmentAddress(1, 1, 1), []byte("x"))
	assert.Error(t, err)
}

func TestRawCodecRoundTrips(t *testing.T) {
	var c rawCodec
	data := []byte("abc")
	marshaled, err := c.Marshal(&data)
	require.NoError(t, err)

	var out []byte
	require.NoError(t, c.Unmarshal(marshaled, &out))
	assert.Equal(t, data, out)
}

// sanity that insecure credentials + our raw codec compose the way
// conn.Invoke expects, without relying on the package-level transport
// under test.
func TestDirectInvokeWithRawCodec(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewGRPCServer(func(dest uint64, payload []byte) {}, nil)
	go srv.Serve(lis)
	defer srv.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	frame, err := EncodeDescriptor(1, []byte("x"))
	require.NoError(t, err)
	var reply []byte
	err = conn.Invoke(context.Background(), pushMethod, &frame, &reply, grpc.CallContentSubtype(rawCodecName))
	assert.NoError(t, err)
}
