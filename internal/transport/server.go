package transport

import (
	"fmt"

	"google.golang.org/grpc"

	"github.com/flowmesh/dataflow/internal/logging"
)

// ReceiveHandler is invoked with each decoded payload a data-plane
// server receives, addressed to dest.
type ReceiveHandler func(dest uint64, payload []byte)

// NewGRPCServer builds a *grpc.Server that accepts pushMethod calls from
// GRPCTransport.Send/SendTo without any generated service registration:
// every call this module doesn't recognize falls through
// UnknownServiceHandler, which is exactly pushMethod since nothing else
// is ever registered on this server.
func NewGRPCServer(handle ReceiveHandler, logger *logging.Logger) *grpc.Server {
	return grpc.NewServer(grpc.UnknownServiceHandler(func(srv interface{}, stream grpc.ServerStream) error {
		var frame []byte
		if err := stream.RecvMsg(&frame); err != nil {
			return fmt.Errorf("transport: receiving frame: %w", err)
		}

		dest, payload, err := DecodeDescriptor(frame)
		if err != nil {
			if logger != nil {
				logger.Warn("transport: dropping malformed frame")
			}
			return err
		}

		handle(dest, payload)

		reply := []byte{}
		return stream.SendMsg(&reply)
	}))
}
