package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/flowmesh/dataflow/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades inbound connections and decodes each binary
// message as a descriptor frame, handing the result to handle.
type WSHandler struct {
	handle ReceiveHandler
	logger *logging.Logger
}

// NewWSHandler constructs a gin-compatible handler for the data-plane
// WebSocket endpoint.
func NewWSHandler(handle ReceiveHandler, logger *logging.Logger) *WSHandler {
	return &WSHandler{handle: handle, logger: logger}
}

// HandleConnection upgrades the request and reads frames until the peer
// disconnects.
func (h *WSHandler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("transport: websocket upgrade failed", zap.Error(err))
		}
		return
	}
	defer conn.Close()

	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		dest, payload, err := DecodeDescriptor(frame)
		if err != nil {
			if h.logger != nil {
				h.logger.Warn("transport: dropping malformed frame", zap.Error(err))
			}
			continue
		}
		h.handle(dest, payload)
	}
}
