package collab

import (
	"context"
	"log"
	"net/http"

	"docsync/internal/middleware"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the editor frontend's origin once deployments pin it
		return true
	},
}

// WebSocketHandler upgrades HTTP requests into coordination-layer connections.
type WebSocketHandler struct {
	hub     *Hub
	sendBuf int
}

func NewWebSocketHandler(hub *Hub, sendBuf int) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, sendBuf: sendBuf}
}

// HandleConnection upgrades the request and starts the connection's pumps. The
// client is unauthenticated until it sends a valid authenticate event; identity
// is never taken from the HTTP request.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	connID := ksuid.New().String()

	ctx, span := middleware.StartSpan(r.Context(), "ws.Connect",
		attribute.String("connection.id", connID),
	)
	defer span.End()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("failed to upgrade websocket: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	client := NewClient(connID, h.hub, conn, h.sendBuf)
	h.hub.Register(connID, client)

	// The pumps outlive the HTTP request; give them a detached context so the
	// connection isn't torn down when the upgrade request's context is.
	pumpCtx := context.WithoutCancel(ctx)
	go client.WritePump(pumpCtx)
	go client.ReadPump(pumpCtx)

	log.Printf("✓ WebSocket connection established (%s)", connID)
}
