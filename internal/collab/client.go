package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"docsync/internal/middleware"
	"docsync/internal/models"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 54 * time.Second
	DefaultSendBuf = 256
)

// errHardDisconnect marks protocol violations that close the connection
// outright (currently only a bad authenticate payload). Everything else keeps
// the connection alive.
var errHardDisconnect = errors.New("hard disconnect")

// Client is one WebSocket connection: a read pump decoding inbound envelopes
// into hub calls, and a write pump draining the buffered send channel. The two
// run in separate goroutines so a slow reader never blocks writes.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, sendBuf int) *Client {
	if sendBuf <= 0 {
		sendBuf = DefaultSendBuf
	}
	return &Client{
		ID:   id,
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuf),
	}
}

// Send marshals and queues an outbound event. Returns false when the buffer is
// full; the event is dropped, per the no-queue delivery model.
func (c *Client) Send(evt models.Event) bool {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("failed to marshal %s event: %v", evt.Type, err)
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close tears down the underlying socket. The read pump notices and runs the
// disconnect protocol.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// ReadPump decodes frames and dispatches them until the connection dies, then
// runs the hub's disconnect protocol exactly once.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Disconnect(c.ID)
		c.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read error on %s: %v", c.ID, err)
			}
			return
		}

		if err := c.handleFrame(ctx, data); err != nil {
			log.Printf("closing connection %s: %v", c.ID, err)
			return
		}
	}
}

// handleFrame routes one inbound envelope. A non-nil return hard-disconnects.
func (c *Client) handleFrame(ctx context.Context, data []byte) error {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Unparseable frame from an authenticated peer is dropped; before
		// authentication it is treated like a bad auth payload.
		if c.hub.Session(c.ID) == nil {
			return fmt.Errorf("%w: malformed frame before authentication", errHardDisconnect)
		}
		log.Printf("dropped malformed frame on %s: %v", c.ID, err)
		return nil
	}

	msgCtx, span := middleware.StartSpan(ctx, "ws.HandleEvent",
		attribute.String("connection.id", c.ID),
		attribute.String("event.type", string(env.Type)),
	)
	defer span.End()

	switch env.Type {
	case models.EventAuthenticate:
		return c.handleAuthenticate(env.Payload)

	case models.EventJoinDocument:
		c.handleJoin(msgCtx, env.Payload)

	case models.EventLeaveDocument:
		var p models.LeaveDocumentPayload
		if !c.decode(env, &p) {
			return nil
		}
		c.hub.Leave(c.ID, p.DocumentID)

	case models.EventCursorUpdate:
		var p models.CursorUpdatePayload
		if !c.decode(env, &p) {
			return nil
		}
		c.hub.UpdateCursor(c.ID, &p)

	case models.EventDocumentChange:
		var p models.DocumentChangePayload
		if !c.decode(env, &p) {
			return nil
		}
		c.hub.RelayDocumentChange(c.ID, &p)

	case models.EventAddComment:
		var p models.AddCommentPayload
		if !c.decode(env, &p) {
			return nil
		}
		c.hub.RelayComment(c.ID, &p)

	case models.EventTyping:
		var p models.TypingPayload
		if !c.decode(env, &p) {
			return nil
		}
		c.hub.RelayTyping(c.ID, &p)

	default:
		log.Printf("dropped unknown event %q on %s", env.Type, c.ID)
	}
	return nil
}

func (c *Client) handleAuthenticate(raw json.RawMessage) error {
	var p models.AuthenticatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: malformed authenticate payload", errHardDisconnect)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errHardDisconnect, err)
	}
	if err := c.hub.Authenticate(c.ID, p.UserID, p.UserName); err != nil {
		return fmt.Errorf("%w: %v", errHardDisconnect, err)
	}
	return nil
}

func (c *Client) handleJoin(ctx context.Context, raw json.RawMessage) {
	var p models.JoinDocumentPayload
	var env = models.Envelope{Type: models.EventJoinDocument, Payload: raw}
	if !c.decode(env, &p) {
		return
	}
	err := c.hub.Join(ctx, c.ID, p.DocumentID)
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		c.sendAuthError("Please authenticate first.")
	case errors.Is(err, ErrAccessDenied):
		c.sendAuthError("You do not have access to this document.")
	}
}

// decode unmarshals and validates a payload. Malformed or invalid payloads are
// rejected at the boundary and dropped; the connection stays alive.
func (c *Client) decode(env models.Envelope, p interface{ Validate() error }) bool {
	if err := json.Unmarshal(env.Payload, p); err != nil {
		log.Printf("dropped malformed %s payload on %s: %v", env.Type, c.ID, err)
		return false
	}
	if err := p.Validate(); err != nil {
		log.Printf("dropped invalid %s payload on %s: %v", env.Type, c.ID, err)
		return false
	}
	return true
}

func (c *Client) sendAuthError(message string) {
	c.Send(models.Event{
		Type:    models.EventAuthError,
		Payload: models.AuthErrorPayload{Message: message},
	})
}

// WritePump drains the send channel onto the socket and keeps the peer alive
// with periodic pings.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

			// Drain whatever else is already queued.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
