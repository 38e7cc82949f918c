package hub

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize allows browser-pushed JPEG frames.
	maxMessageSize = 2 * 1024 * 1024
)

// InboundFunc handles a message read from a client.
type InboundFunc func(clientID string, msgType int, data []byte)

// Client is a single websocket connection.
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan Message
	greeting []Message
	inbound  InboundFunc
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithGreeting queues msgs for the client ahead of any broadcast.
func WithGreeting(msgs ...Message) ClientOption {
	return func(c *Client) {
		c.greeting = append(c.greeting, msgs...)
	}
}

// WithInbound routes messages read from the client to fn.
func WithInbound(fn InboundFunc) ClientOption {
	return func(c *Client) {
		c.inbound = fn
	}
}

// Serve registers conn with the hub and pumps messages until the
// connection closes. It is meant to be the body of a websocket handler.
func (h *Hub) Serve(conn *websocket.Conn, opts ...ClientOption) {
	c := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan Message, 256),
	}
	for _, opt := range opts {
		opt(c)
	}

	select {
	case h.register <- c:
	case <-h.stopped:
		_ = conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}

// ID returns the client's identifier.
func (c *Client) ID() string {
	return c.id
}

// readPump reads until the connection fails. Reading is also what keeps
// pong handling and disconnect detection working.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if c.inbound != nil {
			c.inbound(c.id, msgType, data)
		}
	}
}

// writePump is the only goroutine that writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			wsType := websocket.TextMessage
			if message.Type == BinaryMessage {
				wsType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(wsType, message.Data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
