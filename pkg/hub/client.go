package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	// writeWait is how long to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Dashboard clients only send control frames.
	maxMessageSize = 4 * 1024
)

// Client is a single dashboard WebSocket connection.
type Client struct {
	id    string
	addr  string
	since time.Time

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// ClientInfo describes a connected client.
type ClientInfo struct {
	ID        string    `json:"id"`
	Addr      string    `json:"addr"`
	Connected time.Time `json:"connected"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		id:    uuid.NewString()[:8],
		since: time.Now(),
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, clientBuffer),
	}
	if conn != nil && conn.Conn != nil {
		c.addr = conn.RemoteAddr().String()
	}
	return c
}

func (c *Client) info() ClientInfo {
	return ClientInfo{ID: c.id, Addr: c.addr, Connected: c.since}
}

// Serve registers conn with h and pumps messages until either side goes
// away. It blocks, so call it from the WebSocket handler.
func Serve(h *Hub, conn *websocket.Conn) error {
	c := newClient(h, conn)
	if err := h.join(c); err != nil {
		conn.Close()
		return err
	}

	go c.writePump()
	c.readPump()
	return nil
}

// readPump detects disconnection and handles pongs. Incoming data is
// ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
