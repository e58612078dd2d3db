package websocket

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait         = 10 * time.Second
	maxMessageSize    = 512
	defaultSendBuffer = 64
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	ID        string
	RequestID string
	Identity  Identity

	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, requestID string, id Identity, buffer int) *Client {
	if buffer < 0 {
		buffer = defaultSendBuffer
	}
	return &Client{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Identity:  id,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, buffer),
		closed:    make(chan struct{}),
	}
}

// enqueue hands a message to the write pump without blocking. It reports
// false when the client is gone or its buffer is full.
func (c *Client) enqueue(msg []byte) (ok bool) {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close stops the write pump. Safe to call more than once.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// readPump keeps the read side alive so pongs and close frames are seen.
// Subscribers never send data we act on.
func (c *Client) readPump(pongWait time.Duration) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WS", "Unexpected close", map[string]interface{}{
					"client_id":  c.ID,
					"request_id": c.RequestID,
					"error":      err.Error(),
				})
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection and
// sends a ping every heartbeat.
func (c *Client) writePump(heartbeat time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.Unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Info("WS", "Heartbeat failed, pruning client", map[string]interface{}{
					"client_id":  c.ID,
					"request_id": c.RequestID,
				})
				c.hub.Unregister(c)
				return
			}
		}
	}
}
