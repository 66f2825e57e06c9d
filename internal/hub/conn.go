package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size. Attachments travel via presigned URLs, so
	// frames stay small.
	maxMessageSize = 16 * 1024

	// Outbound queue depth per connection.
	sendBuffer = 256
)

// ErrSlowConsumer reports a peer whose outbound queue is full or whose
// connection is already closed. The registry treats it as a disconnect.
var ErrSlowConsumer = errors.New("connection send queue full or closed")

// Conn wraps a WebSocket connection with a buffered outbound queue. The
// write pump is the sole writer on the underlying socket.
type Conn struct {
	id          uuid.UUID
	userID      string
	ws          *websocket.Conn
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	connectedAt time.Time
}

// NewConn wraps an accepted WebSocket for a user.
func NewConn(userID string, ws *websocket.Conn) *Conn {
	return &Conn{
		id:          uuid.New(),
		userID:      userID,
		ws:          ws,
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
}

// ID returns the connection identifier.
func (c *Conn) ID() uuid.UUID { return c.id }

// UserID returns the owning user.
func (c *Conn) UserID() string { return c.userID }

// ConnectedAt returns when the connection was registered.
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

// Send enqueues a payload for the write pump. It never blocks: a full queue
// means the peer is too slow and the connection is reported dead.
func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrSlowConsumer
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close shuts the connection down. Idempotent; in-flight queued sends are
// abandoned.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// WritePump drains the outbound queue onto the socket and keeps the
// connection alive with pings. It runs in its own goroutine and owns all
// writes; it exits on Close or write failure.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// ReadPump reads inbound frames and hands them to handle until the peer
// disconnects or Close is called.
func (c *Conn) ReadPump(handle func(payload []byte)) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		handle(payload)
	}
}
