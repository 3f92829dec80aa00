package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kw-96/AutoKit-sub000/pkg/transport"
)

// Connection is one accepted transport, owned by the hub for its lifetime.
type Connection struct {
	ID string

	conn      transport.Conn
	send      chan []byte
	done      chan struct{}
	open      atomic.Bool
	closeOnce sync.Once

	// Guarded by Hub.mu
	alive    bool
	lastSeen time.Time
	channels map[string]struct{}
	removed  bool
}

// member is a connection's membership record in one channel.
type member struct {
	conn     *Connection
	joinedAt time.Time
}

func newConnection(id string, conn transport.Conn, bufferSize int, now time.Time) *Connection {
	c := &Connection{
		ID:       id,
		conn:     conn,
		send:     make(chan []byte, bufferSize),
		done:     make(chan struct{}),
		alive:    true,
		lastSeen: now,
		channels: make(map[string]struct{}),
	}
	c.open.Store(true)
	return c
}

// IsOpen reports whether frames can still be queued to the connection.
func (c *Connection) IsOpen() bool {
	return c.open.Load()
}

// enqueue queues a frame without blocking. It returns false when the
// connection is closed or its buffer is full.
func (c *Connection) enqueue(data []byte) bool {
	if !c.IsOpen() {
		return false
	}
	select {
	case <-c.done:
		return false
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writePump is the only writer of the underlying transport.
func (c *Connection) writePump(onError func(error)) {
	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(data); err != nil {
				onError(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// shutdown stops the write pump. terminate drops the transport without a
// closing handshake, which clients treat as an abnormal close.
func (c *Connection) shutdown(terminate bool) {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
		if terminate {
			_ = c.conn.Terminate()
		} else {
			_ = c.conn.Close()
		}
	})
}
