package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a duplex, message-oriented connection.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	// Close shuts the connection down with a normal-closure handshake.
	Close() error
	// Terminate drops the connection without a closing handshake, which peers
	// observe as an abnormal close.
	Terminate() error
}

// Dialer opens client connections to the relay.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Options tunes websocket connections on both sides.
type Options struct {
	ReadBufferSize   int
	WriteBufferSize  int
	MaxMessageSize   int64
	WriteWait        time.Duration
	HandshakeTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadBufferSize == 0 {
		o.ReadBufferSize = 1024
	}
	if o.WriteBufferSize == 0 {
		o.WriteBufferSize = 1024
	}
	if o.WriteWait == 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	return o
}

// WebsocketConn adapts a gorilla connection to Conn. Writes are serialized
// because gorilla allows only one concurrent writer.
type WebsocketConn struct {
	conn      *websocket.Conn
	writeWait time.Duration
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWebsocketConn(conn *websocket.Conn, opts Options) *WebsocketConn {
	if opts.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.MaxMessageSize)
	}
	return &WebsocketConn{conn: conn, writeWait: opts.WriteWait}
}

// ReadMessage blocks until the next text or binary frame arrives.
func (c *WebsocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// WriteMessage sends one text frame.
func (c *WebsocketConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal-closure frame and closes the socket. Safe to call twice.
func (c *WebsocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// Terminate closes the socket without sending a close frame.
func (c *WebsocketConn) Terminate() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Upgrader turns HTTP requests into relay connections.
type Upgrader struct {
	upgrader websocket.Upgrader
	opts     Options
}

// NewUpgrader accepts connections from any origin; the relay is meant to be
// reached from a sandboxed plugin whose origin is opaque.
func NewUpgrader(opts Options) *Upgrader {
	opts = opts.withDefaults()
	return &Upgrader{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  opts.ReadBufferSize,
			WriteBufferSize: opts.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		opts: opts,
	}
}

// Upgrade completes the websocket handshake.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (Conn, error) {
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newWebsocketConn(conn, u.opts), nil
}

// WebsocketDialer dials relay URLs such as ws://localhost:3055.
type WebsocketDialer struct {
	dialer websocket.Dialer
	opts   Options
}

// NewWebsocketDialer creates a dialer with the given options.
func NewWebsocketDialer(opts Options) *WebsocketDialer {
	opts = opts.withDefaults()
	return &WebsocketDialer{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
			ReadBufferSize:   opts.ReadBufferSize,
			WriteBufferSize:  opts.WriteBufferSize,
		},
		opts: opts,
	}
}

// Dial opens a connection to url.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s (status %d): %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return newWebsocketConn(conn, d.opts), nil
}

// IsNormalClose reports whether err is a clean close initiated by the peer.
// Any other read error counts as an abnormal close.
func IsNormalClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure
	}
	return false
}
