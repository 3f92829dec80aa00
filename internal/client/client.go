// Package client turns the relay's fire-and-forget broadcast into blocking
// request/response calls. A Client owns one relay connection, remembers the
// channel it joined, correlates terminal replies to pending requests and
// reconnects with capped exponential backoff.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/kw-96/AutoKit-sub000/internal/constants"
	relayerrors "github.com/kw-96/AutoKit-sub000/internal/errors"
	"github.com/kw-96/AutoKit-sub000/internal/models"
	"github.com/kw-96/AutoKit-sub000/internal/utils"
	"github.com/kw-96/AutoKit-sub000/pkg/transport"
)

// Config controls timeouts and reconnect behaviour. Zero values take the
// package defaults from internal/constants.
type Config struct {
	URL                  string
	CommandTimeout       time.Duration
	LongCommandTimeout   time.Duration
	ProgressWindow       time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectMaxAttempts int
	LongRunningCommands  []string
}

// BroadcastHandler receives broadcasts that did not settle a pending request.
type BroadcastHandler func(env models.Envelope)

// Client is safe for concurrent use.
type Client struct {
	cfg         Config
	dialer      transport.Dialer
	logger      zerolog.Logger
	longRunning map[string]struct{}
	constraint  *semver.Constraints

	pending cmap.ConcurrentMap[string, *pendingRequest]

	mu             sync.Mutex
	conn           transport.Conn
	connecting     bool
	closed         bool
	channel        string // channel the current connection has joined
	lastChannel    string // channel to rejoin after reconnect
	clientID       string
	relayVersion   string
	attempts       int
	reconnectTimer *time.Timer
	onBroadcast    BroadcastHandler

	wg sync.WaitGroup
}

// New creates a disconnected client.
func New(cfg Config, dialer transport.Dialer, logger zerolog.Logger) *Client {
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = constants.DefaultCommandTimeout
	}
	if cfg.LongCommandTimeout == 0 {
		cfg.LongCommandTimeout = constants.DefaultLongCommandTimeout
	}
	if cfg.LongCommandTimeout < 2*cfg.CommandTimeout {
		cfg.LongCommandTimeout = 2 * cfg.CommandTimeout
	}
	if cfg.ProgressWindow == 0 {
		cfg.ProgressWindow = constants.DefaultProgressWindow
	}
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = constants.DefaultReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay == 0 {
		cfg.ReconnectMaxDelay = constants.DefaultReconnectMaxDelay
	}
	if cfg.ReconnectMaxAttempts == 0 {
		cfg.ReconnectMaxAttempts = constants.DefaultReconnectMaxAttempts
	}
	if cfg.LongRunningCommands == nil {
		cfg.LongRunningCommands = constants.LongRunningCommands
	}

	constraint, err := semver.NewConstraint(constants.SupportedProtocol)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid supported protocol constraint")
	}

	return &Client{
		cfg:         cfg,
		dialer:      dialer,
		logger:      logger,
		longRunning: utils.SliceToSet(cfg.LongRunningCommands),
		constraint:  constraint,
		pending:     cmap.New[*pendingRequest](),
	}
}

// OnBroadcast registers the handler for unsolicited broadcasts, such as
// commands addressed to an execution agent. Set it before Connect.
func (c *Client) OnBroadcast(fn BroadcastHandler) {
	c.mu.Lock()
	c.onBroadcast = fn
	c.mu.Unlock()
}

// Connect dials the relay. It does not retry; failed dials are returned.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return relayerrors.New(relayerrors.Transport, "client is closed")
	}
	c.attempts = 0
	c.mu.Unlock()
	return c.dial(ctx)
}

// Close rejects pending requests, stops reconnecting and closes the
// connection with a normal closure.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.wg.Wait()
	c.rejectAll(relayerrors.New(relayerrors.Transport, "client closed"))
	return err
}

// IsConnected reports whether a relay connection is established.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Channel returns the channel joined on the current connection, if any.
func (c *Client) Channel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// ClientID returns the id the relay assigned to the current connection.
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// RelayVersion returns the protocol version the relay advertised in its
// welcome notice, or "" before the first welcome.
func (c *Client) RelayVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relayVersion
}

// PendingCount returns the number of requests awaiting a terminal reply.
func (c *Client) PendingCount() int {
	return c.pending.Count()
}

// Send writes a raw envelope on the current connection. An empty channel is
// filled with the joined channel.
func (c *Client) Send(env models.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	if env.Channel == "" {
		env.Channel = c.channel
	}
	c.mu.Unlock()

	if conn == nil {
		return relayerrors.New(relayerrors.Transport, "not connected to relay")
	}
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return relayerrors.Wrap(relayerrors.Protocol, "failed to encode envelope", err)
	}
	if err := conn.WriteMessage(data); err != nil {
		return relayerrors.Wrap(relayerrors.Transport, "failed to send envelope", err)
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil || c.connecting {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.mu.Unlock()

	c.logger.Info().Str("url", c.cfg.URL).Msg("Connecting to relay")
	conn, err := c.dialer.Dial(ctx, c.cfg.URL)

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn().Err(err).Str("url", c.cfg.URL).Msg("Failed to connect to relay")
		return relayerrors.Wrap(relayerrors.Transport, "failed to connect to relay", err)
	}
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return relayerrors.New(relayerrors.Transport, "client is closed")
	}
	c.conn = conn
	c.attempts = 0
	rejoin := c.lastChannel
	c.wg.Add(1)
	c.mu.Unlock()

	go c.readLoop(conn)
	c.logger.Info().Str("url", c.cfg.URL).Msg("Connected to relay")

	if rejoin != "" {
		go c.replayJoin(rejoin)
	}
	return nil
}

func (c *Client) replayJoin(channel string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommandTimeout)
	defer cancel()
	if err := c.Join(ctx, channel); err != nil {
		c.logger.Warn().Err(err).Str("channel", channel).Msg("Failed to rejoin channel after reconnect")
		return
	}
	c.logger.Info().Str("channel", channel).Msg("Rejoined channel after reconnect")
}

func (c *Client) readLoop(conn transport.Conn) {
	defer c.wg.Done()
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.handleFrame(conn, data)
	}
}

// handleClose fails every pending request and, unless the close was
// requested or clean, schedules a reconnect.
func (c *Client) handleClose(conn transport.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.channel = ""
	c.clientID = ""
	closed := c.closed
	c.mu.Unlock()

	_ = conn.Terminate()
	c.rejectAll(relayerrors.Wrap(relayerrors.Transport, "connection closed", err))

	if closed || transport.IsNormalClose(err) {
		c.logger.Info().Msg("Relay connection closed")
		return
	}
	c.logger.Warn().Err(err).Msg("Relay connection lost")
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn != nil || c.reconnectTimer != nil {
		return
	}
	if c.attempts >= c.cfg.ReconnectMaxAttempts {
		c.logger.Error().Int("attempts", c.attempts).Msg("Giving up reconnecting until the next request")
		return
	}
	delay := utils.ExponentialBackoff(c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay, c.attempts)
	c.attempts++
	c.logger.Info().Int("attempt", c.attempts).Dur("delay", delay).Msg("Scheduling reconnect")
	c.reconnectTimer = time.AfterFunc(delay, c.reconnect)
}

func (c *Client) reconnect() {
	c.mu.Lock()
	c.reconnectTimer = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommandTimeout)
	defer cancel()
	if err := c.dial(ctx); err != nil {
		c.scheduleReconnect()
	}
}

// triggerConnect starts a fresh round of connection attempts in the
// background. It resets the attempt budget.
func (c *Client) triggerConnect() {
	c.mu.Lock()
	if c.closed || c.conn != nil || c.connecting || c.reconnectTimer != nil {
		c.mu.Unlock()
		return
	}
	c.attempts = 0
	c.mu.Unlock()

	go c.reconnect()
}

func (c *Client) rejectAll(err error) {
	for _, id := range c.pending.Keys() {
		if p, ok := c.pending.Pop(id); ok {
			p.settle(outcome{err: err})
		}
	}
}

func (c *Client) checkVersion(version string) {
	if c.constraint == nil {
		return
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		c.logger.Warn().Str("version", version).Msg("Relay sent an unparseable protocol version")
		return
	}
	if !c.constraint.Check(v) {
		c.logger.Warn().Str("version", version).Str("supported", constants.SupportedProtocol).
			Msg("Relay protocol version is not supported, continuing anyway")
	}
}
