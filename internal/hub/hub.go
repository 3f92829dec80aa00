package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/kw-96/AutoKit-sub000/internal/constants"
	"github.com/kw-96/AutoKit-sub000/internal/models"
	"github.com/kw-96/AutoKit-sub000/pkg/transport"
)

// Config holds the relay's liveness and buffering settings.
type Config struct {
	ProbeInterval   time.Duration // Interval between liveness sweeps
	LivenessTimeout time.Duration // Hard limit on time since the last pong
	SendBufferSize  int           // Frames queued per connection before it is evicted as slow
	EchoToSender    bool          // Deliver each broadcast back to its sender tagged "You"
}

// Hub groups connections into channels and rebroadcasts channel traffic. It
// has no knowledge of command semantics.
type Hub struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	connections cmap.ConcurrentMap[string, *Connection]

	mu       sync.Mutex
	channels map[string]map[string]*member // channel name -> connection id -> membership

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// frame is an inbound frame before validation. Channel stays raw so that a
// non-string channel can be rejected with a notice.
type frame struct {
	Type    constants.MessageType `json:"type"`
	ID      string                `json:"id,omitempty"`
	Channel json.RawMessage       `json:"channel,omitempty"`
	Message json.RawMessage       `json:"message,omitempty"`
}

// NewHub creates a hub; zero config values fall back to the relay defaults.
func NewHub(cfg Config, logger zerolog.Logger) *Hub {
	if cfg.ProbeInterval == 0 {
		cfg.ProbeInterval = constants.DefaultProbeInterval
	}
	if cfg.LivenessTimeout == 0 {
		cfg.LivenessTimeout = constants.DefaultLivenessTimeout
	}
	if cfg.SendBufferSize == 0 {
		cfg.SendBufferSize = constants.DefaultSendBufferSize
	}
	return &Hub{
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		connections: cmap.New[*Connection](),
		channels:    make(map[string]map[string]*member),
	}
}

// Start launches the liveness sweep loop.
func (h *Hub) Start() error {
	if h.ctx != nil {
		h.logger.Warn().Msg("Relay hub is already running")
		return errors.New("relay hub is already running")
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runSweepLoop()
	}()

	h.logger.Info().Dur("probe_interval", h.cfg.ProbeInterval).Msg("Relay hub started")
	return nil
}

// Stop ends the sweep loop and drops every connection.
func (h *Hub) Stop() error {
	if h.ctx == nil {
		h.logger.Warn().Msg("Relay hub is not running")
		return errors.New("relay hub is not running")
	}
	h.cancel()
	h.wg.Wait()
	h.ctx = nil
	h.cancel = nil

	for _, c := range h.connections.Items() {
		h.evict(c, true)
	}
	h.logger.Info().Msg("Relay hub stopped")
	return nil
}

func (h *Hub) runSweepLoop() {
	ticker := time.NewTicker(h.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.Sweep()
		case <-h.ctx.Done():
			return
		}
	}
}

// Serve accepts conn and processes its frames until the transport closes.
func (h *Hub) Serve(conn transport.Conn) {
	c := h.Accept(conn)
	defer h.Disconnect(c)
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			h.logger.Debug().Err(err).Str("client_id", c.ID).Msg("Connection read ended")
			return
		}
		h.HandleMessage(c, data)
	}
}

// Accept registers conn, sends the welcome notice and the first liveness probe.
func (h *Hub) Accept(conn transport.Conn) *Connection {
	c := newConnection(uuid.NewString(), conn, h.cfg.SendBufferSize, h.now())
	h.connections.Set(c.ID, c)
	go c.writePump(func(err error) {
		h.logger.Warn().Err(err).Str("client_id", c.ID).Msg("Failed to write to connection")
		h.evict(c, true)
	})

	welcome := models.Envelope{
		Type:      constants.MessageTypeSystem,
		Message:   quote(constants.NoticeWelcome),
		ClientID:  c.ID,
		Version:   constants.ProtocolVersion,
		Timestamp: h.now().UnixMilli(),
	}
	h.sendTo(c, welcome)
	h.probe(c)

	h.logger.Info().Str("client_id", c.ID).Msg("New client connected")
	return c
}

// HandleMessage validates one inbound frame and routes it by type. Malformed
// frames produce an error notice to the sender only.
func (h *Hub) HandleMessage(c *Connection, data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		h.logger.Warn().Err(err).Str("client_id", c.ID).Msg("Received malformed frame")
		h.sendError(c, constants.NoticeInvalidFormat, "")
		return
	}

	switch f.Type {
	case constants.MessageTypeJoin:
		h.Join(c, f.Channel, f.ID)
	case constants.MessageTypeMessage, constants.MessageTypeProgress:
		h.Relay(c, f)
	case constants.MessageTypePong:
		h.Pong(c)
	case constants.MessageTypePing:
		h.sendTo(c, models.Envelope{Type: constants.MessageTypePong, Timestamp: h.now().UnixMilli()})
	default:
		h.sendError(c, constants.NoticeUnknownType+string(f.Type), f.ID)
	}
}

// Join adds c to the named channel, creating it if absent. A connection
// belongs to one channel at a time, so joining leaves any previous channel.
func (h *Hub) Join(c *Connection, rawChannel json.RawMessage, requestID string) {
	name, ok := channelName(rawChannel)
	if !ok {
		h.sendError(c, constants.NoticeChannelMissing, requestID)
		return
	}

	h.mu.Lock()
	left := h.leaveAllLocked(c, name)
	members, exists := h.channels[name]
	if !exists {
		members = make(map[string]*member)
		h.channels[name] = members
		h.logger.Info().Str("channel", name).Msg("Channel created")
	}
	_, already := members[c.ID]
	if !already {
		members[c.ID] = &member{conn: c, joinedAt: h.now()}
	}
	c.channels[name] = struct{}{}
	peers := othersLocked(members, c.ID)
	h.mu.Unlock()

	for ch, remaining := range left {
		h.notify(remaining, ch, constants.NoticePeerLeft)
	}

	ack, _ := json.Marshal(models.ChannelMessage{ID: requestID, Result: quote(constants.NoticeJoined + name)})
	h.sendTo(c, models.Envelope{
		Type:      constants.MessageTypeSystem,
		Message:   ack,
		Channel:   name,
		ClientID:  c.ID,
		Timestamp: h.now().UnixMilli(),
	})
	if !already {
		h.notify(peers, name, constants.NoticePeerJoined)
	}

	h.logger.Info().Str("client_id", c.ID).Str("channel", name).Int("peers", len(peers)).Msg("Client joined channel")
}

// Relay rebroadcasts a message or progress frame to every other open member
// of the channel. The sender must already be a member.
func (h *Hub) Relay(c *Connection, f frame) {
	name, ok := channelName(f.Channel)
	if !ok {
		h.sendError(c, constants.NoticeChannelMissing, f.ID)
		return
	}

	h.mu.Lock()
	members := h.channels[name]
	if _, isMember := members[c.ID]; !isMember {
		h.mu.Unlock()
		h.sendError(c, constants.NoticeNotMember, f.ID)
		return
	}
	recipients := othersLocked(members, c.ID)
	h.mu.Unlock()

	out := models.Envelope{
		Type:      constants.MessageTypeBroadcast,
		Message:   f.Message,
		Sender:    c.ID,
		Channel:   name,
		Timestamp: h.now().UnixMilli(),
	}
	if f.Type == constants.MessageTypeProgress {
		out.Type = constants.MessageTypeProgress
		out.ID = f.ID
	}

	data, err := json.Marshal(out)
	if err != nil {
		h.logger.Error().Err(err).Str("channel", name).Msg("Failed to encode broadcast")
		return
	}
	for _, r := range recipients {
		h.enqueue(r, data)
	}
	if h.cfg.EchoToSender {
		out.Sender = constants.SenderSelf
		h.sendTo(c, out)
	}

	h.logger.Debug().Str("client_id", c.ID).Str("channel", name).Str("type", string(f.Type)).
		Int("recipients", len(recipients)).Msg("Relayed frame")
}

// Pong marks c alive.
func (h *Hub) Pong(c *Connection) {
	h.mu.Lock()
	c.alive = true
	c.lastSeen = h.now()
	h.mu.Unlock()
}

// Disconnect removes c from every channel, notifies the remaining members and
// deletes channels left empty. Safe to call more than once.
func (h *Hub) Disconnect(c *Connection) {
	h.mu.Lock()
	if c.removed {
		h.mu.Unlock()
		return
	}
	c.removed = true
	left := h.leaveAllLocked(c, "")
	h.mu.Unlock()

	h.connections.Remove(c.ID)
	c.shutdown(false)

	for ch, remaining := range left {
		h.notify(remaining, ch, constants.NoticePeerLeft)
	}
	h.logger.Info().Str("client_id", c.ID).Msg("Client disconnected")
}

// Sweep probes every connection and evicts those that stopped answering.
func (h *Hub) Sweep() {
	now := h.now()
	for item := range h.connections.IterBuffered() {
		c := item.Val

		h.mu.Lock()
		idle := now.Sub(c.lastSeen)
		alive := c.alive
		if alive && idle <= h.cfg.LivenessTimeout {
			c.alive = false
		}
		h.mu.Unlock()

		switch {
		case idle > h.cfg.LivenessTimeout:
			h.logger.Warn().Str("client_id", c.ID).Dur("idle", idle).Msg("Connection timed out, closing")
			h.evict(c, true)
		case !alive:
			h.logger.Warn().Str("client_id", c.ID).Msg("Connection missed liveness probe, terminating")
			h.evict(c, true)
		default:
			h.probe(c)
		}
	}
}

// ChannelMembers returns the member ids of a channel.
func (h *Hub) ChannelMembers(name string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.channels[name]))
	for id := range h.channels[name] {
		ids = append(ids, id)
	}
	return ids
}

// ChannelCounts returns the member count of every live channel.
func (h *Hub) ChannelCounts() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	counts := make(map[string]int, len(h.channels))
	for name, members := range h.channels {
		counts[name] = len(members)
	}
	return counts
}

// ConnectionCount returns the number of accepted connections.
func (h *Hub) ConnectionCount() int {
	return h.connections.Count()
}

// leaveAllLocked drops c from every channel except keep and returns the
// remaining members of each channel it left. Empty channels are deleted.
func (h *Hub) leaveAllLocked(c *Connection, keep string) map[string][]*Connection {
	left := make(map[string][]*Connection)
	for name := range c.channels {
		if name == keep {
			continue
		}
		delete(c.channels, name)
		members := h.channels[name]
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.channels, name)
			h.logger.Info().Str("channel", name).Msg("Channel removed")
			continue
		}
		left[name] = othersLocked(members, c.ID)
	}
	return left
}

func othersLocked(members map[string]*member, self string) []*Connection {
	out := make([]*Connection, 0, len(members))
	for id, m := range members {
		if id == self || !m.conn.IsOpen() {
			continue
		}
		out = append(out, m.conn)
	}
	return out
}

func (h *Hub) evict(c *Connection, terminate bool) {
	c.shutdown(terminate)
	h.Disconnect(c)
}

func (h *Hub) probe(c *Connection) {
	h.sendTo(c, models.Envelope{Type: constants.MessageTypePing, Timestamp: h.now().UnixMilli()})
}

func (h *Hub) notify(conns []*Connection, channel, notice string) {
	if len(conns) == 0 {
		return
	}
	data, err := json.Marshal(models.Envelope{
		Type:      constants.MessageTypeSystem,
		Message:   quote(notice),
		Channel:   channel,
		Timestamp: h.now().UnixMilli(),
	})
	if err != nil {
		return
	}
	for _, c := range conns {
		h.enqueue(c, data)
	}
}

func (h *Hub) sendError(c *Connection, notice, requestID string) {
	h.sendTo(c, models.Envelope{
		Type:      constants.MessageTypeError,
		ID:        requestID,
		Message:   quote(notice),
		Timestamp: h.now().UnixMilli(),
	})
}

func (h *Hub) sendTo(c *Connection, env models.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error().Err(err).Str("client_id", c.ID).Msg("Failed to encode frame")
		return
	}
	h.enqueue(c, data)
}

// enqueue drops connections whose send buffer is full rather than blocking
// the rest of the channel behind them.
func (h *Hub) enqueue(c *Connection, data []byte) {
	if c.enqueue(data) || !c.IsOpen() {
		return
	}
	h.logger.Warn().Str("client_id", c.ID).Msg("Send buffer full, dropping slow connection")
	go h.evict(c, true)
}

func channelName(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil || name == "" {
		return "", false
	}
	return name, true
}

func quote(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}
