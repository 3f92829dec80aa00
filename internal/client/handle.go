package client

import (
	"encoding/json"
	"time"

	"github.com/kw-96/AutoKit-sub000/internal/constants"
	relayerrors "github.com/kw-96/AutoKit-sub000/internal/errors"
	"github.com/kw-96/AutoKit-sub000/internal/models"
	"github.com/kw-96/AutoKit-sub000/pkg/transport"
)

func (c *Client) handleFrame(conn transport.Conn, data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn().Err(err).Msg("Discarding malformed frame from relay")
		return
	}

	switch env.Type {
	case constants.MessageTypePing:
		c.replyPong(conn)
	case constants.MessageTypePong:
	case constants.MessageTypeSystem:
		c.handleSystem(env)
	case constants.MessageTypeError:
		c.handleErrorNotice(env)
	case constants.MessageTypeProgress:
		c.handleProgress(env)
	case constants.MessageTypeBroadcast, constants.MessageTypeMessage:
		c.handleBroadcast(env)
	default:
		c.logger.Debug().Str("type", string(env.Type)).Msg("Ignoring frame of unknown type")
	}
}

func (c *Client) replyPong(conn transport.Conn) {
	data, err := json.Marshal(models.Envelope{Type: constants.MessageTypePong, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to answer liveness probe")
	}
}

// handleSystem covers the welcome notice, join acknowledgements and peer
// notices.
func (c *Client) handleSystem(env models.Envelope) {
	if env.ClientID != "" && env.Version != "" {
		c.mu.Lock()
		c.clientID = env.ClientID
		c.relayVersion = env.Version
		c.mu.Unlock()
		c.checkVersion(env.Version)
		c.logger.Info().Str("client_id", env.ClientID).Str("version", env.Version).Msg("Relay welcomed connection")
		return
	}

	if msg, ok := models.DecodeChannelMessage(env.Message); ok && msg.ID != "" {
		if env.ClientID != "" {
			c.mu.Lock()
			c.clientID = env.ClientID
			c.mu.Unlock()
		}
		if c.settle(msg) {
			return
		}
	}

	var notice string
	_ = json.Unmarshal(env.Message, &notice)
	c.logger.Debug().Str("channel", env.Channel).Str("notice", notice).Msg("Relay notice")
}

// handleErrorNotice fails the request named by the notice, if any, so the
// caller does not wait for a timeout.
func (c *Client) handleErrorNotice(env models.Envelope) {
	var notice string
	if err := json.Unmarshal(env.Message, &notice); err != nil {
		notice = string(env.Message)
	}
	if env.ID != "" {
		if p, ok := c.pending.Pop(env.ID); ok {
			p.settle(outcome{err: relayerrors.New(relayerrors.Protocol, notice)})
			return
		}
	}
	c.logger.Warn().Str("notice", notice).Str("request_id", env.ID).Msg("Relay reported an error")
}

// handleProgress extends the inactivity window of the matching request.
// Progress never settles a request.
func (c *Client) handleProgress(env models.Envelope) {
	var pm models.ProgressMessage
	if err := json.Unmarshal(env.Message, &pm); err != nil {
		c.logger.Warn().Err(err).Msg("Discarding malformed progress update")
		return
	}
	id := env.ID
	if id == "" {
		id = pm.ID
	}
	if id == "" {
		id = pm.Data.CommandID
	}

	p, ok := c.pending.Get(id)
	if !ok {
		c.logger.Debug().Str("request_id", id).Str("status", pm.Data.Status).Msg("Unsolicited progress update")
		return
	}
	p.touch(c.cfg.ProgressWindow)

	pm.Data.Progress = float64(p.progress(pm.Data.Progress))
	c.logger.Debug().Str("request_id", id).Str("status", pm.Data.Status).
		Float64("progress", pm.Data.Progress).Msg("Progress update")
	if p.onProgress != nil {
		p.onProgress(pm.Data)
	}
}

func (c *Client) handleBroadcast(env models.Envelope) {
	msg, ok := models.DecodeChannelMessage(env.Message)
	if ok && msg.IsTerminal() {
		if c.settle(msg) {
			return
		}
		c.logger.Debug().Str("request_id", msg.ID).Msg("Unsolicited terminal reply, request already settled")
	}

	c.mu.Lock()
	handler := c.onBroadcast
	c.mu.Unlock()
	if handler != nil {
		handler(env)
	}
}

// settle resolves the pending request named by msg. It reports false when no
// such request is pending.
func (c *Client) settle(msg models.ChannelMessage) bool {
	p, ok := c.pending.Pop(msg.ID)
	if !ok {
		return false
	}
	if len(msg.Error) > 0 {
		p.settle(outcome{err: relayerrors.New(relayerrors.Domain, msg.ErrorText())})
	} else {
		p.settle(outcome{result: msg.Result})
	}
	c.logger.Debug().Str("request_id", msg.ID).Str("command", p.command).Msg("Request settled")
	return true
}
