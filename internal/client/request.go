package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kw-96/AutoKit-sub000/internal/constants"
	relayerrors "github.com/kw-96/AutoKit-sub000/internal/errors"
	"github.com/kw-96/AutoKit-sub000/internal/models"
)

type outcome struct {
	result json.RawMessage
	err    error
}

// pendingRequest is removed from the table exactly once, by whichever of
// terminal reply, timeout, cancellation or connection loss pops it first.
type pendingRequest struct {
	id         string
	command    string
	timer      *time.Timer
	done       chan outcome
	onProgress func(models.ProgressData)

	mu           sync.Mutex
	lastActivity time.Time
	lastProgress int
	fractional   bool // the agent reports progress on the 0-1 scale
}

func (p *pendingRequest) settle(o outcome) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.done <- o
}

func (p *pendingRequest) touch(window time.Duration) {
	p.mu.Lock()
	p.lastActivity = time.Now()
	p.mu.Unlock()
	p.timer.Reset(window)
}

// progress maps a reported value onto the 0-100 scale without ever moving
// backwards. Once a request has reported a fraction, 1 means done.
func (p *pendingRequest) progress(value float64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if value > 0 && value < 1 {
		p.fractional = true
	}
	if p.fractional && value == 1 {
		value = constants.ProgressMax
	}
	n := models.NormalizeProgress(value)
	if n < p.lastProgress {
		n = p.lastProgress
	}
	p.lastProgress = n
	return n
}

func (p *pendingRequest) idle() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.lastActivity)
}

type issueOptions struct {
	timeout    time.Duration
	onProgress func(models.ProgressData)
}

// IssueOption customises a single request.
type IssueOption func(*issueOptions)

// WithTimeout overrides the initial timeout of one request.
func WithTimeout(d time.Duration) IssueOption {
	return func(o *issueOptions) { o.timeout = d }
}

// WithProgress receives every progress update for the request, with Progress
// normalized to 0-100.
func WithProgress(fn func(models.ProgressData)) IssueOption {
	return func(o *issueOptions) { o.onProgress = fn }
}

// Issue sends command to the joined channel and blocks until its terminal
// reply, a timeout, ctx cancellation or connection loss. A remote failure is
// returned as a domain error.
func (c *Client) Issue(ctx context.Context, command string, params any, opts ...IssueOption) (json.RawMessage, error) {
	if command == constants.CommandJoin {
		var channel string
		if err := decodeParam(params, &channel); err != nil {
			return nil, relayerrors.Wrap(relayerrors.Protocol, "join expects a channel name", err)
		}
		if err := c.Join(ctx, channel); err != nil {
			return nil, err
		}
		return json.RawMessage(fmt.Sprintf("%q", constants.NoticeJoined+channel)), nil
	}

	c.mu.Lock()
	connected := c.conn != nil
	channel := c.channel
	c.mu.Unlock()

	if !connected {
		c.triggerConnect()
		return nil, relayerrors.New(relayerrors.Transport, "not connected to relay, retrying")
	}
	if channel == "" {
		return nil, relayerrors.New(relayerrors.Protocol, "must join a channel before sending commands")
	}

	var rawParams json.RawMessage
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, relayerrors.Wrap(relayerrors.Protocol, "failed to encode params", err)
		}
		rawParams = raw
	} else {
		rawParams = json.RawMessage(`{}`)
	}

	id := uuid.NewString()
	payload, err := json.Marshal(models.ChannelMessage{ID: id, Command: command, Params: rawParams})
	if err != nil {
		return nil, relayerrors.Wrap(relayerrors.Protocol, "failed to encode command", err)
	}
	env := models.Envelope{
		Type:    constants.MessageTypeMessage,
		ID:      id,
		Channel: channel,
		Message: payload,
	}
	return c.request(ctx, env, command, opts)
}

// Join enters channel and waits for the relay's acknowledgement. The channel
// is remembered and rejoined automatically after a reconnect.
func (c *Client) Join(ctx context.Context, channel string) error {
	if channel == "" {
		return relayerrors.New(relayerrors.Protocol, "channel name is required")
	}
	c.mu.Lock()
	connected := c.conn != nil
	c.mu.Unlock()
	if !connected {
		c.mu.Lock()
		c.lastChannel = channel
		c.mu.Unlock()
		c.triggerConnect()
		return relayerrors.New(relayerrors.Transport, "not connected to relay, retrying")
	}

	env := models.Envelope{
		Type:    constants.MessageTypeJoin,
		ID:      uuid.NewString(),
		Channel: channel,
	}
	if _, err := c.request(ctx, env, constants.CommandJoin, nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.channel = channel
	c.lastChannel = channel
	c.mu.Unlock()
	c.logger.Info().Str("channel", channel).Msg("Joined channel")
	return nil
}

func (c *Client) request(ctx context.Context, env models.Envelope, command string, opts []IssueOption) (json.RawMessage, error) {
	o := issueOptions{timeout: c.timeoutFor(command)}
	for _, opt := range opts {
		opt(&o)
	}

	p := &pendingRequest{
		id:           env.ID,
		command:      command,
		done:         make(chan outcome, 1),
		onProgress:   o.onProgress,
		lastActivity: time.Now(),
	}
	timeout := o.timeout
	p.timer = time.AfterFunc(timeout, func() { c.expire(env.ID, timeout) })
	c.pending.Set(env.ID, p)

	if err := c.Send(env); err != nil {
		if popped, ok := c.pending.Pop(env.ID); ok {
			popped.timer.Stop()
		}
		return nil, err
	}
	c.logger.Debug().Str("request_id", env.ID).Str("command", command).Dur("timeout", timeout).Msg("Request sent")

	select {
	case res := <-p.done:
		return res.result, res.err
	case <-ctx.Done():
		if popped, ok := c.pending.Pop(env.ID); ok {
			popped.timer.Stop()
			return nil, relayerrors.Wrap(relayerrors.Timeout, "request cancelled", ctx.Err())
		}
		res := <-p.done
		return res.result, res.err
	}
}

func (c *Client) expire(id string, timeout time.Duration) {
	p, ok := c.pending.Pop(id)
	if !ok {
		return
	}
	c.logger.Warn().Str("request_id", id).Str("command", p.command).Dur("idle", p.idle()).Msg("Request timed out")
	p.done <- outcome{err: relayerrors.New(relayerrors.Timeout,
		fmt.Sprintf("request %s (%s) timed out after %s", id, p.command, timeout))}
}

func (c *Client) timeoutFor(command string) time.Duration {
	if _, ok := c.longRunning[command]; ok {
		return c.cfg.LongCommandTimeout
	}
	return c.cfg.CommandTimeout
}

func decodeParam(params any, out *string) error {
	switch v := params.(type) {
	case string:
		*out = v
		return nil
	case json.RawMessage:
		return json.Unmarshal(v, out)
	default:
		var wrapper struct {
			Channel string `json:"channel"`
		}
		raw, err := json.Marshal(params)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return err
		}
		*out = wrapper.Channel
		return nil
	}
}
