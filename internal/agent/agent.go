// Package agent executes commands received over a relay channel and answers
// each with progress updates and exactly one terminal reply.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kw-96/AutoKit-sub000/internal/batch"
	"github.com/kw-96/AutoKit-sub000/internal/constants"
	"github.com/kw-96/AutoKit-sub000/internal/models"
	"github.com/kw-96/AutoKit-sub000/internal/registry"
	"github.com/kw-96/AutoKit-sub000/internal/utils"
)

// Sender delivers envelopes to the relay. client.Client implements it.
type Sender interface {
	Send(env models.Envelope) error
}

// Observer is notified of progress and outcomes, e.g. the MQTT mirror.
type Observer interface {
	OnProgress(channel string, data models.ProgressData)
	OnOutcome(outcome models.CommandOutcome)
}

// Journal records in-flight batches.
type Journal interface {
	Update(state models.BatchState) error
}

// Config controls batching and command concurrency.
type Config struct {
	ChunkSize             int
	ChunkDelay            time.Duration
	MaxConcurrentCommands int
	QueueSize             int
}

// Agent dispatches command envelopes to the command table.
type Agent struct {
	cfg       Config
	commands  *registry.Commands
	sender    Sender
	logger    zerolog.Logger
	pool      *utils.WorkerPool
	observers []Observer
	journal   Journal

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// Option customises an Agent.
type Option func(*Agent)

// WithObserver adds a progress observer.
func WithObserver(o Observer) Option {
	return func(a *Agent) { a.observers = append(a.observers, o) }
}

// WithJournal records batch state in j.
func WithJournal(j Journal) Option {
	return func(a *Agent) { a.journal = j }
}

// New creates an agent with its own worker pool.
func New(cfg Config, commands *registry.Commands, sender Sender, logger zerolog.Logger, opts ...Option) *Agent {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = constants.DefaultChunkSize
	}
	if cfg.ChunkDelay == 0 {
		cfg.ChunkDelay = constants.DefaultChunkDelay
	}
	if cfg.ChunkDelay < 0 {
		cfg.ChunkDelay = 0
	}
	if cfg.MaxConcurrentCommands == 0 {
		cfg.MaxConcurrentCommands = constants.DefaultMaxConcurrentCommands
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = cfg.MaxConcurrentCommands * 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		cfg:      cfg,
		commands: commands,
		sender:   sender,
		logger:   logger,
		pool:     utils.NewWorkerPool(cfg.MaxConcurrentCommands, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// HandleBroadcast accepts relayed frames and queues command envelopes for
// execution. Anything that is not a command is ignored.
func (a *Agent) HandleBroadcast(env models.Envelope) {
	msg, ok := models.DecodeChannelMessage(env.Message)
	if !ok || !msg.IsCommand() {
		return
	}
	channel := env.Channel

	a.logger.Info().Str("request_id", msg.ID).Str("command", msg.Command).Str("sender", env.Sender).Msg("Command received")
	if !a.pool.TrySubmit(func() { a.Dispatch(a.ctx, channel, msg) }) {
		a.logger.Warn().Str("request_id", msg.ID).Str("command", msg.Command).Msg("Command queue full, rejecting")
		a.reply(channel, models.NewErrorMessage(msg.ID, "Agent is busy, try again later"))
	}
}

// Dispatch runs one command and sends its terminal reply. It always replies
// exactly once, including when the handler panics.
func (a *Agent) Dispatch(ctx context.Context, channel string, msg models.ChannelMessage) {
	start := time.Now()
	result, err := a.execute(ctx, channel, msg)

	outcome := models.CommandOutcome{
		RequestID:  msg.ID,
		Command:    msg.Command,
		Channel:    channel,
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
		FinishedAt: time.Now().UnixMilli(),
	}

	var reply models.ChannelMessage
	if err != nil {
		outcome.Error = err.Error()
		reply = models.NewErrorMessage(msg.ID, err.Error())
		a.logger.Warn().Err(err).Str("request_id", msg.ID).Str("command", msg.Command).Msg("Command failed")
	} else {
		reply, err = models.NewResultMessage(msg.ID, result)
		if err != nil {
			outcome.Success = false
			outcome.Error = err.Error()
			reply = models.NewErrorMessage(msg.ID, fmt.Sprintf("Failed to encode result: %v", err))
			a.logger.Error().Err(err).Str("request_id", msg.ID).Msg("Failed to encode result")
		} else {
			a.logger.Info().Str("request_id", msg.ID).Str("command", msg.Command).
				Int64("duration_ms", outcome.DurationMs).Msg("Command completed")
		}
	}

	a.reply(channel, reply)
	for _, o := range a.observers {
		o.OnOutcome(outcome)
	}
}

func (a *Agent) execute(ctx context.Context, channel string, msg models.ChannelMessage) (result any, err error) {
	handler, ok := a.commands.Lookup(msg.Command)
	if !ok {
		return nil, fmt.Errorf("Unknown command: %s", msg.Command)
	}

	r := &reporter{agent: a, channel: channel, requestID: msg.ID, command: msg.Command}
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error().Interface("panic", rec).Str("request_id", msg.ID).Str("command", msg.Command).Msg("Command handler panicked")
			r.Report(models.ProgressData{CommandID: msg.ID, CommandType: msg.Command, Status: constants.ProgressStatusError,
				Message: fmt.Sprintf("Internal error: %v", rec)})
			result, err = nil, fmt.Errorf("Internal error: %v", rec)
		}
	}()

	return handler(ctx, registry.Request{
		ID:       msg.ID,
		Command:  msg.Command,
		Params:   msg.Params,
		Reporter: r,
		Batch:    batch.Config{ChunkSize: a.cfg.ChunkSize, ChunkDelay: a.cfg.ChunkDelay},
	})
}

func (a *Agent) reply(channel string, msg models.ChannelMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		a.logger.Error().Err(err).Str("request_id", msg.ID).Msg("Failed to encode reply")
		return
	}
	env := models.Envelope{
		Type:    constants.MessageTypeMessage,
		ID:      msg.ID,
		Channel: channel,
		Message: payload,
	}
	if err := a.sender.Send(env); err != nil {
		a.logger.Error().Err(err).Str("request_id", msg.ID).Msg("Failed to send reply")
	}
}

// Shutdown stops accepting commands and waits for queued ones to reply.
// Batches still running skip their remaining items.
func (a *Agent) Shutdown() {
	a.once.Do(func() {
		a.cancel()
		a.pool.Shutdown()
	})
}

// reporter turns handler progress into progress_update envelopes.
type reporter struct {
	agent     *Agent
	channel   string
	requestID string
	command   string
}

func (r *reporter) Report(data models.ProgressData) {
	a := r.agent
	pm := models.ProgressMessage{ID: r.requestID, Type: constants.MessageTypeProgress, Data: data}
	payload, err := json.Marshal(pm)
	if err != nil {
		a.logger.Error().Err(err).Str("request_id", r.requestID).Msg("Failed to encode progress")
		return
	}
	env := models.Envelope{
		Type:    constants.MessageTypeProgress,
		ID:      r.requestID,
		Channel: r.channel,
		Message: payload,
	}
	if err := a.sender.Send(env); err != nil {
		a.logger.Warn().Err(err).Str("request_id", r.requestID).Msg("Failed to send progress")
	}

	for _, o := range a.observers {
		o.OnProgress(r.channel, data)
	}
	if a.journal != nil {
		state := models.BatchState{
			RequestID:      r.requestID,
			Command:        r.command,
			Channel:        r.channel,
			Status:         data.Status,
			TotalItems:     data.TotalItems,
			ProcessedItems: data.ProcessedItems,
			UpdatedAt:      time.Now().UTC(),
		}
		if err := a.journal.Update(state); err != nil {
			a.logger.Warn().Err(err).Str("request_id", r.requestID).Msg("Failed to update batch journal")
		}
	}
}
