package agent

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/kw-96/AutoKit-sub000/internal/client"
)

const startTimeout = 15 * time.Second

// Service connects an Agent to the relay and keeps it in its channel.
type Service struct {
	client  *client.Client
	agent   *Agent
	channel string
	logger  zerolog.Logger
	running bool
}

// NewService binds agent to the relay connection held by c.
func NewService(c *client.Client, agent *Agent, channel string, logger zerolog.Logger) *Service {
	return &Service{client: c, agent: agent, channel: channel, logger: logger}
}

// Start connects to the relay and joins the channel. Later disconnects are
// handled by the client's reconnect loop, which also rejoins the channel.
func (s *Service) Start() error {
	if s.running {
		s.logger.Warn().Msg("Execution agent is already running")
		return errors.New("execution agent is already running")
	}
	if s.channel == "" {
		return errors.New("execution agent needs a channel")
	}

	s.client.OnBroadcast(s.agent.HandleBroadcast)

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := s.client.Connect(ctx); err != nil {
		return err
	}
	if err := s.client.Join(ctx, s.channel); err != nil {
		_ = s.client.Close()
		return err
	}

	s.running = true
	s.logger.Info().Str("channel", s.channel).Strs("commands", s.agent.commands.Names()).Msg("Execution agent started")
	return nil
}

// Stop lets running commands reply, then leaves the relay.
func (s *Service) Stop() error {
	if !s.running {
		s.logger.Warn().Msg("Execution agent is not running")
		return errors.New("execution agent is not running")
	}
	s.agent.Shutdown()
	err := s.client.Close()
	s.running = false
	s.logger.Info().Msg("Execution agent stopped")
	return err
}
