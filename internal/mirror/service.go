package mirror

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/kw-96/AutoKit-sub000/pkg/mqtt"
)

const disconnectQuiesceMs = 250

// Service owns the broker connection behind a Mirror.
type Service struct {
	client  *mqtt.MqttService
	opts    mqtt.Options
	logger  zerolog.Logger
	running bool
}

// NewService prepares a broker connection; nothing is dialed until Start.
func NewService(client *mqtt.MqttService, opts mqtt.Options, logger zerolog.Logger) *Service {
	return &Service{client: client, opts: opts, logger: logger}
}

// Start connects to the broker.
func (s *Service) Start() error {
	if s.running {
		s.logger.Warn().Msg("Progress mirror is already running")
		return errors.New("progress mirror is already running")
	}
	if err := s.client.Initialize(s.opts); err != nil {
		return err
	}
	s.running = true
	s.logger.Info().Str("broker", s.opts.Broker).Str("client_id", s.opts.ClientID).Msg("Progress mirror connected")
	return nil
}

// Stop disconnects from the broker.
func (s *Service) Stop() error {
	if !s.running {
		s.logger.Warn().Msg("Progress mirror is not running")
		return errors.New("progress mirror is not running")
	}
	s.client.Disconnect(disconnectQuiesceMs)
	s.running = false
	s.logger.Info().Msg("Progress mirror disconnected")
	return nil
}
