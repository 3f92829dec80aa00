package service_registry

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kw-96/AutoKit-sub000/internal/agent"
	"github.com/kw-96/AutoKit-sub000/internal/client"
	"github.com/kw-96/AutoKit-sub000/internal/hub"
	"github.com/kw-96/AutoKit-sub000/internal/metrics_collectors"
	"github.com/kw-96/AutoKit-sub000/internal/mirror"
	"github.com/kw-96/AutoKit-sub000/internal/registry"
	"github.com/kw-96/AutoKit-sub000/internal/state_managers"
	"github.com/kw-96/AutoKit-sub000/internal/utils"
	"github.com/kw-96/AutoKit-sub000/pkg/file"
	"github.com/kw-96/AutoKit-sub000/pkg/mqtt"
	"github.com/kw-96/AutoKit-sub000/pkg/transport"
)

// RegisterRelayServices registers the hub sweep loop and the HTTP listener,
// in that order.
func (sr *ServiceRegistry) RegisterRelayServices(config *utils.Config) *hub.Server {
	h := hub.NewHub(hub.Config{
		ProbeInterval:   config.Relay.ProbeInterval,
		LivenessTimeout: config.Relay.LivenessTimeout,
		SendBufferSize:  config.Relay.SendBufferSize,
		EchoToSender:    config.Relay.EchoToSender,
	}, sr.Logger.With().Str("component", "hub").Logger())

	var metrics *metrics_collectors.MetricsRegistry
	if config.Relay.Stats {
		metrics = metrics_collectors.NewDefaultRegistry(sr.Logger)
	}
	upgrader := transport.NewUpgrader(transport.Options{MaxMessageSize: config.Relay.MaxMessageSize})
	handler := hub.NewHandler(h, upgrader, metrics, sr.Logger.With().Str("component", "http").Logger())
	server := hub.NewServer(fmt.Sprintf(":%d", config.Relay.Port), handler, sr.Logger)

	sr.RegisterService("hub", h)
	sr.RegisterService("relay_server", server)
	return server
}

// NewClient builds a relay client from the client section of config.
func NewClient(config *utils.Config, logger zerolog.Logger) *client.Client {
	return client.New(client.Config{
		URL:                  config.Client.URL,
		CommandTimeout:       config.Client.CommandTimeout,
		LongCommandTimeout:   config.Client.LongCommandTimeout,
		ProgressWindow:       config.Client.ProgressWindow,
		ReconnectBaseDelay:   config.Client.ReconnectBaseDelay,
		ReconnectMaxDelay:    config.Client.ReconnectMaxDelay,
		ReconnectMaxAttempts: config.Client.ReconnectMaxAttempts,
	}, transport.NewWebsocketDialer(transport.Options{MaxMessageSize: config.Relay.MaxMessageSize}), logger)
}

// RegisterAgentServices registers the optional progress mirror followed by
// the execution agent serving commands on config.Agent.Channel.
func (sr *ServiceRegistry) RegisterAgentServices(config *utils.Config, commands *registry.Commands, fileClient file.FileOperations) error {
	if config.Agent.Channel == "" {
		return fmt.Errorf("agent channel is required")
	}

	var opts []agent.Option
	if config.Mirror.Enabled {
		mqttClient := mqtt.NewMqttService(fileClient)
		sr.RegisterService("mirror", mirror.NewService(mqttClient, mqtt.Options{
			Broker:         config.Mirror.Broker,
			ClientID:       config.Mirror.ClientID,
			CACertificate:  config.Mirror.CACertificate,
			ConnectTimeout: config.Mirror.ConnectTimeout,
		}, sr.Logger.With().Str("component", "mirror").Logger()))
		opts = append(opts, agent.WithObserver(mirror.New(mqttClient, mirror.Config{
			Topic:    config.Mirror.Topic,
			QOS:      byte(config.Mirror.QOS),
			Retained: config.Mirror.Retained,
		}, sr.Logger)))
	}

	if config.Agent.JournalFile != "" {
		journal := state_managers.NewBatchStateManager(config.Agent.JournalFile, sr.Logger)
		if pending, err := journal.LoadState(); err != nil {
			sr.Logger.Warn().Err(err).Str("file", config.Agent.JournalFile).Msg("Failed to read batch journal")
		} else {
			for id, state := range pending {
				sr.Logger.Warn().Str("request_id", id).Str("command", state.Command).
					Int("processed", state.ProcessedItems).Int("total", state.TotalItems).
					Msg("Batch was interrupted before completion")
			}
		}
		opts = append(opts, agent.WithJournal(journal))
	}

	logger := sr.Logger.With().Str("component", "agent").Logger()
	c := NewClient(config, logger)
	a := agent.New(agent.Config{
		ChunkSize:             config.Agent.ChunkSize,
		ChunkDelay:            config.Agent.ChunkDelay,
		MaxConcurrentCommands: config.Agent.MaxConcurrentCommands,
		QueueSize:             config.Agent.QueueSize,
	}, commands, c, logger, opts...)

	sr.RegisterService("agent", agent.NewService(c, a, config.Agent.Channel, logger))
	return nil
}
