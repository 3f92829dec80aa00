// Package mirror republishes execution-agent progress and command outcomes to
// an MQTT broker so dashboards can follow long-running batches without
// joining a relay channel.
package mirror

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/kw-96/AutoKit-sub000/internal/models"
)

const publishTimeout = 5 * time.Second

// Publisher is the part of pkg/mqtt the mirror needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Config selects the topic prefix and delivery options.
type Config struct {
	Topic    string // Prefix, e.g. "designrelay"
	QOS      byte
	Retained bool
}

// Mirror publishes to <topic>/<channel>/<command>/progress and
// <topic>/<channel>/<command>/result.
type Mirror struct {
	publisher Publisher
	cfg       Config
	logger    zerolog.Logger
}

// New creates a mirror on top of an initialized MQTT client.
func New(publisher Publisher, cfg Config, logger zerolog.Logger) *Mirror {
	if cfg.Topic == "" {
		cfg.Topic = "designrelay"
	}
	return &Mirror{publisher: publisher, cfg: cfg, logger: logger}
}

// OnProgress publishes one progress update.
func (m *Mirror) OnProgress(channel string, data models.ProgressData) {
	m.publish(m.topic(channel, data.CommandType, "progress"), data)
}

// OnOutcome publishes the outcome of a finished command.
func (m *Mirror) OnOutcome(outcome models.CommandOutcome) {
	m.publish(m.topic(outcome.Channel, outcome.Command, "result"), outcome)
}

func (m *Mirror) topic(channel, command, kind string) string {
	return fmt.Sprintf("%s/%s/%s/%s", m.cfg.Topic, sanitize(channel), sanitize(command), kind)
}

func (m *Mirror) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		m.logger.Error().Err(err).Str("topic", topic).Msg("Failed to marshal mirror payload")
		return
	}

	token := m.publisher.Publish(topic, m.cfg.QOS, m.cfg.Retained, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			m.logger.Warn().Str("topic", topic).Msg("Timed out publishing to mirror")
			return
		}
		if err := token.Error(); err != nil {
			m.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to publish to mirror")
		}
	}()
}

// sanitize keeps topic levels free of MQTT wildcards and separators.
func sanitize(level string) string {
	if level == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(level)
}
