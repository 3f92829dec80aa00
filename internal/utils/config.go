package utils

import (
	"fmt"
	"time"

	"github.com/kw-96/AutoKit-sub000/internal/constants"
	"github.com/kw-96/AutoKit-sub000/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	Relay struct {
		Port            int           `yaml:"port"`             // TCP port the relay listens on
		ProbeInterval   time.Duration `yaml:"probe_interval"`   // Interval between liveness sweeps
		LivenessTimeout time.Duration `yaml:"liveness_timeout"` // Idle time after which a connection is evicted
		SendBufferSize  int           `yaml:"send_buffer_size"` // Outbound frames buffered per connection
		MaxMessageSize  int64         `yaml:"max_message_size"` // Largest inbound frame in bytes
		EchoToSender    bool          `yaml:"echo_to_sender"`   // Deliver broadcasts back to their sender tagged "You"
		Stats           bool          `yaml:"stats"`            // Include process metrics in /stats
	} `yaml:"relay"`

	Client struct {
		URL                  string        `yaml:"url"`                    // Relay websocket URL
		CommandTimeout       time.Duration `yaml:"command_timeout"`        // Timeout for ordinary commands
		LongCommandTimeout   time.Duration `yaml:"long_command_timeout"`   // Timeout for long-running commands
		ProgressWindow       time.Duration `yaml:"progress_window"`        // Inactivity window re-armed by progress updates
		ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`   // First reconnect delay
		ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`    // Cap on the reconnect delay
		ReconnectMaxAttempts int           `yaml:"reconnect_max_attempts"` // Reconnect attempts before giving up
	} `yaml:"client"`

	Agent struct {
		Channel               string        `yaml:"channel"`                 // Channel the agent serves
		ChunkSize             int           `yaml:"chunk_size"`              // Items per batch chunk
		ChunkDelay            time.Duration `yaml:"chunk_delay"`             // Pause between chunks, negative disables it
		MaxConcurrentCommands int           `yaml:"max_concurrent_commands"` // Commands executed at once
		QueueSize             int           `yaml:"queue_size"`              // Commands waiting for a worker
		DocumentName          string        `yaml:"document_name"`           // Name of the in-memory document
		JournalFile           string        `yaml:"journal_file"`            // Path of the batch journal, empty disables it
	} `yaml:"agent"`

	Mirror struct {
		Enabled        bool          `yaml:"enabled"`         // Enable/disable the MQTT progress mirror
		Broker         string        `yaml:"broker"`          // MQTT broker address
		ClientID       string        `yaml:"client_id"`       // MQTT client ID
		CACertificate  string        `yaml:"ca_certificate"`  // Path to the CA certificate
		Topic          string        `yaml:"topic"`           // Topic prefix
		QOS            int           `yaml:"qos"`             // MQTT QoS level for mirrored messages
		Retained       bool          `yaml:"retained"`        // Publish mirrored messages as retained
		ConnectTimeout time.Duration `yaml:"connect_timeout"` // Timeout for the broker connection
	} `yaml:"mirror"`

	Logging struct {
		Level  string `yaml:"level"`  // zerolog level name
		Pretty bool   `yaml:"pretty"` // Human-readable console output instead of JSON
	} `yaml:"logging"`
}

// LoadConfig loads the YAML configuration from the specified file. A missing
// file yields the defaults.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config

	exists, err := fileClient.IsFileExists(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config %s: %w", filename, err)
	}
	if exists {
		if err := fileClient.ReadYamlFile(filename, &config); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
		}
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyDefaults replaces zero values with the defaults in internal/constants.
func (c *Config) ApplyDefaults() {
	if c.Relay.Port == 0 {
		c.Relay.Port = constants.DefaultRelayPort
	}
	if c.Relay.ProbeInterval == 0 {
		c.Relay.ProbeInterval = constants.DefaultProbeInterval
	}
	if c.Relay.LivenessTimeout == 0 {
		c.Relay.LivenessTimeout = constants.DefaultLivenessTimeout
	}
	if c.Relay.SendBufferSize == 0 {
		c.Relay.SendBufferSize = constants.DefaultSendBufferSize
	}
	if c.Relay.MaxMessageSize == 0 {
		c.Relay.MaxMessageSize = constants.DefaultMaxMessageSize
	}

	if c.Client.URL == "" {
		c.Client.URL = fmt.Sprintf("ws://localhost:%d", c.Relay.Port)
	}
	if c.Client.CommandTimeout == 0 {
		c.Client.CommandTimeout = constants.DefaultCommandTimeout
	}
	if c.Client.LongCommandTimeout == 0 {
		c.Client.LongCommandTimeout = constants.DefaultLongCommandTimeout
	}
	if c.Client.ProgressWindow == 0 {
		c.Client.ProgressWindow = constants.DefaultProgressWindow
	}
	if c.Client.ReconnectBaseDelay == 0 {
		c.Client.ReconnectBaseDelay = constants.DefaultReconnectBaseDelay
	}
	if c.Client.ReconnectMaxDelay == 0 {
		c.Client.ReconnectMaxDelay = constants.DefaultReconnectMaxDelay
	}
	if c.Client.ReconnectMaxAttempts == 0 {
		c.Client.ReconnectMaxAttempts = constants.DefaultReconnectMaxAttempts
	}

	if c.Agent.ChunkSize == 0 {
		c.Agent.ChunkSize = constants.DefaultChunkSize
	}
	if c.Agent.ChunkDelay == 0 {
		c.Agent.ChunkDelay = constants.DefaultChunkDelay
	}
	if c.Agent.MaxConcurrentCommands == 0 {
		c.Agent.MaxConcurrentCommands = constants.DefaultMaxConcurrentCommands
	}
	if c.Agent.DocumentName == "" {
		c.Agent.DocumentName = "Untitled"
	}

	if c.Mirror.Topic == "" {
		c.Mirror.Topic = "designrelay"
	}
	if c.Mirror.ClientID == "" {
		c.Mirror.ClientID = "designrelay-agent"
	}
	if c.Mirror.ConnectTimeout == 0 {
		c.Mirror.ConnectTimeout = 10 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	if c.Relay.Port < 0 || c.Relay.Port > 65535 {
		return fmt.Errorf("relay port out of range: %d", c.Relay.Port)
	}
	if c.Relay.LivenessTimeout < c.Relay.ProbeInterval {
		return fmt.Errorf("relay liveness_timeout (%s) must not be shorter than probe_interval (%s)",
			c.Relay.LivenessTimeout, c.Relay.ProbeInterval)
	}
	if c.Client.ReconnectMaxDelay < c.Client.ReconnectBaseDelay {
		return fmt.Errorf("client reconnect_max_delay (%s) must not be shorter than reconnect_base_delay (%s)",
			c.Client.ReconnectMaxDelay, c.Client.ReconnectBaseDelay)
	}
	if c.Agent.ChunkSize < 0 {
		return fmt.Errorf("agent chunk_size must be positive: %d", c.Agent.ChunkSize)
	}
	if c.Mirror.Enabled && c.Mirror.Broker == "" {
		return fmt.Errorf("mirror is enabled but no broker is configured")
	}
	if c.Mirror.QOS < 0 || c.Mirror.QOS > 2 {
		return fmt.Errorf("mirror qos must be 0, 1 or 2: %d", c.Mirror.QOS)
	}
	return nil
}
