package service_registry

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kw-96/AutoKit-sub000/internal/registry"
	"github.com/kw-96/AutoKit-sub000/internal/utils"
	"github.com/kw-96/AutoKit-sub000/tests/mocks"
)

type stubService struct {
	name     string
	startErr error
	stopErr  error
	events   *[]string
}

func (s *stubService) Start() error {
	*s.events = append(*s.events, "start "+s.name)
	return s.startErr
}

func (s *stubService) Stop() error {
	*s.events = append(*s.events, "stop "+s.name)
	return s.stopErr
}

func TestServiceRegistry_StartsInOrderAndStopsInReverse(t *testing.T) {
	// Setup
	var events []string
	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("hub", &stubService{name: "hub", events: &events})
	sr.RegisterService("relay_server", &stubService{name: "relay_server", events: &events})
	sr.RegisterService("hub", &stubService{name: "duplicate", events: &events})

	// Execute
	require.NoError(t, sr.StartServices())
	require.NoError(t, sr.StopServices())

	// Assert
	assert.Equal(t, []string{"hub", "relay_server"}, sr.Names())
	assert.Equal(t, []string{"start hub", "start relay_server", "stop relay_server", "stop hub"}, events)
}

func TestServiceRegistry_RollsBackOnStartFailure(t *testing.T) {
	var events []string
	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("mirror", &stubService{name: "mirror", events: &events})
	sr.RegisterService("agent", &stubService{name: "agent", startErr: errors.New("dial refused"), events: &events})

	err := sr.StartServices()

	assert.ErrorContains(t, err, "failed to start agent: dial refused")
	assert.Equal(t, []string{"start mirror", "start agent", "stop mirror"}, events)
}

func TestServiceRegistry_StopJoinsErrors(t *testing.T) {
	var events []string
	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("a", &stubService{name: "a", stopErr: errors.New("boom a"), events: &events})
	sr.RegisterService("b", &stubService{name: "b", stopErr: errors.New("boom b"), events: &events})

	err := sr.StopServices()

	assert.ErrorContains(t, err, "failed to stop a: boom a")
	assert.ErrorContains(t, err, "failed to stop b: boom b")
}

func TestServiceRegistry_RegisterRelayServices(t *testing.T) {
	// Setup
	var config utils.Config
	config.ApplyDefaults()
	config.Relay.Port = 0
	sr := NewServiceRegistry(zerolog.Nop())

	// Execute
	server := sr.RegisterRelayServices(&config)
	require.NoError(t, sr.StartServices())
	addr := server.Addr()
	require.NoError(t, sr.StopServices())

	// Assert
	assert.Equal(t, []string{"hub", "relay_server"}, sr.Names())
	assert.NotEmpty(t, addr)
}

func TestServiceRegistry_RegisterAgentServices(t *testing.T) {
	var config utils.Config
	config.ApplyDefaults()
	fileClient := new(mocks.MockFileOperations)
	sr := NewServiceRegistry(zerolog.Nop())

	err := sr.RegisterAgentServices(&config, registry.NewCommands(), fileClient)
	assert.ErrorContains(t, err, "agent channel is required")

	config.Agent.Channel = "design"
	config.Mirror.Enabled = true
	config.Mirror.Broker = "tcp://localhost:1883"
	require.NoError(t, sr.RegisterAgentServices(&config, registry.NewCommands(), fileClient))
	assert.Equal(t, []string{"mirror", "agent"}, sr.Names())
}
