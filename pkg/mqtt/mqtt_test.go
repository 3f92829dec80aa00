package mqtt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kw-96/AutoKit-sub000/tests/mocks"
)

func TestMqttService_ConnectError(t *testing.T) {
	// Setup
	client := new(mocks.MockMQTTClient)
	token := new(mocks.MockToken)
	token.On("Wait").Return(true)
	token.On("Error").Return(errors.New("connection refused"))
	client.On("Connect").Return(token)
	s := NewMqttServiceWithClient(client)

	// Execute
	err := s.Connect()

	// Assert
	assert.ErrorContains(t, err, "failed to connect to mqtt broker: connection refused")
	client.AssertExpectations(t)
}

func TestMqttService_PublishAndDisconnect(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	token := new(mocks.MockToken)
	client.On("Publish", "designrelay/design/x/result", byte(1), false, []byte("{}")).Return(token)
	client.On("Disconnect", uint(250)).Return()
	s := NewMqttServiceWithClient(client)

	assert.Same(t, token, s.Publish("designrelay/design/x/result", 1, false, []byte("{}")))
	s.Disconnect(250)

	client.AssertExpectations(t)
}

func TestMqttService_InitializeRequiresBroker(t *testing.T) {
	s := NewMqttService(new(mocks.MockFileOperations))

	err := s.Initialize(Options{ClientID: "agent"})

	assert.ErrorContains(t, err, "mqtt broker address is required")
}

func TestMqttService_InitializeBadCertificate(t *testing.T) {
	fileClient := new(mocks.MockFileOperations)
	fileClient.On("ReadFileRaw", "ca.pem").Return([]byte("not a certificate"), nil)
	s := NewMqttService(fileClient)

	err := s.Initialize(Options{Broker: "tcp://localhost:1883", CACertificate: "ca.pem"})

	assert.ErrorContains(t, err, "failed to append CA certificate")
}
