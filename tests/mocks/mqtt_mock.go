package mocks

import (
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

// MockMQTTClient is a mock implementation of the MQTTClient interface
type MockMQTTClient struct {
	mock.Mock
}

func (m *MockMQTTClient) Connect() mqtt.Token {
	args := m.Called()
	return args.Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	args := m.Called(topic, qos, retained, payload)
	return args.Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

// Published is one message captured by RecordingMQTTClient.
type Published struct {
	Topic    string
	QOS      byte
	Retained bool
	Payload  []byte
}

// RecordingMQTTClient accepts every publish and keeps it for inspection.
// Tokens complete immediately without error.
type RecordingMQTTClient struct {
	mu       sync.Mutex
	messages []Published
}

func (r *RecordingMQTTClient) Connect() mqtt.Token {
	return &doneToken{}
}

func (r *RecordingMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	r.mu.Lock()
	r.messages = append(r.messages, Published{Topic: topic, QOS: qos, Retained: retained, Payload: data})
	r.mu.Unlock()
	return &doneToken{}
}

func (r *RecordingMQTTClient) Disconnect(quiesce uint) {}

// Messages returns a copy of everything published so far.
func (r *RecordingMQTTClient) Messages() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.messages...)
}
