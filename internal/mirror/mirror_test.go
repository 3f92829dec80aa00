package mirror

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kw-96/AutoKit-sub000/internal/constants"
	"github.com/kw-96/AutoKit-sub000/internal/models"
	"github.com/kw-96/AutoKit-sub000/pkg/mqtt"
	"github.com/kw-96/AutoKit-sub000/tests/mocks"
)

func TestMirror_PublishesProgress(t *testing.T) {
	// Setup
	client := &mocks.RecordingMQTTClient{}
	m := New(client, Config{Topic: "relay", QOS: 1}, zerolog.Nop())

	// Execute
	m.OnProgress("design/team", models.ProgressData{
		CommandID:   "req-1",
		CommandType: "delete_multiple_nodes",
		Status:      constants.ProgressStatusInProgress,
		Progress:    35,
	})

	// Assert
	msgs := client.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "relay/design_team/delete_multiple_nodes/progress", msgs[0].Topic)
	assert.Equal(t, byte(1), msgs[0].QOS)
	var data models.ProgressData
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &data))
	assert.Equal(t, "req-1", data.CommandID)
	assert.Equal(t, float64(35), data.Progress)
}

func TestMirror_PublishesOutcome(t *testing.T) {
	client := &mocks.RecordingMQTTClient{}
	m := New(client, Config{}, zerolog.Nop())

	m.OnOutcome(models.CommandOutcome{RequestID: "req-2", Command: "get_node_info", Channel: "design", Success: false, Error: "Node not found: 1:9"})

	msgs := client.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "designrelay/design/get_node_info/result", msgs[0].Topic)
	assert.Contains(t, string(msgs[0].Payload), `"error":"Node not found: 1:9"`)
}

func TestMirror_PublishFailureIsLoggedOnly(t *testing.T) {
	// Setup
	client := new(mocks.MockMQTTClient)
	token := new(mocks.MockToken)
	done := make(chan struct{})
	token.On("WaitTimeout", publishTimeout).Return(true)
	token.On("Error").Run(func(args mock.Arguments) { close(done) }).Return(errors.New("not connected"))
	client.On("Publish", "designrelay/design/create_rectangle/result", byte(0), false, mock.Anything).Return(token)
	m := New(client, Config{}, zerolog.Nop())

	// Execute
	m.OnOutcome(models.CommandOutcome{Command: "create_rectangle", Channel: "design", Success: true})

	// Assert
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("token was never checked")
	}
	client.AssertExpectations(t)
}

func TestService_LifecycleErrors(t *testing.T) {
	s := NewService(mqtt.NewMqttService(new(mocks.MockFileOperations)), mqtt.Options{}, zerolog.Nop())

	assert.ErrorContains(t, s.Stop(), "not running")
	assert.ErrorContains(t, s.Start(), "mqtt broker address is required")
	assert.ErrorContains(t, s.Stop(), "not running")
}
