package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kw-96/AutoKit-sub000/internal/client"
	"github.com/kw-96/AutoKit-sub000/internal/constants"
	"github.com/kw-96/AutoKit-sub000/internal/document"
	relayerrors "github.com/kw-96/AutoKit-sub000/internal/errors"
	"github.com/kw-96/AutoKit-sub000/internal/hub"
	"github.com/kw-96/AutoKit-sub000/internal/models"
	"github.com/kw-96/AutoKit-sub000/internal/registry"
	"github.com/kw-96/AutoKit-sub000/pkg/transport"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []models.Envelope
}

func (s *recordingSender) Send(env models.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
	return nil
}

func (s *recordingSender) envelopes() []models.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Envelope(nil), s.sent...)
}

type recordingObserver struct {
	mu       sync.Mutex
	progress []models.ProgressData
	outcomes []models.CommandOutcome
}

func (o *recordingObserver) OnProgress(channel string, data models.ProgressData) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, data)
}

func (o *recordingObserver) OnOutcome(outcome models.CommandOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

type recordingJournal struct {
	mu     sync.Mutex
	states []models.BatchState
}

func (j *recordingJournal) Update(state models.BatchState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.states = append(j.states, state)
	return nil
}

func newDocumentCommands(t *testing.T) (*registry.Commands, *document.Store) {
	t.Helper()
	store := document.NewStore("Landing page")
	commands := registry.NewCommands()
	require.NoError(t, document.Register(commands, store))
	return commands, store
}

func terminalOf(t *testing.T, env models.Envelope) models.ChannelMessage {
	t.Helper()
	msg, ok := models.DecodeChannelMessage(env.Message)
	require.True(t, ok)
	require.True(t, msg.IsTerminal())
	return msg
}

func TestAgent_UnknownCommandRepliesWithError(t *testing.T) {
	// Setup
	commands, _ := newDocumentCommands(t)
	sender := &recordingSender{}
	a := New(Config{}, commands, sender, zerolog.Nop())
	defer a.Shutdown()

	// Execute
	a.Dispatch(context.Background(), "design", models.ChannelMessage{ID: "req-1", Command: "explode"})

	// Assert
	sent := sender.envelopes()
	require.Len(t, sent, 1)
	assert.Equal(t, constants.MessageTypeMessage, sent[0].Type)
	assert.Equal(t, "design", sent[0].Channel)
	msg := terminalOf(t, sent[0])
	assert.Equal(t, "req-1", msg.ID)
	assert.Equal(t, "Unknown command: explode", msg.ErrorText())
}

func TestAgent_PanickingHandlerStillRepliesOnce(t *testing.T) {
	// Setup
	commands := registry.NewCommands()
	require.NoError(t, registry.Register(commands, "crash", func(ctx context.Context, _ struct{}) (int, error) {
		panic("nil node")
	}))
	sender := &recordingSender{}
	observer := &recordingObserver{}
	a := New(Config{}, commands, sender, zerolog.Nop(), WithObserver(observer))
	defer a.Shutdown()

	// Execute
	a.Dispatch(context.Background(), "design", models.ChannelMessage{ID: "req-2", Command: "crash"})

	// Assert
	var terminals []models.ChannelMessage
	for _, env := range sender.envelopes() {
		if env.Type == constants.MessageTypeMessage {
			terminals = append(terminals, terminalOf(t, env))
		}
	}
	require.Len(t, terminals, 1)
	assert.Equal(t, "Internal error: nil node", terminals[0].ErrorText())
	require.Len(t, observer.outcomes, 1)
	assert.False(t, observer.outcomes[0].Success)
}

func TestAgent_DeleteMultipleNodesEmitsChunkProgress(t *testing.T) {
	// Setup
	commands, store := newDocumentCommands(t)
	ids := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		n, err := store.Create(document.Node{Type: document.TypeRectangle})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}
	params, _ := json.Marshal(map[string]any{"nodeIds": ids})
	sender := &recordingSender{}
	journal := &recordingJournal{}
	observer := &recordingObserver{}
	a := New(Config{ChunkSize: 5, ChunkDelay: time.Millisecond}, commands, sender, zerolog.Nop(),
		WithJournal(journal), WithObserver(observer))
	defer a.Shutdown()

	// Execute
	a.Dispatch(context.Background(), "design", models.ChannelMessage{ID: "req-3", Command: document.CommandDeleteMultipleNodes, Params: params})

	// Assert
	sent := sender.envelopes()
	require.Len(t, sent, 6) // started, 3 chunks, completed, terminal

	var statuses []string
	var chunkSizes []int
	last := -1.0
	for _, env := range sent[:5] {
		require.Equal(t, constants.MessageTypeProgress, env.Type)
		assert.Equal(t, "req-3", env.ID)
		var pm models.ProgressMessage
		require.NoError(t, json.Unmarshal(env.Message, &pm))
		statuses = append(statuses, pm.Data.Status)
		assert.GreaterOrEqual(t, pm.Data.Progress, last)
		last = pm.Data.Progress
		if pm.Data.Status == constants.ProgressStatusInProgress {
			var chunk []json.RawMessage
			require.NoError(t, json.Unmarshal(pm.Data.ChunkResults, &chunk))
			chunkSizes = append(chunkSizes, len(chunk))
			assert.Less(t, pm.Data.Progress, float64(constants.ProgressMax))
		}
	}
	assert.Equal(t, []string{
		constants.ProgressStatusStarted,
		constants.ProgressStatusInProgress,
		constants.ProgressStatusInProgress,
		constants.ProgressStatusInProgress,
		constants.ProgressStatusCompleted,
	}, statuses)
	assert.Equal(t, []int{5, 5, 2}, chunkSizes)
	assert.Equal(t, float64(constants.ProgressMax), last)

	msg := terminalOf(t, sent[5])
	var result document.DeleteManyResult
	require.NoError(t, json.Unmarshal(msg.Result, &result))
	assert.Equal(t, 12, result.TotalNodes)
	assert.Equal(t, 12, result.NodesDeleted)
	assert.Equal(t, 3, result.CompletedInChunks)
	assert.Equal(t, "req-3", result.CommandID)

	require.Len(t, journal.states, 5)
	assert.Equal(t, constants.ProgressStatusCompleted, journal.states[4].Status)
	assert.Len(t, observer.progress, 5)
	require.Len(t, observer.outcomes, 1)
	assert.True(t, observer.outcomes[0].Success)
}

func TestAgent_HandleBroadcastIgnoresNonCommands(t *testing.T) {
	commands, _ := newDocumentCommands(t)
	sender := &recordingSender{}
	a := New(Config{}, commands, sender, zerolog.Nop())

	notice, _ := json.Marshal(constants.NoticePeerJoined)
	a.HandleBroadcast(models.Envelope{Type: constants.MessageTypeSystem, Message: notice})
	a.HandleBroadcast(models.Envelope{Type: constants.MessageTypeBroadcast, Message: json.RawMessage(`{"id":"x","result":"done"}`)})
	a.Shutdown()

	assert.Empty(t, sender.envelopes())
}

func TestAgent_RejectsWhenQueueFull(t *testing.T) {
	// Setup: one worker blocked, one queued slot filled.
	release := make(chan struct{})
	running := make(chan struct{}, 1)
	commands := registry.NewCommands()
	require.NoError(t, registry.Register(commands, "block", func(ctx context.Context, _ struct{}) (string, error) {
		running <- struct{}{}
		<-release
		return "done", nil
	}))
	sender := &recordingSender{}
	a := New(Config{MaxConcurrentCommands: 1, QueueSize: 1}, commands, sender, zerolog.Nop())

	cmd := func(id string) models.Envelope {
		payload, _ := json.Marshal(models.ChannelMessage{ID: id, Command: "block"})
		return models.Envelope{Type: constants.MessageTypeBroadcast, Channel: "design", Message: payload}
	}

	// Execute
	a.HandleBroadcast(cmd("a"))
	select {
	case <-running:
	case <-time.After(time.Second):
		t.Fatal("first command never started")
	}
	a.HandleBroadcast(cmd("b"))
	a.HandleBroadcast(cmd("c"))

	// Assert
	sent := sender.envelopes()
	require.Len(t, sent, 1)
	msg := terminalOf(t, sent[0])
	assert.Equal(t, "c", msg.ID)
	assert.Equal(t, "Agent is busy, try again later", msg.ErrorText())

	close(release)
	a.Shutdown()
	assert.Len(t, sender.envelopes(), 3)
}

func TestService_EndToEndThroughRelay(t *testing.T) {
	// Setup: relay, execution agent and issuer on one channel.
	h := hub.NewHub(hub.Config{}, zerolog.Nop())
	server := httptest.NewServer(hub.NewHandler(h, transport.NewUpgrader(transport.Options{}), nil, zerolog.Nop()))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	dialer := transport.NewWebsocketDialer(transport.Options{})

	commands, store := newDocumentCommands(t)
	agentClient := client.New(client.Config{URL: url}, dialer, zerolog.Nop())
	a := New(Config{ChunkSize: 5, ChunkDelay: 5 * time.Millisecond}, commands, agentClient, zerolog.Nop())
	svc := NewService(agentClient, a, "design", zerolog.Nop())
	require.NoError(t, svc.Start())
	defer svc.Stop()

	issuer := client.New(client.Config{URL: url}, dialer, zerolog.Nop())
	defer issuer.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, issuer.Connect(ctx))
	require.NoError(t, issuer.Join(ctx, "design"))
	assert.Equal(t, constants.ProtocolVersion, issuer.RelayVersion())

	ids := make([]string, 0, 12)
	for i := 0; i < 10; i++ {
		n, err := store.Create(document.Node{Type: document.TypeRectangle, Name: fmt.Sprintf("r%d", i)})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}
	ids = append(ids, "9:98", "9:99")

	var mu sync.Mutex
	var progress []models.ProgressData

	// Execute
	res, err := issuer.Issue(ctx, document.CommandDeleteMultipleNodes, map[string]any{"nodeIds": ids},
		client.WithProgress(func(d models.ProgressData) {
			mu.Lock()
			progress = append(progress, d)
			mu.Unlock()
		}))

	// Assert
	require.NoError(t, err)
	var result document.DeleteManyResult
	require.NoError(t, json.Unmarshal(res, &result))
	assert.True(t, result.Success)
	assert.Equal(t, 12, result.TotalNodes)
	assert.Equal(t, 10, result.NodesDeleted)
	assert.Equal(t, 2, result.NodesFailed)
	assert.Len(t, result.Results, 12)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, progress, 5)
	inProgress := 0
	for _, p := range progress {
		if p.Status == constants.ProgressStatusInProgress {
			inProgress++
		}
	}
	assert.Equal(t, 3, inProgress)

	_, err = issuer.Issue(ctx, document.CommandGetNodeInfo, map[string]string{"nodeId": "9:99"})
	assert.True(t, relayerrors.Is(err, relayerrors.Domain))
	assert.Contains(t, err.Error(), "Node not found: 9:99")
}
