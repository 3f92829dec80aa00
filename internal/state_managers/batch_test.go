package state_managers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kw-96/AutoKit-sub000/internal/constants"
	"github.com/kw-96/AutoKit-sub000/internal/models"
)

func TestBatchStateManager_TracksInFlightBatches(t *testing.T) {
	// Setup
	path := filepath.Join(t.TempDir(), "batches.json")
	sm := NewBatchStateManager(path, zerolog.Nop())
	state := models.BatchState{
		RequestID:      "req-1",
		Command:        "delete_multiple_nodes",
		Channel:        "design",
		Status:         constants.ProgressStatusInProgress,
		TotalItems:     12,
		ProcessedItems: 5,
		UpdatedAt:      time.Now().UTC().Truncate(time.Second),
	}

	// Execute
	require.NoError(t, sm.Update(state))
	states, err := sm.LoadState()

	// Assert
	require.NoError(t, err)
	require.Contains(t, states, "req-1")
	assert.Equal(t, 5, states["req-1"].ProcessedItems)
	assert.True(t, state.UpdatedAt.Equal(states["req-1"].UpdatedAt))

	state.Status = constants.ProgressStatusCompleted
	require.NoError(t, sm.Update(state))
	states, err = sm.LoadState()
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestBatchStateManager_MissingFileIsEmpty(t *testing.T) {
	sm := NewBatchStateManager(filepath.Join(t.TempDir(), "absent.json"), zerolog.Nop())

	states, err := sm.LoadState()

	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestBatchStateManager_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batches.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	sm := NewBatchStateManager(path, zerolog.Nop())

	_, err := sm.LoadState()
	assert.Error(t, err)

	err = sm.Update(models.BatchState{RequestID: "x", Status: constants.ProgressStatusStarted})
	assert.Error(t, err)
}
