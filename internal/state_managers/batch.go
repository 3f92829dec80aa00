package state_managers

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kw-96/AutoKit-sub000/internal/constants"
	"github.com/kw-96/AutoKit-sub000/internal/models"
)

// BatchStateManager keeps a file-backed journal of batches that have started
// but not finished. Entries left behind after a crash name the interrupted
// requests.
type BatchStateManager struct {
	filePath string
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewBatchStateManager initializes a new BatchStateManager
func NewBatchStateManager(filePath string, logger zerolog.Logger) *BatchStateManager {
	return &BatchStateManager{
		filePath: filePath,
		logger:   logger,
	}
}

// LoadState reads the journal, keyed by request id.
func (sm *BatchStateManager) LoadState() (map[string]models.BatchState, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.load()
}

// Update records state, dropping the entry once the batch has completed or
// failed.
func (sm *BatchStateManager) Update(state models.BatchState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	states, err := sm.load()
	if err != nil {
		return err
	}

	if state.Status == constants.ProgressStatusCompleted || state.Status == constants.ProgressStatusError {
		delete(states, state.RequestID)
	} else {
		states[state.RequestID] = state
	}

	return sm.save(states)
}

func (sm *BatchStateManager) load() (map[string]models.BatchState, error) {
	data, err := os.ReadFile(sm.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]models.BatchState), nil
		}
		sm.logger.Error().Err(err).Str("path", sm.filePath).Msg("Failed to read batch journal")
		return nil, err
	}
	if len(data) == 0 {
		return make(map[string]models.BatchState), nil
	}

	var states map[string]models.BatchState
	if err := json.Unmarshal(data, &states); err != nil {
		sm.logger.Error().Err(err).Str("path", sm.filePath).Msg("Failed to unmarshal batch journal")
		return nil, err
	}
	if states == nil {
		states = make(map[string]models.BatchState)
	}
	return states, nil
}

func (sm *BatchStateManager) save(states map[string]models.BatchState) error {
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		sm.logger.Error().Err(err).Msg("Failed to marshal batch journal")
		return err
	}

	if err := os.WriteFile(sm.filePath, data, 0644); err != nil {
		sm.logger.Error().Err(err).Str("path", sm.filePath).Msg("Failed to write batch journal")
		return err
	}
	return nil
}
