package models

import (
	"encoding/json"
	"math"

	"github.com/kw-96/AutoKit-sub000/internal/constants"
)

// ProgressMessage is the payload of a progress_update frame.
type ProgressMessage struct {
	ID   string                `json:"id"`
	Type constants.MessageType `json:"type"`
	Data ProgressData          `json:"data"`
}

// ProgressData reports the state of a long-running command.
type ProgressData struct {
	CommandID      string          `json:"commandId,omitempty"`
	CommandType    string          `json:"commandType"`
	Status         string          `json:"status"`
	Progress       float64         `json:"progress"`
	TotalItems     int             `json:"totalItems"`
	ProcessedItems int             `json:"processedItems"`
	SuccessCount   int             `json:"successCount"`
	FailureCount   int             `json:"failureCount"`
	Message        string          `json:"message"`
	CurrentChunk   *int            `json:"currentChunk,omitempty"`
	TotalChunks    *int            `json:"totalChunks,omitempty"`
	ChunkResults   json.RawMessage `json:"chunkResults,omitempty"`
	Timestamp      int64           `json:"timestamp,omitempty"`
}

// NormalizeProgress maps a reported value onto the canonical 0-100 integer scale.
// Values strictly between 0 and 1 come from peers using the fractional scale.
func NormalizeProgress(value float64) int {
	if math.IsNaN(value) || value <= 0 {
		return constants.ProgressMin
	}
	if value < 1 {
		value *= 100
	}
	if value > constants.ProgressMax {
		return constants.ProgressMax
	}
	return int(math.Round(value))
}
