package models

import "time"

// BatchState is the journal record of a chunked command still being executed.
type BatchState struct {
	RequestID      string    `json:"request_id"`      // Id of the command envelope being executed
	Command        string    `json:"command"`         // Command name
	Channel        string    `json:"channel"`         // Channel the results are sent to
	Status         string    `json:"status"`          // Last progress status emitted
	TotalItems     int       `json:"total_items"`     // Number of items in the batch
	ProcessedItems int       `json:"processed_items"` // Items finished so far, success or failure
	UpdatedAt      time.Time `json:"updated_at"`      // Time of the last progress report
}

// CommandOutcome summarises a finished command for observers.
type CommandOutcome struct {
	RequestID  string `json:"request_id"`
	Command    string `json:"command"`
	Channel    string `json:"channel"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	FinishedAt int64  `json:"finished_at"` // Unix milliseconds
}
