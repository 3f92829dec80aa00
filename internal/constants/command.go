package constants

import "time"

const (
	DefaultCommandTimeout     = 60 * time.Second  // Per-command timeout
	DefaultLongCommandTimeout = 120 * time.Second // Timeout for commands declared long-running
	DefaultProgressWindow     = 60 * time.Second  // Inactivity window re-armed by each progress envelope
)

// Progress statuses
const (
	// ProgressStatusStarted is emitted once before the first chunk is processed
	ProgressStatusStarted = "started"
	// ProgressStatusInProgress is emitted after every completed chunk
	ProgressStatusInProgress = "in_progress"
	// ProgressStatusCompleted is emitted after the last chunk, right before the terminal envelope
	ProgressStatusCompleted = "completed"
	// ProgressStatusError reports a batch that could not be planned or executed
	ProgressStatusError = "error"
)

// Progress scale. The planning phase owns the first ProgressPlanningPoints points
// and chunk execution spreads over the next ProgressChunkSpan points.
const (
	ProgressMin            = 0
	ProgressMax            = 100
	ProgressPlanningPoints = 5
	ProgressChunkSpan      = 90
)

// Batch execution defaults
const (
	DefaultChunkSize             = 5
	DefaultChunkDelay            = 1 * time.Second
	DefaultMaxConcurrentCommands = 4
)

// Command names known to the relay core. Domain commands live with their handlers.
const (
	CommandJoin = "join"
)

// LongRunningCommands are the commands the issuer knows in advance to be chunked.
var LongRunningCommands = []string{
	"delete_multiple_nodes",
	"set_multiple_text_contents",
	"scan_text_nodes",
	"set_multiple_annotations",
}
