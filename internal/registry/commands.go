package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kw-96/AutoKit-sub000/internal/batch"
	"github.com/kw-96/AutoKit-sub000/internal/constants"
	"github.com/kw-96/AutoKit-sub000/internal/models"
)

// Reporter receives progress updates for one running command.
type Reporter interface {
	Report(data models.ProgressData)
}

// Request is one command as seen by its handler.
type Request struct {
	ID       string
	Command  string
	Params   json.RawMessage
	Reporter Reporter
	Batch    batch.Config
}

func (r Request) report(data models.ProgressData) {
	if r.Reporter == nil {
		return
	}
	data.CommandID = r.ID
	data.CommandType = r.Command
	data.Timestamp = time.Now().UnixMilli()
	r.Reporter.Report(data)
}

// Handler executes a command and returns its result payload.
type Handler func(ctx context.Context, req Request) (any, error)

// Commands maps command names to handlers. Names are fixed at registration;
// registering a name twice is an error.
type Commands struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewCommands creates an empty command table.
func NewCommands() *Commands {
	return &Commands{handlers: make(map[string]Handler)}
}

// Add registers an untyped handler.
func (c *Commands) Add(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("command name is required")
	}
	if h == nil {
		return fmt.Errorf("command %s has no handler", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.handlers[name]; exists {
		return fmt.Errorf("command %s is already registered", name)
	}
	c.handlers[name] = h
	return nil
}

// Lookup returns the handler for name.
func (c *Commands) Lookup(name string) (Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[name]
	return h, ok
}

// Names lists registered commands in sorted order.
func (c *Commands) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds a command whose params decode into P.
func Register[P, R any](c *Commands, name string, fn func(ctx context.Context, params P) (R, error)) error {
	return c.Add(name, func(ctx context.Context, req Request) (any, error) {
		params, err := decodeParams[P](name, req.Params)
		if err != nil {
			return nil, err
		}
		return fn(ctx, params)
	})
}

// BatchSpec describes a chunked command: Items splits the params into work
// items and Item processes one of them. Summarize shapes the terminal result
// from the request id, params and outcome; when nil the generic BatchResult
// is returned.
type BatchSpec[P, I, R any] struct {
	Items     func(params P) ([]I, error)
	Item      func(ctx context.Context, params P, item I) (R, error)
	Summarize func(requestID string, params P, summary batch.Summary[I, R]) any
}

// BatchResult is the default terminal payload of a chunked command.
type BatchResult[I, R any] struct {
	Success      bool                     `json:"success"`
	TotalItems   int                      `json:"totalItems"`
	SuccessCount int                      `json:"successCount"`
	FailureCount int                      `json:"failureCount"`
	ChunkCount   int                      `json:"completedInChunks"`
	Results      []batch.ItemResult[I, R] `json:"results"`
}

// RegisterBatch adds a chunked command. The handler reports started, one
// in_progress update per chunk and completed, then returns the aggregate.
// A batch where every item failed is still a result, with success false.
func RegisterBatch[P, I, R any](c *Commands, name string, spec BatchSpec[P, I, R]) error {
	if spec.Items == nil || spec.Item == nil {
		return fmt.Errorf("batch command %s needs Items and Item", name)
	}
	return c.Add(name, func(ctx context.Context, req Request) (any, error) {
		params, err := decodeParams[P](name, req.Params)
		if err != nil {
			return nil, err
		}
		items, err := spec.Items(params)
		if err != nil {
			return nil, err
		}

		chunkSize := req.Batch.ChunkSize
		if chunkSize <= 0 {
			chunkSize = constants.DefaultChunkSize
		}
		totalChunks := (len(items) + chunkSize - 1) / chunkSize
		req.report(models.ProgressData{
			Status:      constants.ProgressStatusStarted,
			Progress:    constants.ProgressMin,
			TotalItems:  len(items),
			Message:     fmt.Sprintf("Starting %s for %d items in %d chunks", name, len(items), totalChunks),
			TotalChunks: &totalChunks,
		})

		summary := batch.Run(ctx, req.Batch, items,
			func(ctx context.Context, item I) (R, error) { return spec.Item(ctx, params, item) },
			func(r batch.ChunkReport[I, R]) {
				current, total := r.ChunkIndex, r.TotalChunks
				chunkResults, _ := json.Marshal(r.Results)
				req.report(models.ProgressData{
					Status:         constants.ProgressStatusInProgress,
					Progress:       float64(r.Progress),
					TotalItems:     r.TotalItems,
					ProcessedItems: r.Processed,
					SuccessCount:   r.SuccessCount,
					FailureCount:   r.FailureCount,
					Message:        fmt.Sprintf("Processed chunk %d/%d (%d/%d items)", current, total, r.Processed, r.TotalItems),
					CurrentChunk:   &current,
					TotalChunks:    &total,
					ChunkResults:   chunkResults,
				})
			})

		req.report(models.ProgressData{
			Status:         constants.ProgressStatusCompleted,
			Progress:       constants.ProgressMax,
			TotalItems:     summary.TotalItems,
			ProcessedItems: summary.TotalItems,
			SuccessCount:   summary.SuccessCount,
			FailureCount:   summary.FailureCount,
			Message: fmt.Sprintf("Finished %s: %d succeeded, %d failed",
				name, summary.SuccessCount, summary.FailureCount),
			TotalChunks: &summary.ChunkCount,
		})

		if spec.Summarize != nil {
			return spec.Summarize(req.ID, params, summary), nil
		}
		return BatchResult[I, R]{
			Success:      summary.Success(),
			TotalItems:   summary.TotalItems,
			SuccessCount: summary.SuccessCount,
			FailureCount: summary.FailureCount,
			ChunkCount:   summary.ChunkCount,
			Results:      summary.Results,
		}, nil
	})
}

func decodeParams[P any](name string, raw json.RawMessage) (P, error) {
	var params P
	if len(raw) == 0 || string(raw) == "null" {
		return params, nil
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return params, fmt.Errorf("invalid params for %s: %w", name, err)
	}
	return params, nil
}
