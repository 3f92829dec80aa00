// Package batch runs a list of independent items in fixed-size chunks. Items
// within a chunk run concurrently, chunks run in order, and every item ends up
// with exactly one result record whether it succeeded, failed or panicked.
package batch

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kw-96/AutoKit-sub000/internal/constants"
)

// Config sets chunk size and the pause between chunks.
type Config struct {
	ChunkSize  int
	ChunkDelay time.Duration
}

// ItemResult is the outcome of one item.
type ItemResult[I, R any] struct {
	Index   int    `json:"index"`
	Item    I      `json:"item"`
	Success bool   `json:"success"`
	Result  R      `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ChunkReport is delivered after each chunk completes. Counts are cumulative;
// Results holds only the chunk just finished.
type ChunkReport[I, R any] struct {
	ChunkIndex   int // 1-based
	TotalChunks  int
	TotalItems   int
	Processed    int
	SuccessCount int
	FailureCount int
	Progress     int
	Results      []ItemResult[I, R]
}

// Summary aggregates a finished run. Results has one entry per input item, in
// input order.
type Summary[I, R any] struct {
	TotalItems   int
	SuccessCount int
	FailureCount int
	ChunkCount   int
	Results      []ItemResult[I, R]
}

// Success reports whether at least one item succeeded.
func (s Summary[I, R]) Success() bool {
	return s.SuccessCount > 0
}

// Partition splits items into ordered chunks of at most size elements.
func Partition[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = constants.DefaultChunkSize
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// Progress maps chunksDone of totalChunks onto the reported scale, reserving
// the first points for planning.
func Progress(chunksDone, totalChunks int) int {
	if totalChunks <= 0 {
		return constants.ProgressPlanningPoints
	}
	ratio := float64(chunksDone) / float64(totalChunks)
	return int(math.Round(constants.ProgressPlanningPoints + ratio*constants.ProgressChunkSpan))
}

// Run processes items chunk by chunk with fn. onChunk, if set, is called after
// each chunk in order. When ctx is cancelled, items not yet started are
// recorded as failures.
func Run[I, R any](ctx context.Context, cfg Config, items []I, fn func(ctx context.Context, item I) (R, error), onChunk func(ChunkReport[I, R])) Summary[I, R] {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = constants.DefaultChunkSize
	}

	chunks := Partition(items, cfg.ChunkSize)
	summary := Summary[I, R]{
		TotalItems: len(items),
		ChunkCount: len(chunks),
		Results:    make([]ItemResult[I, R], 0, len(items)),
	}

	offset := 0
	for i, chunk := range chunks {
		if i > 0 && cfg.ChunkDelay > 0 {
			wait(ctx, cfg.ChunkDelay)
		}

		var results []ItemResult[I, R]
		if err := ctx.Err(); err != nil {
			results = skipped[I, R](chunk, offset, err)
		} else {
			results = runChunk(ctx, chunk, offset, fn)
		}
		offset += len(chunk)

		succeeded := 0
		for _, r := range results {
			if r.Success {
				succeeded++
			}
		}
		summary.SuccessCount += succeeded
		summary.FailureCount += len(results) - succeeded
		summary.Results = append(summary.Results, results...)

		if onChunk != nil {
			onChunk(ChunkReport[I, R]{
				ChunkIndex:   i + 1,
				TotalChunks:  len(chunks),
				TotalItems:   len(items),
				Processed:    offset,
				SuccessCount: summary.SuccessCount,
				FailureCount: summary.FailureCount,
				Progress:     Progress(i+1, len(chunks)),
				Results:      results,
			})
		}
	}
	return summary
}

func runChunk[I, R any](ctx context.Context, chunk []I, offset int, fn func(context.Context, I) (R, error)) []ItemResult[I, R] {
	results := make([]ItemResult[I, R], len(chunk))
	var g errgroup.Group
	g.SetLimit(len(chunk))
	for j, item := range chunk {
		j, item := j, item
		g.Go(func() error {
			results[j] = runItem(ctx, offset+j, item, fn)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runItem[I, R any](ctx context.Context, index int, item I, fn func(context.Context, I) (R, error)) (res ItemResult[I, R]) {
	res = ItemResult[I, R]{Index: index, Item: item}
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	out, err := fn(ctx, item)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.Result = out
	return res
}

func skipped[I, R any](chunk []I, offset int, err error) []ItemResult[I, R] {
	results := make([]ItemResult[I, R], len(chunk))
	for j, item := range chunk {
		results[j] = ItemResult[I, R]{Index: offset + j, Item: item, Error: fmt.Sprintf("not processed: %v", err)}
	}
	return results
}

func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
