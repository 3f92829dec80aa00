package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		name  string
		items int
		size  int
		want  []int
	}{
		{"empty", 0, 5, []int{}},
		{"exact", 10, 5, []int{5, 5}},
		{"remainder", 12, 5, []int{5, 5, 2}},
		{"smaller than chunk", 3, 5, []int{3}},
		{"default size", 7, 0, []int{5, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]int, tt.items)
			chunks := Partition(items, tt.size)
			sizes := make([]int, 0, len(chunks))
			for _, c := range chunks {
				sizes = append(sizes, len(c))
			}
			assert.Equal(t, tt.want, sizes)
		})
	}
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 5, Progress(0, 3))
	assert.Equal(t, 35, Progress(1, 3))
	assert.Equal(t, 65, Progress(2, 3))
	assert.Equal(t, 95, Progress(3, 3))
	assert.Equal(t, 5, Progress(0, 0))
}

func TestRun_PartialFailureAccounting(t *testing.T) {
	// Setup: items divisible by 4 fail, 9 panics.
	items := make([]int, 12)
	for i := range items {
		items[i] = i
	}
	fn := func(ctx context.Context, n int) (string, error) {
		if n == 9 {
			panic("boom")
		}
		if n%4 == 0 {
			return "", fmt.Errorf("item %d rejected", n)
		}
		return fmt.Sprintf("ok-%d", n), nil
	}

	// Execute
	summary := Run(context.Background(), Config{ChunkSize: 5}, items, fn, nil)

	// Assert: 0, 4, 8 fail and 9 panics.
	assert.Equal(t, 12, summary.TotalItems)
	assert.Equal(t, 3, summary.ChunkCount)
	assert.Equal(t, 8, summary.SuccessCount)
	assert.Equal(t, 4, summary.FailureCount)
	require.Len(t, summary.Results, 12)
	assert.True(t, summary.Success())
	for i, r := range summary.Results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, i, r.Item)
	}
	assert.Equal(t, "item 4 rejected", summary.Results[4].Error)
	assert.Equal(t, "panic: boom", summary.Results[9].Error)
	assert.Equal(t, "ok-7", summary.Results[7].Result)
}

func TestRun_AllFailedIsNotSuccess(t *testing.T) {
	summary := Run(context.Background(), Config{ChunkSize: 2}, []string{"a", "b", "c"},
		func(ctx context.Context, s string) (int, error) { return 0, errors.New("missing") }, nil)

	assert.False(t, summary.Success())
	assert.Equal(t, 3, summary.FailureCount)
	assert.Len(t, summary.Results, 3)
}

func TestRun_ChunkReportsAreOrderedAndMonotonic(t *testing.T) {
	// Setup
	items := make([]int, 12)
	var reports []ChunkReport[int, int]

	// Execute
	Run(context.Background(), Config{ChunkSize: 5}, items,
		func(ctx context.Context, n int) (int, error) { return n, nil },
		func(r ChunkReport[int, int]) { reports = append(reports, r) })

	// Assert
	require.Len(t, reports, 3)
	sizes := []int{5, 5, 2}
	processed := []int{5, 10, 12}
	last := 0
	for i, r := range reports {
		assert.Equal(t, i+1, r.ChunkIndex)
		assert.Equal(t, 3, r.TotalChunks)
		assert.Len(t, r.Results, sizes[i])
		assert.Equal(t, processed[i], r.Processed)
		assert.GreaterOrEqual(t, r.Progress, last)
		assert.Less(t, r.Progress, 100)
		last = r.Progress
	}
}

func TestRun_ItemsInChunkRunConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	fn := func(ctx context.Context, n int) (int, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return n, nil
	}

	Run(context.Background(), Config{ChunkSize: 4}, make([]int, 8), fn, nil)

	assert.Equal(t, int32(4), peak.Load())
}

func TestRun_DelaysBetweenChunksOnly(t *testing.T) {
	start := time.Now()
	Run(context.Background(), Config{ChunkSize: 1, ChunkDelay: 30 * time.Millisecond}, []int{1, 2, 3},
		func(ctx context.Context, n int) (int, error) { return n, nil }, nil)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Less(t, elapsed, 90*time.Millisecond+50*time.Millisecond)
}

func TestRun_CancelledContextMarksRemainingItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	summary := Run(ctx, Config{ChunkSize: 2}, []int{1, 2, 3, 4},
		func(ctx context.Context, n int) (int, error) {
			if n == 2 {
				cancel()
			}
			return n, nil
		}, nil)

	require.Len(t, summary.Results, 4)
	assert.Equal(t, 2, summary.SuccessCount)
	assert.Equal(t, 2, summary.FailureCount)
	assert.Contains(t, summary.Results[3].Error, "not processed")
}
