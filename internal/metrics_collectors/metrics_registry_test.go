package metrics_collectors

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCollector struct {
	name  string
	value *float64
}

func (f *fixedCollector) Name() string                     { return f.name }
func (f *fixedCollector) Collect(context.Context) *float64 { return f.value }
func (f *fixedCollector) Unit() string                     { return "count" }
func (f *fixedCollector) Description() string              { return "fixed" }

func TestMetricsRegistry_SnapshotMapsKnownCollectors(t *testing.T) {
	// Setup
	goroutines, rss := 12.0, 4096.0
	r := NewMetricsRegistry()
	r.Register(&fixedCollector{name: GoroutinesMetric, value: &goroutines})
	r.Register(&fixedCollector{name: ProcessMemoryMetric, value: &rss})
	r.Register(&fixedCollector{name: "unrelated", value: &rss})

	// Execute
	pm := r.Snapshot(context.Background())

	// Assert
	require.NotNil(t, pm.Goroutines)
	assert.Equal(t, 12.0, *pm.Goroutines)
	require.NotNil(t, pm.Memory)
	assert.Equal(t, 4096.0, *pm.Memory)
	assert.Nil(t, pm.CPUUsage)
	assert.Len(t, r.GetCollectors(), 3)
}

func TestDefaultRegistry_ReportsGoroutines(t *testing.T) {
	r := NewDefaultRegistry(zerolog.Nop())

	pm := r.Snapshot(context.Background())

	require.NotNil(t, pm.Goroutines)
	assert.Greater(t, *pm.Goroutines, 0.0)
	assert.Len(t, r.GetCollectors(), 3)
}
