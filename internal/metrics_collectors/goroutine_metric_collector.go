package metrics_collectors

import (
	"context"
	"runtime"

	"github.com/rs/zerolog"
)

const GoroutinesMetric = "goroutines"

// GoroutineMetricCollector collects the number of active goroutines.
// The relay runs a reader and a writer goroutine per connection, so this
// tracks connection churn closely.
type GoroutineMetricCollector struct {
	Logger zerolog.Logger
}

// Name returns the identifier for the goroutine metric collector.
func (g *GoroutineMetricCollector) Name() string {
	return GoroutinesMetric
}

// Collect retrieves the number of active goroutines.
func (g *GoroutineMetricCollector) Collect(ctx context.Context) *float64 {
	n := float64(runtime.NumGoroutine())
	g.Logger.Debug().Float64("goroutines", n).Msg("Goroutine count collected")
	return &n
}

// Unit specifies the unit for the goroutine count metric.
func (g *GoroutineMetricCollector) Unit() string {
	return "count"
}

// Description provides a summary of the goroutine metric collected.
func (g *GoroutineMetricCollector) Description() string {
	return "Number of active goroutines in the relay process."
}
