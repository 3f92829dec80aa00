package metrics_collectors

import "context"

// MetricCollector defines a single relay process metric.
type MetricCollector interface {
	Name() string                         // Name of the metric (e.g., "goroutines", "memory")
	Collect(ctx context.Context) *float64 // Collect the metric value, nil when unavailable
	Unit() string                         // Unit of the metric (e.g., "percentage", "bytes")
	Description() string                  // Description of the metric
}
