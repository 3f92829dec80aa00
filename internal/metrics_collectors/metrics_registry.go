package metrics_collectors

import (
	"context"

	"github.com/kw-96/AutoKit-sub000/internal/models"
)

// The registry manages the collectors reported by the relay stats endpoint.
type MetricsRegistry struct {
	collectors map[string]MetricCollector
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		collectors: make(map[string]MetricCollector),
	}
}

// Register adds a new metric collector to the registry.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	r.collectors[collector.Name()] = collector
}

// GetCollectors returns all the metric collectors registered in the registry.
func (r *MetricsRegistry) GetCollectors() map[string]MetricCollector {
	return r.collectors
}

// Snapshot runs every collector and maps the known ones onto ProcessMetrics.
func (r *MetricsRegistry) Snapshot(ctx context.Context) models.ProcessMetrics {
	var pm models.ProcessMetrics
	for name, collector := range r.collectors {
		value := collector.Collect(ctx)
		switch name {
		case GoroutinesMetric:
			pm.Goroutines = value
		case ProcessCPUMetric:
			pm.CPUUsage = value
		case ProcessMemoryMetric:
			pm.Memory = value
		}
	}
	return pm
}
