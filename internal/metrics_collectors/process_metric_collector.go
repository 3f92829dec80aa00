package metrics_collectors

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"
)

const (
	ProcessCPUMetric    = "process_cpu"
	ProcessMemoryMetric = "process_memory"
)

// ProcessCPUCollector collects the CPU usage of the current process.
type ProcessCPUCollector struct {
	Logger zerolog.Logger
}

func (p *ProcessCPUCollector) Name() string {
	return ProcessCPUMetric
}

func (p *ProcessCPUCollector) Collect(ctx context.Context) *float64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		p.Logger.Error().Err(err).Msg("Failed to open own process")
		return nil
	}
	cpuPercent, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		p.Logger.Warn().Err(err).Int32("pid", proc.Pid).Msg("Failed to get CPU usage")
		return nil
	}
	return &cpuPercent
}

func (p *ProcessCPUCollector) Unit() string {
	return "percentage"
}

func (p *ProcessCPUCollector) Description() string {
	return "CPU usage (%) of the relay process since it started."
}

// ProcessMemoryCollector collects the resident set size of the current process.
type ProcessMemoryCollector struct {
	Logger zerolog.Logger
}

func (p *ProcessMemoryCollector) Name() string {
	return ProcessMemoryMetric
}

func (p *ProcessMemoryCollector) Collect(ctx context.Context) *float64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		p.Logger.Error().Err(err).Msg("Failed to open own process")
		return nil
	}
	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		p.Logger.Warn().Err(err).Int32("pid", proc.Pid).Msg("Failed to get memory information")
		return nil
	}
	rss := float64(memInfo.RSS)
	return &rss
}

func (p *ProcessMemoryCollector) Unit() string {
	return "bytes"
}

func (p *ProcessMemoryCollector) Description() string {
	return "Resident memory of the relay process."
}

// NewDefaultRegistry registers every relay process collector.
func NewDefaultRegistry(logger zerolog.Logger) *MetricsRegistry {
	r := NewMetricsRegistry()
	r.Register(&GoroutineMetricCollector{Logger: logger})
	r.Register(&ProcessCPUCollector{Logger: logger})
	r.Register(&ProcessMemoryCollector{Logger: logger})
	return r
}
