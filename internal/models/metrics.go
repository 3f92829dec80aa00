package models

import "time"

// RelayStats is the snapshot served by the relay's stats endpoint.
type RelayStats struct {
	Timestamp   time.Time      `json:"timestamp"`
	Version     string         `json:"version"`
	Connections int            `json:"connections"`
	Channels    map[string]int `json:"channels"` // channel name -> member count
	Process     ProcessMetrics `json:"process"`
}

// ProcessMetrics contains metrics for the relay process itself
type ProcessMetrics struct {
	Goroutines *float64 `json:"goroutines,omitempty"`
	CPUUsage   *float64 `json:"cpu_usage,omitempty"`
	Memory     *float64 `json:"memory_rss_bytes,omitempty"`
}
