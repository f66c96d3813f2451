// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package performance

import (
	"time"

	"github.com/antimetal/ringbuffer/pkg/ringbuffer"
)

// MetricType represents the type of performance metric
type MetricType string

const (
	MetricTypeLoad   MetricType = "load"
	MetricTypeMemory MetricType = "memory"
	MetricTypeCPU    MetricType = "cpu"
)

// CollectorStatus represents the operational status of a collector
type CollectorStatus string

const (
	CollectorStatusActive   CollectorStatus = "active"
	CollectorStatusFailed   CollectorStatus = "failed"
	CollectorStatusDisabled CollectorStatus = "disabled"
)

// CollectorStat tracks the outcome of the most recent collection of a collector
type CollectorStat struct {
	Status   CollectorStatus
	Duration time.Duration
	Attempts int
	Error    error
}

// Sample is a single timestamped value of a series
type Sample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// SeriesSource is implemented by collected data that can be flattened into
// named numeric series.
type SeriesSource interface {
	Series() map[string]float64
}

// LoadStats represents system load information
type LoadStats struct {
	// Load averages from /proc/loadavg (1st, 2nd, 3rd fields)
	Load1Min  float64
	Load5Min  float64
	Load15Min float64
	// Running/total processes from /proc/loadavg (4th field, e.g., "2/1234")
	RunningProcs int32
	TotalProcs   int32
	// Last PID from /proc/loadavg (5th field)
	LastPID int32
	// System uptime from /proc/uptime (1st field in seconds)
	Uptime time.Duration
}

func (s *LoadStats) Series() map[string]float64 {
	return map[string]float64{
		"load.1min":          s.Load1Min,
		"load.5min":          s.Load5Min,
		"load.15min":         s.Load15Min,
		"load.running_procs": float64(s.RunningProcs),
		"load.total_procs":   float64(s.TotalProcs),
	}
}

// MemoryStats represents memory usage from /proc/meminfo, in bytes
type MemoryStats struct {
	MemTotal     uint64
	MemFree      uint64
	MemAvailable uint64
	Buffers      uint64
	Cached       uint64
	SwapTotal    uint64
	SwapFree     uint64
	Dirty        uint64
}

// Used returns memory that is not available for new allocations.
func (s *MemoryStats) Used() uint64 {
	if s.MemAvailable > s.MemTotal {
		return 0
	}
	return s.MemTotal - s.MemAvailable
}

func (s *MemoryStats) Series() map[string]float64 {
	series := map[string]float64{
		"memory.total_bytes":     float64(s.MemTotal),
		"memory.available_bytes": float64(s.MemAvailable),
		"memory.used_bytes":      float64(s.Used()),
		"memory.cached_bytes":    float64(s.Cached),
		"memory.dirty_bytes":     float64(s.Dirty),
	}
	if s.SwapTotal > 0 && s.SwapFree <= s.SwapTotal {
		series["memory.swap_used_bytes"] = float64(s.SwapTotal - s.SwapFree)
	}
	return series
}

// CPUStats represents the aggregate "cpu" line of /proc/stat
type CPUStats struct {
	// Time spent in different CPU states (in USER_HZ units from /proc/stat)
	User    uint64
	Nice    uint64
	System  uint64
	Idle    uint64
	IOWait  uint64
	IRQ     uint64
	SoftIRQ uint64
	Steal   uint64
	// Calculated fields, percentages 0-100 over the interval since the
	// previous collection (or since boot for the first one)
	Utilization   float64
	IOWaitPercent float64
}

// Total returns the sum of all accounted CPU time
func (s *CPUStats) Total() uint64 {
	return s.User + s.Nice + s.System + s.Idle + s.IOWait + s.IRQ + s.SoftIRQ + s.Steal
}

func (s *CPUStats) Series() map[string]float64 {
	return map[string]float64{
		"cpu.utilization":    s.Utilization,
		"cpu.iowait_percent": s.IOWaitPercent,
	}
}

// CollectionConfig represents configuration for performance collection
type CollectionConfig struct {
	Interval          time.Duration
	EnabledCollectors map[MetricType]bool
	HostProcPath      string // Path to /proc (useful for containers)
	// HistoryCapacity is the number of samples kept per series
	HistoryCapacity int
	// MaxRetries bounds how often a transient collection failure is retried
	// within one sampling round
	MaxRetries    uint
	RetryInterval time.Duration
}

// DefaultCollectionConfig returns a default configuration
func DefaultCollectionConfig() CollectionConfig {
	return CollectionConfig{
		Interval: time.Second,
		EnabledCollectors: map[MetricType]bool{
			MetricTypeLoad:   true,
			MetricTypeMemory: true,
			MetricTypeCPU:    true,
		},
		HostProcPath:    "/proc",
		HistoryCapacity: ringbuffer.DefaultCapacity,
		MaxRetries:      3,
		RetryInterval:   100 * time.Millisecond,
	}
}

// ApplyDefaults fills in zero values with defaults
func (c *CollectionConfig) ApplyDefaults() {
	defaults := DefaultCollectionConfig()

	if c.Interval == 0 {
		c.Interval = defaults.Interval
	}
	if c.EnabledCollectors == nil {
		c.EnabledCollectors = defaults.EnabledCollectors
	}
	if c.HostProcPath == "" {
		c.HostProcPath = defaults.HostProcPath
	}
	if c.HistoryCapacity == 0 {
		c.HistoryCapacity = defaults.HistoryCapacity
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = defaults.RetryInterval
	}
}
