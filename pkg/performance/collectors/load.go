// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package collectors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/antimetal/ringbuffer/pkg/errors"
	"github.com/antimetal/ringbuffer/pkg/performance"
)

func init() {
	performance.Register(performance.MetricTypeLoad,
		func(logger logr.Logger, config performance.CollectionConfig) (performance.PointCollector, error) {
			return NewLoadCollector(logger, config)
		},
	)
}

// Compile-time interface check
var _ performance.PointCollector = (*LoadCollector)(nil)

// LoadCollector collects system load statistics from /proc/loadavg and /proc/uptime
// Reference: https://www.kernel.org/doc/html/latest/filesystems/proc.html#proc-loadavg
type LoadCollector struct {
	performance.BaseCollector
	loadavgPath string
	uptimePath  string
}

func NewLoadCollector(logger logr.Logger, config performance.CollectionConfig) (*LoadCollector, error) {
	if err := validateProcPath(config.HostProcPath); err != nil {
		return nil, err
	}

	return &LoadCollector{
		BaseCollector: performance.NewBaseCollector(
			performance.MetricTypeLoad,
			"System Load Collector",
			logger,
			config,
		),
		loadavgPath: filepath.Join(config.HostProcPath, "loadavg"),
		uptimePath:  filepath.Join(config.HostProcPath, "uptime"),
	}, nil
}

func (c *LoadCollector) Collect(ctx context.Context) (any, error) {
	return c.collectLoadStats()
}

// collectLoadStats parses /proc/loadavg and, if present, /proc/uptime.
//
// /proc/loadavg: load1 load5 load15 nr_running/nr_threads last_pid
// /proc/uptime:  uptime_seconds idle_seconds
//
// A missing or malformed uptime file only leaves Uptime at zero.
func (c *LoadCollector) collectLoadStats() (*performance.LoadStats, error) {
	data, err := os.ReadFile(c.loadavgPath)
	if err != nil {
		return nil, errors.MarkRetryable(fmt.Errorf("failed to read %s: %w", c.loadavgPath, err))
	}

	fields := strings.Fields(string(data))
	if len(fields) < 5 {
		return nil, fmt.Errorf("unexpected format in %s: got %d fields, expected 5: %q",
			c.loadavgPath, len(fields), strings.TrimSpace(string(data)))
	}

	stats := &performance.LoadStats{}
	loads := []*float64{&stats.Load1Min, &stats.Load5Min, &stats.Load15Min}
	for i, dst := range loads {
		if *dst, err = strconv.ParseFloat(fields[i], 64); err != nil {
			return nil, fmt.Errorf("failed to parse load average %d from %q: %w", i+1, fields[i], err)
		}
	}

	running, total, ok := strings.Cut(fields[3], "/")
	if !ok {
		return nil, fmt.Errorf("unexpected process count format: expected 'running/total', got %q", fields[3])
	}
	if stats.RunningProcs, err = parseInt32(running); err != nil {
		return nil, fmt.Errorf("failed to parse running process count: %w", err)
	}
	if stats.TotalProcs, err = parseInt32(total); err != nil {
		return nil, fmt.Errorf("failed to parse total process count: %w", err)
	}
	if stats.LastPID, err = parseInt32(fields[4]); err != nil {
		return nil, fmt.Errorf("failed to parse last PID: %w", err)
	}

	stats.Uptime = c.readUptime()
	return stats, nil
}

func (c *LoadCollector) readUptime() time.Duration {
	data, err := os.ReadFile(c.uptimePath)
	if err != nil {
		c.Logger().V(1).Info("Failed to read uptime file (continuing without uptime)", "path", c.uptimePath, "error", err)
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		c.Logger().V(1).Info("Unexpected uptime format", "path", c.uptimePath, "fields", len(fields))
		return 0
	}
	seconds, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		c.Logger().V(1).Info("Failed to parse uptime", "value", fields[0], "error", err)
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

func validateProcPath(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("HostProcPath must be an absolute path, got: %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("HostProcPath validation failed: %w", err)
	}
	return nil
}
