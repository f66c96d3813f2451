// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package collectors

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/antimetal/ringbuffer/pkg/errors"
	"github.com/antimetal/ringbuffer/pkg/performance"
)

func init() {
	performance.Register(performance.MetricTypeCPU,
		func(logger logr.Logger, config performance.CollectionConfig) (performance.PointCollector, error) {
			return NewCPUCollector(logger, config)
		},
	)
}

// Compile-time interface check
var _ performance.PointCollector = (*CPUCollector)(nil)

// CPUCollector collects aggregate CPU time from the "cpu" line of /proc/stat
// and derives utilization from the change since the previous collection.
// The first collection reports the average since boot.
//
// Reference: https://www.kernel.org/doc/html/latest/filesystems/proc.html#proc-stat
type CPUCollector struct {
	performance.BaseCollector
	statPath string

	mu   sync.Mutex
	prev *performance.CPUStats
}

func NewCPUCollector(logger logr.Logger, config performance.CollectionConfig) (*CPUCollector, error) {
	if err := validateProcPath(config.HostProcPath); err != nil {
		return nil, err
	}

	return &CPUCollector{
		BaseCollector: performance.NewBaseCollector(
			performance.MetricTypeCPU,
			"CPU Statistics Collector",
			logger,
			config,
		),
		statPath: filepath.Join(config.HostProcPath, "stat"),
	}, nil
}

// Collect performs a one-shot collection of CPU statistics
func (c *CPUCollector) Collect(ctx context.Context) (any, error) {
	stats, err := c.readAggregate()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	computeUtilization(stats, c.prev)
	c.prev = stats
	return stats, nil
}

// readAggregate parses
//
//	cpu user nice system idle iowait irq softirq [steal ...]
//
// Values are in USER_HZ units.
func (c *CPUCollector) readAggregate() (*performance.CPUStats, error) {
	file, err := os.Open(c.statPath)
	if err != nil {
		return nil, errors.MarkRetryable(fmt.Errorf("failed to open %s: %w", c.statPath, err))
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] != "cpu" {
			continue
		}
		if len(fields) < 8 {
			return nil, fmt.Errorf("unexpected cpu line in %s: got %d fields, expected at least 8", c.statPath, len(fields))
		}

		stats := &performance.CPUStats{}
		dst := []*uint64{
			&stats.User, &stats.Nice, &stats.System, &stats.Idle,
			&stats.IOWait, &stats.IRQ, &stats.SoftIRQ, &stats.Steal,
		}
		for i, field := range fields[1:] {
			if i >= len(dst) {
				break
			}
			v, err := strconv.ParseUint(field, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse cpu field %d from %q: %w", i+1, field, err)
			}
			*dst[i] = v
		}
		return stats, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.MarkRetryable(fmt.Errorf("error reading %s: %w", c.statPath, err))
	}
	return nil, fmt.Errorf("no aggregate cpu line found in %s", c.statPath)
}

func computeUtilization(cur, prev *performance.CPUStats) {
	total := cur.Total()
	idle := cur.Idle + cur.IOWait
	iowait := cur.IOWait
	// Counters only move forward; a reset (e.g. CPU hotplug) falls back to
	// the since-boot figures.
	if prev != nil && total > prev.Total() && idle >= prev.Idle+prev.IOWait && iowait >= prev.IOWait {
		total -= prev.Total()
		idle -= prev.Idle + prev.IOWait
		iowait -= prev.IOWait
	}
	if total == 0 {
		return
	}
	cur.Utilization = 100 * float64(total-idle) / float64(total)
	cur.IOWaitPercent = 100 * float64(iowait) / float64(total)
}
