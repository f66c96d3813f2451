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

	"github.com/go-logr/logr"

	"github.com/antimetal/ringbuffer/pkg/errors"
	"github.com/antimetal/ringbuffer/pkg/performance"
)

func init() {
	performance.Register(performance.MetricTypeMemory,
		func(logger logr.Logger, config performance.CollectionConfig) (performance.PointCollector, error) {
			return NewMemoryCollector(logger, config)
		},
	)
}

// Compile-time interface check
var _ performance.PointCollector = (*MemoryCollector)(nil)

// MemoryCollector collects runtime memory statistics from /proc/meminfo.
//
// Values are reported by the kernel in kB and converted to bytes.
//
// Reference: https://www.kernel.org/doc/html/latest/filesystems/proc.html#meminfo
type MemoryCollector struct {
	performance.BaseCollector
	meminfoPath string
}

func NewMemoryCollector(logger logr.Logger, config performance.CollectionConfig) (*MemoryCollector, error) {
	if err := validateProcPath(config.HostProcPath); err != nil {
		return nil, err
	}

	return &MemoryCollector{
		BaseCollector: performance.NewBaseCollector(
			performance.MetricTypeMemory,
			"System Memory Collector",
			logger,
			config,
		),
		meminfoPath: filepath.Join(config.HostProcPath, "meminfo"),
	}, nil
}

// Collect performs a one-shot collection of memory statistics
func (c *MemoryCollector) Collect(ctx context.Context) (any, error) {
	stats, err := c.collectMemoryStats()
	if err != nil {
		return nil, fmt.Errorf("failed to collect memory stats: %w", err)
	}
	return stats, nil
}

// collectMemoryStats parses lines of the form "FieldName:   value kB".
// Unknown fields are skipped and unparsable values are left at zero.
func (c *MemoryCollector) collectMemoryStats() (*performance.MemoryStats, error) {
	file, err := os.Open(c.meminfoPath)
	if err != nil {
		return nil, errors.MarkRetryable(fmt.Errorf("failed to open %s: %w", c.meminfoPath, err))
	}
	defer file.Close()

	stats := &performance.MemoryStats{}
	fields := map[string]*uint64{
		"MemTotal":     &stats.MemTotal,
		"MemFree":      &stats.MemFree,
		"MemAvailable": &stats.MemAvailable,
		"Buffers":      &stats.Buffers,
		"Cached":       &stats.Cached,
		"SwapTotal":    &stats.SwapTotal,
		"SwapFree":     &stats.SwapFree,
		"Dirty":        &stats.Dirty,
	}

	found := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		dst, ok := fields[strings.TrimSuffix(parts[0], ":")]
		if !ok {
			continue
		}
		value, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			c.Logger().V(2).Info("Failed to parse memory field value",
				"field", parts[0], "value", parts[1], "error", err)
			continue
		}
		*dst = value * 1024
		found++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.MarkRetryable(fmt.Errorf("error reading %s: %w", c.meminfoPath, err))
	}
	if found == 0 {
		return nil, fmt.Errorf("no memory statistics found in %s", c.meminfoPath)
	}

	c.Logger().V(1).Info("Collected memory statistics", "fields", found)
	return stats, nil
}
