// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package performance

import (
	"context"
	"fmt"
	"maps"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/antimetal/ringbuffer/pkg/errors"
)

// Manager periodically runs point collectors and records their series into
// a History.
type Manager struct {
	config     CollectionConfig
	logger     logr.Logger
	collectors []PointCollector
	history    *History
	nodeName   string
	now        func() time.Time

	statsMu sync.Mutex
	stats   map[MetricType]CollectorStat
}

type ManagerOptions struct {
	Config   CollectionConfig
	Logger   logr.Logger
	NodeName string
	// Collectors overrides the registry lookup. When nil, one collector is
	// created per enabled metric type with a registered factory.
	Collectors []PointCollector
}

func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Logger.GetSink() == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Get node name from environment if not provided
	nodeName := opts.NodeName
	if nodeName == "" {
		nodeName = os.Getenv("NODE_NAME")
		if nodeName == "" {
			hostname, err := os.Hostname()
			if err != nil {
				return nil, fmt.Errorf("failed to get hostname: %w", err)
			}
			nodeName = hostname
		}
	}

	// Apply defaults to config
	config := opts.Config
	config.ApplyDefaults()

	// Override paths for containerized environments
	if os.Getenv("HOST_PROC") != "" {
		config.HostProcPath = os.Getenv("HOST_PROC")
	}

	history, err := NewHistory(config.HistoryCapacity)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger.WithName("performance-manager")
	collectors := opts.Collectors
	if collectors == nil {
		collectors, err = createCollectors(logger, config)
		if err != nil {
			return nil, err
		}
	}
	if len(collectors) == 0 {
		return nil, fmt.Errorf("no collectors enabled")
	}

	m := &Manager{
		config:     config,
		logger:     logger,
		collectors: collectors,
		history:    history,
		nodeName:   nodeName,
		now:        time.Now,
		stats:      make(map[MetricType]CollectorStat, len(collectors)),
	}
	for _, c := range collectors {
		m.stats[c.Type()] = CollectorStat{Status: CollectorStatusDisabled}
	}
	return m, nil
}

func createCollectors(logger logr.Logger, config CollectionConfig) ([]PointCollector, error) {
	var collectors []PointCollector
	for _, metricType := range RegisteredTypes() {
		if !config.EnabledCollectors[metricType] {
			continue
		}
		factory, err := GetCollector(metricType)
		if err != nil {
			return nil, err
		}
		collector, err := factory(logger, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s collector: %w", metricType, err)
		}
		collectors = append(collectors, collector)
	}
	return collectors, nil
}

type collectResult struct {
	collector PointCollector
	series    map[string]float64
	stat      CollectorStat
}

// SampleOnce runs every collector concurrently and records the resulting
// series under a single timestamp. A failing collector does not prevent the
// others from being recorded; all failures are returned joined.
func (m *Manager) SampleOnce(ctx context.Context) error {
	results := make([]collectResult, len(m.collectors))
	ts := m.now()

	var g errgroup.Group
	for i, collector := range m.collectors {
		g.Go(func() error {
			results[i] = m.collect(ctx, collector)
			return nil
		})
	}
	_ = g.Wait()

	m.statsMu.Lock()
	for _, r := range results {
		m.stats[r.collector.Type()] = r.stat
	}
	m.statsMu.Unlock()

	var errs []error
	for _, r := range results {
		if r.stat.Error != nil {
			m.logger.Error(r.stat.Error, "collection failed", "type", r.collector.Type(), "attempts", r.stat.Attempts)
			errs = append(errs, fmt.Errorf("%s: %w", r.collector.Type(), r.stat.Error))
			continue
		}
		m.history.RecordAll(ts, r.series)
		m.logger.V(1).Info("recorded sample", "type", r.collector.Type(), "series", len(r.series), "duration", r.stat.Duration)
	}
	return errors.Join(errs...)
}

func (m *Manager) collect(ctx context.Context, collector PointCollector) collectResult {
	start := time.Now()
	attempts := 0

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.config.RetryInterval

	series, err := backoff.Retry(ctx, func() (map[string]float64, error) {
		attempts++
		data, err := collector.Collect(ctx)
		if err != nil {
			if errors.Retryable(err) {
				m.logger.V(1).Info("transient collection failure, retrying", "type", collector.Type(), "error", err.Error())
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		source, ok := data.(SeriesSource)
		if !ok {
			return nil, backoff.Permanent(fmt.Errorf("collector %s returned %T, which has no series", collector.Name(), data))
		}
		return source.Series(), nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(m.config.MaxRetries+1))

	stat := CollectorStat{
		Status:   CollectorStatusActive,
		Duration: time.Since(start),
		Attempts: attempts,
	}
	if err != nil {
		stat.Status = CollectorStatusFailed
		stat.Error = err
	}
	return collectResult{collector: collector, series: series, stat: stat}
}

// Run samples every Interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.logger.Info("starting sampling", "interval", m.config.Interval, "collectors", len(m.collectors),
		"capacity", m.history.Capacity(), "node", m.nodeName)
	wait.UntilWithContext(ctx, func(ctx context.Context) {
		// failures are logged per collector by SampleOnce
		_ = m.SampleOnce(ctx)
	}, m.config.Interval)
	m.logger.Info("stopped sampling")
}

// History returns the sample history fed by this manager
func (m *Manager) History() *History {
	return m.history
}

// Stats returns the outcome of the latest collection per metric type
func (m *Manager) Stats() map[MetricType]CollectorStat {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return maps.Clone(m.stats)
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() CollectionConfig {
	return m.config
}

// GetNodeName returns the node name
func (m *Manager) GetNodeName() string {
	return m.nodeName
}
