// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package performance_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/ringbuffer/pkg/errors"
	"github.com/antimetal/ringbuffer/pkg/performance"
	_ "github.com/antimetal/ringbuffer/pkg/performance/collectors"
)

// fakeCollector implements the PointCollector interface for testing
type fakeCollector struct {
	performance.BaseCollector
	calls   atomic.Int32
	collect func(call int) (any, error)
}

func newFakeCollector(metricType performance.MetricType, collect func(call int) (any, error)) *fakeCollector {
	return &fakeCollector{
		BaseCollector: performance.NewBaseCollector(metricType, "fake-"+string(metricType), logr.Discard(), performance.CollectionConfig{}),
		collect:       collect,
	}
}

func (f *fakeCollector) Collect(ctx context.Context) (any, error) {
	return f.collect(int(f.calls.Add(1)))
}

func loadOK(call int) (any, error) {
	return &performance.LoadStats{Load1Min: float64(call)}, nil
}

func newTestManager(t *testing.T, collectors ...performance.PointCollector) *performance.Manager {
	t.Helper()
	m, err := performance.NewManager(performance.ManagerOptions{
		Config: performance.CollectionConfig{
			Interval:        10 * time.Millisecond,
			HistoryCapacity: 4,
			MaxRetries:      2,
			RetryInterval:   time.Millisecond,
		},
		Logger:     testr.New(t),
		NodeName:   "test-node",
		Collectors: collectors,
	})
	require.NoError(t, err)
	return m
}

func TestNewManager(t *testing.T) {
	t.Run("logger is required", func(t *testing.T) {
		_, err := performance.NewManager(performance.ManagerOptions{})
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("no collectors", func(t *testing.T) {
		_, err := performance.NewManager(performance.ManagerOptions{
			Logger:     testr.New(t),
			NodeName:   "n",
			Collectors: []performance.PointCollector{},
		})
		assert.ErrorContains(t, err, "no collectors enabled")
	})

	t.Run("invalid history capacity", func(t *testing.T) {
		_, err := performance.NewManager(performance.ManagerOptions{
			Config:     performance.CollectionConfig{HistoryCapacity: -1},
			Logger:     testr.New(t),
			NodeName:   "n",
			Collectors: []performance.PointCollector{newFakeCollector(performance.MetricTypeLoad, loadOK)},
		})
		assert.ErrorIs(t, err, errors.ErrInvalidCapacity)
	})

	t.Run("defaults", func(t *testing.T) {
		m := newTestManager(t, newFakeCollector(performance.MetricTypeLoad, loadOK))
		assert.Equal(t, "test-node", m.GetNodeName())
		assert.Equal(t, 4, m.History().Capacity())
		assert.Equal(t, performance.CollectorStatusDisabled, m.Stats()[performance.MetricTypeLoad].Status)
	})

	t.Run("collectors from registry", func(t *testing.T) {
		t.Setenv("HOST_PROC", "")
		procDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(procDir, "loadavg"), []byte("0.50 1.25 2.75 2/1234 12345"), 0644))

		m, err := performance.NewManager(performance.ManagerOptions{
			Config: performance.CollectionConfig{
				HostProcPath:      procDir,
				HistoryCapacity:   8,
				EnabledCollectors: map[performance.MetricType]bool{performance.MetricTypeLoad: true},
			},
			Logger:   testr.New(t),
			NodeName: "n",
		})
		require.NoError(t, err)
		require.NoError(t, m.SampleOnce(context.Background()))

		latest, ok := m.History().Latest("load.15min")
		assert.True(t, ok)
		assert.Equal(t, 2.75, latest.Value)
	})
}

func TestManager_SampleOnce(t *testing.T) {
	t.Run("records every series", func(t *testing.T) {
		m := newTestManager(t,
			newFakeCollector(performance.MetricTypeLoad, loadOK),
			newFakeCollector(performance.MetricTypeMemory, func(int) (any, error) {
				return &performance.MemoryStats{MemTotal: 100, MemAvailable: 40}, nil
			}),
		)

		for i := 0; i < 6; i++ {
			require.NoError(t, m.SampleOnce(context.Background()))
		}

		window := m.History().Snapshot("load.1min")
		require.Len(t, window, 4)
		assert.Equal(t, []float64{3, 4, 5, 6}, values(window))

		used, ok := m.History().Latest("memory.used_bytes")
		assert.True(t, ok)
		assert.Equal(t, 60.0, used.Value)

		// all series of a round share a timestamp
		load, _ := m.History().Latest("load.5min")
		assert.Equal(t, load.Time, used.Time)

		stat := m.Stats()[performance.MetricTypeLoad]
		assert.Equal(t, performance.CollectorStatusActive, stat.Status)
		assert.Equal(t, 1, stat.Attempts)
	})

	t.Run("failing collector does not block others", func(t *testing.T) {
		broken := newFakeCollector(performance.MetricTypeCPU, func(int) (any, error) {
			return nil, errors.New("parse failure")
		})
		m := newTestManager(t, broken, newFakeCollector(performance.MetricTypeLoad, loadOK))

		err := m.SampleOnce(context.Background())
		assert.ErrorContains(t, err, "cpu: parse failure")
		assert.Equal(t, int32(1), broken.calls.Load(), "permanent errors are not retried")
		assert.Equal(t, 1, m.History().Len("load.1min"))

		stat := m.Stats()[performance.MetricTypeCPU]
		assert.Equal(t, performance.CollectorStatusFailed, stat.Status)
		assert.Error(t, stat.Error)
	})

	t.Run("transient failure is retried", func(t *testing.T) {
		flaky := newFakeCollector(performance.MetricTypeLoad, func(call int) (any, error) {
			if call == 1 {
				return nil, errors.NewRetryable("file busy")
			}
			return loadOK(call)
		})
		m := newTestManager(t, flaky)

		require.NoError(t, m.SampleOnce(context.Background()))
		assert.Equal(t, 2, m.Stats()[performance.MetricTypeLoad].Attempts)
		latest, _ := m.History().Latest("load.1min")
		assert.Equal(t, 2.0, latest.Value)
	})

	t.Run("retries are bounded", func(t *testing.T) {
		flaky := newFakeCollector(performance.MetricTypeLoad, func(int) (any, error) {
			return nil, errors.NewRetryable("file busy")
		})
		m := newTestManager(t, flaky)

		assert.Error(t, m.SampleOnce(context.Background()))
		assert.Equal(t, int32(3), flaky.calls.Load())
		assert.Zero(t, m.History().Len("load.1min"))
	})

	t.Run("data without series", func(t *testing.T) {
		m := newTestManager(t, newFakeCollector(performance.MetricTypeLoad, func(int) (any, error) {
			return "not a series", nil
		}))
		assert.ErrorContains(t, m.SampleOnce(context.Background()), "has no series")
	})
}

func TestManager_Run(t *testing.T) {
	m := newTestManager(t, newFakeCollector(performance.MetricTypeLoad, loadOK))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return m.History().Len("load.1min") == 4
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func values(samples []performance.Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Value
	}
	return out
}
