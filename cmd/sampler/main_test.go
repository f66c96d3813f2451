// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/ringbuffer/pkg/errors"
	"github.com/antimetal/ringbuffer/pkg/performance"
)

func TestEnabledCollectors(t *testing.T) {
	t.Run("empty enables all registered", func(t *testing.T) {
		enabled, err := enabledCollectors("")
		require.NoError(t, err)
		assert.Equal(t, map[performance.MetricType]bool{
			performance.MetricTypeCPU:    true,
			performance.MetricTypeLoad:   true,
			performance.MetricTypeMemory: true,
		}, enabled)
	})

	t.Run("subset", func(t *testing.T) {
		enabled, err := enabledCollectors(" load, memory ")
		require.NoError(t, err)
		assert.Equal(t, map[performance.MetricType]bool{
			performance.MetricTypeLoad:   true,
			performance.MetricTypeMemory: true,
		}, enabled)
	})

	t.Run("trailing comma", func(t *testing.T) {
		enabled, err := enabledCollectors("load, ,")
		require.NoError(t, err)
		assert.Equal(t, map[performance.MetricType]bool{
			performance.MetricTypeLoad: true,
		}, enabled)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := enabledCollectors("load,disk")
		assert.ErrorContains(t, err, "unknown metric types [disk]")
	})
}

func TestCheckCapacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		wantErr  bool
	}{
		{name: "positive", capacity: 1},
		{name: "zero", capacity: 0, wantErr: true},
		{name: "negative", capacity: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkCapacity(tt.capacity)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrInvalidCapacity)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func writeCapacityFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestReadCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capacity")

	writeCapacityFile(t, path, "128\n")
	n, err := readCapacity(path)
	require.NoError(t, err)
	assert.Equal(t, 128, n)

	writeCapacityFile(t, path, "0")
	_, err = readCapacity(path)
	assert.ErrorIs(t, err, errors.ErrInvalidCapacity)

	writeCapacityFile(t, path, "lots")
	_, err = readCapacity(path)
	assert.ErrorContains(t, err, "failed to parse capacity")

	_, err = readCapacity(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReloadCapacity(t *testing.T) {
	history, err := performance.NewHistory(4)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		history.Record("load.1min", performance.Sample{Value: float64(i)})
	}

	path := filepath.Join(t.TempDir(), "capacity")
	logger := testr.New(t)

	writeCapacityFile(t, path, "2")
	require.NoError(t, reloadCapacity(logger, history, path))
	assert.Equal(t, 2, history.Capacity())
	assert.Equal(t, []float64{2, 3}, values(history.Snapshot("load.1min")))

	writeCapacityFile(t, path, "8")
	require.NoError(t, reloadCapacity(logger, history, path))
	assert.Equal(t, 8, history.Capacity())
	history.Record("load.1min", performance.Sample{Value: 4})
	assert.Equal(t, []float64{2, 3, 4}, values(history.Snapshot("load.1min")))

	writeCapacityFile(t, path, "-3")
	assert.ErrorIs(t, reloadCapacity(logger, history, path), errors.ErrInvalidCapacity)
	assert.Equal(t, 8, history.Capacity())
}

func values(samples []performance.Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Value
	}
	return out
}
