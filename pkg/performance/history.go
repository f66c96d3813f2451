// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package performance

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/antimetal/ringbuffer/pkg/ringbuffer"
)

// History keeps a sliding window of samples for every named series.
//
// Each series is backed by its own ring buffer of the same capacity. History
// serializes access to the buffers, so it is safe for concurrent use.
type History struct {
	mu       sync.RWMutex
	capacity int
	series   map[string]*ringbuffer.RingBuffer[Sample]
}

func NewHistory(capacity int) (*History, error) {
	// Validate once up front so Record never has to handle the error.
	if _, err := ringbuffer.New[Sample](capacity); err != nil {
		return nil, fmt.Errorf("invalid history capacity: %w", err)
	}
	return &History{
		capacity: capacity,
		series:   make(map[string]*ringbuffer.RingBuffer[Sample]),
	}, nil
}

// Record appends s to the named series, creating the series on first use.
func (h *History) Record(name string, s Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bufferLocked(name).Push(s)
}

// RecordAll appends one sample per series, all stamped with t.
func (h *History) RecordAll(t time.Time, values map[string]float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, v := range values {
		h.bufferLocked(name).Push(Sample{Time: t, Value: v})
	}
}

func (h *History) bufferLocked(name string) *ringbuffer.RingBuffer[Sample] {
	rb, ok := h.series[name]
	if !ok {
		// capacity was validated by NewHistory/Resize
		rb, _ = ringbuffer.New[Sample](h.capacity)
		h.series[name] = rb
	}
	return rb
}

// Latest returns the newest sample of a series.
func (h *History) Latest(name string) (Sample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rb, ok := h.series[name]
	if !ok {
		return Sample{}, false
	}
	return rb.Last()
}

// Window returns up to n of the newest samples of a series, oldest first.
func (h *History) Window(name string, n int) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rb, ok := h.series[name]
	if !ok || n <= 0 {
		return []Sample{}
	}
	// n is clamped to the buffer length so Window cannot fail
	window, _ := rb.Window(min(n, rb.Len()))
	return window
}

// Snapshot returns every retained sample of a series, oldest first.
func (h *History) Snapshot(name string) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rb, ok := h.series[name]
	if !ok {
		return []Sample{}
	}
	return rb.GetAll()
}

// Len returns the number of retained samples of a series.
func (h *History) Len(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if rb, ok := h.series[name]; ok {
		return rb.Len()
	}
	return 0
}

// Names returns the known series names, sorted.
func (h *History) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.series))
	for name := range h.series {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (h *History) Capacity() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.capacity
}

// Resize changes the capacity of every series. Shrinking keeps the newest
// samples.
func (h *History) Resize(capacity int) error {
	if _, err := ringbuffer.New[Sample](capacity); err != nil {
		return fmt.Errorf("invalid history capacity: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for name, rb := range h.series {
		if err := rb.SetCapacity(capacity); err != nil {
			return fmt.Errorf("failed to resize series %s: %w", name, err)
		}
	}
	h.capacity = capacity
	return nil
}

// Summary describes a window of samples
type Summary struct {
	Count  int     `json:"count"`
	Latest float64 `json:"latest"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
}

// Summarize computes min/max/mean over samples. The zero Summary is returned
// for an empty window.
func Summarize(samples []Sample) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	s := Summary{
		Count:  len(samples),
		Latest: samples[len(samples)-1].Value,
		Min:    math.Inf(1),
		Max:    math.Inf(-1),
	}
	var sum float64
	for _, sample := range samples {
		s.Min = math.Min(s.Min, sample.Value)
		s.Max = math.Max(s.Max, sample.Value)
		sum += sample.Value
	}
	s.Mean = sum / float64(len(samples))
	return s
}
