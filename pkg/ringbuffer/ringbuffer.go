// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package ringbuffer provides a generic, fixed-capacity circular buffer that
// keeps the most recent N elements of a stream.
package ringbuffer

import (
	"fmt"

	"github.com/antimetal/ringbuffer/pkg/errors"
)

// DefaultCapacity is the capacity used by NewDefault.
const DefaultCapacity = 5000

// RingBuffer is a generic, thread-unsafe circular buffer implementation that
// overwrites oldest elements when capacity is reached.
//
// Elements are addressed either by logical offset, where 0 is the oldest live
// element, or by recency, where 0 is the newest. Once the buffer has been
// filled it is considered wrapped and every further write replaces the oldest
// element.
//
// This implementation is useful for scenarios where you want to keep only
// the most recent N items, such as:
//   - Recent log entries
//   - Latest measurements or samples
//   - Rolling window of events
//
// Note: This implementation is NOT thread-safe. If concurrent access is needed,
// synchronization must be handled externally.
type RingBuffer[T any] struct {
	data []T
	head int // next write position
	size int // current number of elements
}

// New creates a new ring buffer with the given capacity
func New[T any](capacity int) (*RingBuffer[T], error) {
	if err := validateCapacity(capacity); err != nil {
		return nil, err
	}
	return &RingBuffer[T]{
		data: make([]T, capacity),
	}, nil
}

// NewDefault creates a ring buffer with DefaultCapacity slots.
func NewDefault[T any]() *RingBuffer[T] {
	return &RingBuffer[T]{
		data: make([]T, DefaultCapacity),
	}
}

func validateCapacity(capacity int) error {
	if capacity <= 0 {
		return fmt.Errorf("%w: capacity must be greater than 0, got %d", errors.ErrInvalidCapacity, capacity)
	}
	return nil
}

func (r *RingBuffer[T]) outOfRange(i int) error {
	return fmt.Errorf("%w: index %d out of range [0, %d)", errors.ErrOutOfRange, i, r.size)
}

// Push adds an element to the ring buffer, overwriting oldest if full
func (r *RingBuffer[T]) Push(item T) {
	r.data[r.head] = item
	if r.head == len(r.data)-1 {
		r.head = 0
	} else {
		r.head++
	}
	if r.size < len(r.data) {
		r.size++
	}
}

// PushAll pushes items in order. It is equivalent to calling Push for each
// element; there is no atomicity across the batch.
func (r *RingBuffer[T]) PushAll(items ...T) {
	for _, item := range items {
		r.Push(item)
	}
}

// physical maps a logical offset to a slot in data. The offset must already
// be known to lie in [0, Cap()).
func (r *RingBuffer[T]) physical(i int) int {
	first := r.FirstIndex()
	if i >= len(r.data)-first {
		return i - (len(r.data) - first)
	}
	return first + i
}

// At returns the element at logical offset i, where 0 is the oldest element.
func (r *RingBuffer[T]) At(i int) (T, error) {
	p, err := r.Ptr(i)
	if err != nil {
		var zero T
		return zero, err
	}
	return *p, nil
}

// Ptr returns a pointer to the element at logical offset i. The pointer stays
// valid until the next SetCapacity, Reset or Clear.
func (r *RingBuffer[T]) Ptr(i int) (*T, error) {
	if i < 0 || i >= r.size {
		return nil, r.outOfRange(i)
	}
	return &r.data[r.physical(i)], nil
}

// Set replaces the element at logical offset i.
func (r *RingBuffer[T]) Set(i int, item T) error {
	p, err := r.Ptr(i)
	if err != nil {
		return err
	}
	*p = item
	return nil
}

// Last returns the most recently pushed element. ok is false if the buffer
// is empty.
func (r *RingBuffer[T]) Last() (item T, ok bool) {
	if r.size == 0 {
		return item, false
	}
	return r.data[r.LastIndex()], true
}

// LastAt returns the element i positions back from the newest one, so
// LastAt(0) is the newest and LastAt(Len()-1) the oldest.
func (r *RingBuffer[T]) LastAt(i int) (item T, ok bool) {
	slot, ok := r.LastSlot(i)
	if !ok {
		return item, false
	}
	return r.data[slot], true
}

// LastSlot returns the storage slot holding the element i positions back
// from the newest one.
func (r *RingBuffer[T]) LastSlot(i int) (int, bool) {
	logical := r.size - i - 1
	if i < 0 || logical < 0 {
		return 0, false
	}
	return r.physical(logical), true
}

// Window returns the newest n elements in chronological order (oldest to
// newest).
func (r *RingBuffer[T]) Window(n int) ([]T, error) {
	if n < 0 || n > r.size {
		return nil, fmt.Errorf("%w: window of %d elements, buffer holds %d", errors.ErrOutOfRange, n, r.size)
	}
	result := make([]T, n)
	for j := range result {
		result[j] = r.data[r.physical(r.size-n+j)]
	}
	return result, nil
}

// GetAll returns all elements in chronological order (oldest to newest)
func (r *RingBuffer[T]) GetAll() []T {
	if r.size == 0 {
		return []T{}
	}

	result := make([]T, r.size)

	// If buffer is not full, elements are from 0 to head-1
	if r.size < len(r.data) {
		copy(result, r.data[:r.size])
		return result
	}

	// If buffer is full, oldest element is at head position
	n := copy(result, r.data[r.head:])
	copy(result[n:], r.data[:r.head])

	return result
}

// SetCapacity reallocates the buffer with room for capacity elements.
//
// If capacity exceeds the current length every element is kept, in order,
// and the buffer is left not wrapped. Otherwise only the newest capacity
// elements survive and the buffer is left full.
func (r *RingBuffer[T]) SetCapacity(capacity int) error {
	if err := validateCapacity(capacity); err != nil {
		return err
	}

	data := make([]T, capacity)
	if capacity > r.size {
		for i := 0; i < r.size; i++ {
			data[i] = r.data[r.physical(i)]
		}
		r.head = r.size
	} else {
		skip := r.size - capacity
		for i := 0; i < capacity; i++ {
			data[i] = r.data[r.physical(skip+i)]
		}
		r.head = 0
		r.size = capacity
	}
	r.data = data
	return nil
}

// Clear removes all elements from the buffer
func (r *RingBuffer[T]) Clear() {
	r.size = 0
	r.head = 0
	// Clear the underlying data to help GC
	clear(r.data)
}

// Reset empties the buffer and reallocates it with the given capacity.
func (r *RingBuffer[T]) Reset(capacity int) error {
	if err := validateCapacity(capacity); err != nil {
		return err
	}
	r.data = make([]T, capacity)
	r.size = 0
	r.head = 0
	return nil
}

// Clone returns a deep copy of the buffer. Elements are copied by value.
func (r *RingBuffer[T]) Clone() *RingBuffer[T] {
	data := make([]T, len(r.data))
	copy(data, r.data)
	return &RingBuffer[T]{
		data: data,
		head: r.head,
		size: r.size,
	}
}

// Len returns the current number of elements in the buffer
func (r *RingBuffer[T]) Len() int {
	return r.size
}

// Cap returns the capacity of the buffer
func (r *RingBuffer[T]) Cap() int {
	return len(r.data)
}

// Wrapped reports whether the buffer is full, i.e. the next Push overwrites
// the oldest element.
func (r *RingBuffer[T]) Wrapped() bool {
	return r.size == len(r.data)
}

// CurrentIndex returns the slot the next Push writes to.
func (r *RingBuffer[T]) CurrentIndex() int {
	return r.head
}

// FirstIndex returns the slot of the oldest element.
func (r *RingBuffer[T]) FirstIndex() int {
	first := r.head - r.size
	if first < 0 {
		first += len(r.data)
	}
	return first
}

// LastIndex returns the slot of the newest element, or -1 if the buffer is
// empty.
func (r *RingBuffer[T]) LastIndex() int {
	if r.size == 0 {
		return -1
	}
	if r.head == 0 {
		return len(r.data) - 1
	}
	return r.head - 1
}

// Data exposes the underlying storage in slot order. Callers must not retain
// it across SetCapacity or Reset.
func (r *RingBuffer[T]) Data() []T {
	return r.data
}
