package buffer

import (
	"sync"

	"github.com/c360/genstream/errors"
)

type circularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // oldest item
	dropped  int64
	closed   bool
	opts     *bufferOptions[T]
}

func newCircularBuffer[T any](capacity int, opts *bufferOptions[T]) *circularBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &circularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		opts:     opts,
	}
}

func (cb *circularBuffer[T]) Write(item T) error {
	var discarded []T
	defer func() { cb.notifyDropped(discarded) }()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return errors.WrapInvalid(errors.ErrClosed, "Buffer", "Write", "buffer closed")
	}

	if cb.size == cb.capacity {
		cb.dropped++
		if cb.opts.dropCounter != nil {
			cb.opts.dropCounter.Inc()
		}
		discarded = append(discarded, cb.popLocked())
	}

	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++
	return nil
}

func (cb *circularBuffer[T]) Read() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 {
		var zero T
		return zero, false
	}
	return cb.popLocked(), true
}

func (cb *circularBuffer[T]) popLocked() T {
	var zero T
	item := cb.items[cb.tail]
	cb.items[cb.tail] = zero
	cb.tail = (cb.tail + 1) % cb.capacity
	cb.size--
	return item
}

func (cb *circularBuffer[T]) Latest() (T, bool) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if cb.size == 0 {
		var zero T
		return zero, false
	}
	return cb.items[(cb.head-1+cb.capacity)%cb.capacity], true
}

func (cb *circularBuffer[T]) Snapshot() []T {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	out := make([]T, cb.size)
	for i := 0; i < cb.size; i++ {
		out[i] = cb.items[(cb.tail+i)%cb.capacity]
	}
	return out
}

func (cb *circularBuffer[T]) Len() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.size
}

func (cb *circularBuffer[T]) Capacity() int {
	return cb.capacity
}

func (cb *circularBuffer[T]) Dropped() int64 {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.dropped
}

func (cb *circularBuffer[T]) Clear() {
	cb.notifyDropped(cb.drain())
}

func (cb *circularBuffer[T]) drain() []T {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var removed []T
	if cb.opts.dropCallback != nil {
		removed = make([]T, 0, cb.size)
	}
	for cb.size > 0 {
		item := cb.popLocked()
		if removed != nil {
			removed = append(removed, item)
		}
	}
	cb.head, cb.tail = 0, 0
	return removed
}

func (cb *circularBuffer[T]) Close() error {
	cb.mu.Lock()
	cb.closed = true
	cb.mu.Unlock()

	cb.Clear()
	return nil
}

func (cb *circularBuffer[T]) notifyDropped(items []T) {
	if cb.opts.dropCallback == nil {
		return
	}
	for _, item := range items {
		cb.opts.dropCallback(item)
	}
}
