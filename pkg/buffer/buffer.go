package buffer

// Buffer is a fixed-capacity FIFO of items of type T.
type Buffer[T any] interface {
	// Write adds an item. When the buffer is full the oldest item is
	// discarded. Returns ErrClosed after Close.
	Write(item T) error

	// Read removes and returns the oldest item.
	Read() (T, bool)

	// Latest returns the newest item without removing it.
	Latest() (T, bool)

	// Snapshot returns the buffered items, oldest first, without removing them.
	Snapshot() []T

	// Len returns the current number of items.
	Len() int

	// Capacity returns the maximum number of items.
	Capacity() int

	// Dropped returns how many items were discarded to make room.
	Dropped() int64

	// Clear removes all items.
	Clear()

	// Close clears the buffer and rejects further writes.
	Close() error
}

// DropCallback is called, outside the buffer lock, with each discarded item.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a ring buffer with the given capacity.
// A capacity below one is raised to one.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) Buffer[T] {
	return newCircularBuffer(capacity, applyOptions(options...))
}
