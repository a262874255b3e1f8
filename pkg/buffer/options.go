package buffer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures buffer behavior.
type Option[T any] func(*bufferOptions[T])

type bufferOptions[T any] struct {
	dropCallback DropCallback[T]
	dropCounter  prometheus.Counter
}

// WithDropCallback sets a callback invoked with every discarded item,
// including the items removed by Clear.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *bufferOptions[T]) {
		opts.dropCallback = callback
	}
}

// WithDropCounter increments counter whenever a full buffer discards an item.
// A nil counter is ignored.
func WithDropCounter[T any](counter prometheus.Counter) Option[T] {
	return func(opts *bufferOptions[T]) {
		opts.dropCounter = counter
	}
}

func applyOptions[T any](options ...Option[T]) *bufferOptions[T] {
	opts := &bufferOptions[T]{}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
