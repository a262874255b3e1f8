package worker

import "errors"

// Pool errors
var (
	ErrNilProcessor       = errors.New("worker: nil processor")
	ErrPoolNotStarted     = errors.New("worker: pool not started")
	ErrPoolAlreadyStarted = errors.New("worker: pool already started")
	ErrPoolStopped        = errors.New("worker: pool stopped")
	// ErrQueueFull is returned by Submit instead of blocking
	ErrQueueFull = errors.New("worker: queue full")
	// ErrStopTimeout means queued work was still running when Stop gave up
	ErrStopTimeout = errors.New("worker: stop timed out")
)
