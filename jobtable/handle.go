package jobtable

import (
	"context"
	"sync"

	"github.com/c360/genstream/errors"
)

// Outcome is how a pending job ended
type Outcome int

const (
	// Pending means the job has not been resolved yet
	Pending Outcome = iota
	// Completed means the backend reported the terminal event
	Completed
	// Aborted means the table was cleared before the terminal event arrived
	Aborted
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Handle is the read side of a pending job. It is resolved exactly once.
type Handle struct {
	id      string
	done    chan struct{}
	once    sync.Once
	outcome Outcome
}

func newHandle(id string) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

// ID returns the job id
func (h *Handle) ID() string {
	return h.id
}

// Done is closed when the handle is resolved
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Outcome returns the resolution, or Pending if not yet resolved
func (h *Handle) Outcome() Outcome {
	select {
	case <-h.done:
		return h.outcome
	default:
		return Pending
	}
}

// Wait blocks until the handle is resolved or ctx ends. It returns nil on
// completion, ErrAborted when the table was cleared, or ctx.Err().
// Cancelling ctx stops only this wait; the job stays pending.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.result()
	default:
	}

	select {
	case <-h.done:
		return h.result()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) result() error {
	if h.outcome == Aborted {
		return errors.WrapFatal(errors.ErrAborted, "Handle", "Wait", "await job "+h.id)
	}
	return nil
}

// resolve reports whether this call performed the resolution
func (h *Handle) resolve(outcome Outcome) bool {
	resolved := false
	h.once.Do(func() {
		h.outcome = outcome
		close(h.done)
		resolved = true
	})
	return resolved
}
