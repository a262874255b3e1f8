// Package jobtable correlates backend job ids with their pending completion handles.
package jobtable

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"

	"github.com/c360/genstream/errors"
	"github.com/c360/genstream/metric"
)

const defaultEarlyCapacity = 128

// Table maps job ids to pending handles. Register, Resolve and Len are safe
// for concurrent use and never block each other for different ids; Clear
// excludes them while it aborts every pending handle.
type Table struct {
	// mu is held shared by Register/Resolve and exclusively by Clear
	mu      sync.RWMutex
	closed  bool
	pending sync.Map // job id -> *Handle
	count   atomic.Int64

	// early remembers terminal events that arrived before Register for the
	// same id, which happens when the backend finishes a job before the
	// submission response is processed.
	early *lru.Cache

	logger  *slog.Logger
	metrics *metric.Metrics
}

// Option configures a Table
type Option func(*Table) error

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) error {
		if logger != nil {
			t.logger = logger
		}
		return nil
	}
}

// WithMetrics records resolutions and the pending gauge
func WithMetrics(m *metric.Metrics) Option {
	return func(t *Table) error {
		t.metrics = m
		return nil
	}
}

// WithEarlyCapacity sets how many unmatched terminal events are remembered
func WithEarlyCapacity(n int) Option {
	return func(t *Table) error {
		if n <= 0 {
			return errors.WrapInvalid(fmt.Errorf("early capacity must be positive, got %d", n),
				"Table", "WithEarlyCapacity", "validate option")
		}
		cache, err := lru.New(n)
		if err != nil {
			return err
		}
		t.early = cache
		return nil
	}
}

// New creates an empty table
func New(opts ...Option) (*Table, error) {
	t := &Table{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if t.early == nil {
		cache, err := lru.New(defaultEarlyCapacity)
		if err != nil {
			return nil, err
		}
		t.early = cache
	}
	t.logger = t.logger.With("component", "jobtable")
	return t, nil
}

// Register inserts a pending job and returns its handle. It fails with
// ErrDuplicateJob if the id is already pending and ErrClosed after Clear.
func (t *Table) Register(jobID string) (*Handle, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, errors.WrapFatal(errors.ErrClosed, "Table", "Register", "register job "+jobID)
	}

	h := newHandle(jobID)
	if _, loaded := t.pending.LoadOrStore(jobID, h); loaded {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %s", errors.ErrDuplicateJob, jobID),
			"Table", "Register", "register job")
	}
	t.metrics.RecordPending(int(t.count.Add(1)))

	// Resolve publishes to early before re-checking pending, and Register
	// publishes to pending before checking early, so one side always sees
	// the other.
	if t.early.Contains(jobID) {
		t.early.Remove(jobID)
		if t.take(jobID, Completed) {
			t.logger.Debug("Job finished before registration", "job_id", jobID)
		}
	}

	return h, nil
}

// Resolve completes the pending job for jobID. It reports whether a pending
// handle was resolved by this call. Unknown ids are logged and remembered
// briefly in case their registration is still in flight.
func (t *Table) Resolve(jobID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return false
	}

	if t.take(jobID, Completed) {
		return true
	}

	t.early.Add(jobID, struct{}{})
	if t.take(jobID, Completed) {
		t.early.Remove(jobID)
		return true
	}

	t.logger.Debug("Terminal event for unknown job", "job_id", jobID)
	return false
}

func (t *Table) take(jobID string, outcome Outcome) bool {
	v, ok := t.pending.LoadAndDelete(jobID)
	if !ok {
		return false
	}
	t.metrics.RecordPending(int(t.count.Add(-1)))

	if !v.(*Handle).resolve(outcome) {
		return false
	}
	t.metrics.RecordResolved(outcome.String())
	return true
}

// Clear aborts every pending handle and closes the table. Later calls to
// Register fail with ErrClosed. Clear is idempotent and returns the number
// of handles it aborted.
func (t *Table) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	aborted := 0
	t.pending.Range(func(key, _ any) bool {
		if t.take(key.(string), Aborted) {
			aborted++
		}
		return true
	})
	t.early.Purge()

	if aborted > 0 {
		t.logger.Info("Aborted pending jobs", "count", aborted)
	}
	return aborted
}

// Len returns the number of pending jobs
func (t *Table) Len() int {
	return int(t.count.Load())
}
