package client

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/genstream/metric"
	"github.com/c360/genstream/pkg/worker"
)

const subscriberStopTimeout = 5 * time.Second

// hub fans one notification topic out to its subscribers. Each subscriber
// owns a single-worker pool, so it sees notifications in arrival order and a
// slow subscriber only fills its own queue.
type hub[T any] struct {
	topic     string
	queueSize int
	logger    *slog.Logger
	metrics   *metric.Metrics
	registry  *metric.MetricsRegistry

	mu     sync.RWMutex
	subs   map[uint64]*subscriber[T]
	nextID uint64
	closed bool
}

type subscriber[T any] struct {
	fn     func(T)
	pool   *worker.Pool[T]
	active atomic.Bool
	once   sync.Once
}

// newHub creates a hub for topic. With a registry, every subscriber queue
// reports its depth and drops as genstream_subscriber_<topic>_* series
// labelled with the subscriber id.
func newHub[T any](topic string, queueSize int, logger *slog.Logger, metrics *metric.Metrics,
	registry *metric.MetricsRegistry) *hub[T] {
	return &hub[T]{
		topic:     topic,
		queueSize: queueSize,
		logger:    logger,
		metrics:   metrics,
		registry:  registry,
		subs:      make(map[uint64]*subscriber[T]),
	}
}

// subscribe registers fn and returns its unsubscribe function. Once
// unsubscribe returns, nothing still queued for fn is delivered. A call to
// fn that already started may still be running, so callers that tear down
// state fn touches guard it themselves.
func (h *hub[T]) subscribe(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	id := h.nextID
	h.nextID++

	s := &subscriber[T]{fn: fn}
	s.active.Store(true)
	opts := []worker.Option[T]{
		worker.WithDropHandler[T](func(T) {
			h.metrics.RecordNotificationDrop(h.topic)
		}),
	}
	if h.registry != nil {
		opts = append(opts,
			worker.WithMetricsRegistry[T](h.registry, "genstream_subscriber_"+h.topic),
			worker.WithMetricsLabels[T](prometheus.Labels{"subscriber": strconv.FormatUint(id, 10)}))
	}
	s.pool = worker.NewPool[T](1, h.queueSize, func(_ context.Context, v T) error {
		return h.deliver(s, v)
	}, opts...)

	h.subs[id] = s
	_ = s.pool.Start(context.Background())
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		h.stop(s, true)
	}
}

func (h *hub[T]) deliver(s *subscriber[T], v T) (err error) {
	if !s.active.Load() {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
			h.logger.Error("Subscriber panicked", "topic", h.topic, "panic", r)
		}
	}()
	s.fn(v)
	return nil
}

// stop drains the pool of s in the background so that an unsubscribe from
// inside the callback does not wait on itself. A deactivated subscriber
// skips whatever is still queued.
func (h *hub[T]) stop(s *subscriber[T], deactivate bool) {
	if deactivate {
		s.active.Store(false)
	}
	s.once.Do(func() {
		go func() {
			if err := s.pool.Stop(subscriberStopTimeout); err != nil {
				h.logger.Warn("Subscriber did not stop in time", "topic", h.topic, "error", err)
			}
		}()
	})
}

// publish queues v for every subscriber without blocking
func (h *hub[T]) publish(v T) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.subs {
		if err := s.pool.Submit(v); err != nil {
			h.logger.Debug("Notification dropped", "topic", h.topic, "error", err)
		}
	}
}

func (h *hub[T]) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// close removes every subscriber and waits for their queues to drain,
// bounded by ctx and subscriberStopTimeout. Later subscriptions are ignored.
// A queue still draining when time runs out is reported, not abandoned:
// its worker finishes in the background.
func (h *hub[T]) close(ctx context.Context) error {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*subscriber[T])
	h.closed = true
	h.mu.Unlock()

	timeout := subscriberStopTimeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = max(time.Until(deadline), 0)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)
	for id, s := range subs {
		s.once.Do(func() {}) // nothing left for a later unsubscribe to stop
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.pool.Stop(timeout); err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("%s subscriber %d: %w", h.topic, id, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return result.ErrorOrNil()
}
