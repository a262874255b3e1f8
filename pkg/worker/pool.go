package worker

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/genstream/metric"
)

// Pool is a bounded work queue drained by a fixed number of workers.
// With a single worker, items are processed in submission order.
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error

	workChan chan T
	metrics  *poolMetrics
	wg       sync.WaitGroup
	done     chan struct{}

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	onDrop          func(T)
	metricsRegistry *metric.MetricsRegistry
	metricsPrefix   string
	metricsLabels   prometheus.Labels
}

type poolMetrics struct {
	queueDepth prometheus.Gauge
	processed  prometheus.Counter
	dropped    prometheus.Counter
}

// Option represents a configuration option for the worker pool
type Option[T any] func(*Pool[T])

// WithMetricsRegistry registers queue metrics under the given prefix
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(p *Pool[T]) {
		p.metricsRegistry = registry
		p.metricsPrefix = prefix
	}
}

// WithMetricsLabels adds constant labels to the queue metrics, so several
// pools can share one prefix
func WithMetricsLabels[T any](labels prometheus.Labels) Option[T] {
	return func(p *Pool[T]) {
		p.metricsLabels = labels
	}
}

// WithDropHandler sets a callback invoked with items rejected by a full queue
func WithDropHandler[T any](fn func(T)) Option[T] {
	return func(p *Pool[T]) {
		p.onDrop = fn
	}
}

// NewPool creates a new worker pool
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	pool := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		workChan:  make(chan T, queueSize),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(pool)
	}

	if pool.metricsRegistry != nil && pool.metricsPrefix != "" {
		pool.initializeMetrics()
	}

	return pool
}

func (p *Pool[T]) initializeMetrics() {
	prefix := p.metricsPrefix

	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        prefix + "_queue_depth",
			Help:        "Current queue depth",
			ConstLabels: p.metricsLabels,
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        prefix + "_processed_total",
			Help:        "Total items processed",
			ConstLabels: p.metricsLabels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        prefix + "_dropped_total",
			Help:        "Total items dropped due to full queue",
			ConstLabels: p.metricsLabels,
		}),
	}

	// A registration conflict leaves the pool running without metrics.
	if p.metricsRegistry.RegisterGauge(poolComponent, p.metricKey("_queue_depth"), m.queueDepth) != nil ||
		p.metricsRegistry.RegisterCounter(poolComponent, p.metricKey("_processed_total"), m.processed) != nil ||
		p.metricsRegistry.RegisterCounter(poolComponent, p.metricKey("_dropped_total"), m.dropped) != nil {
		p.unregisterMetrics()
		return
	}
	p.metrics = m
}

func (p *Pool[T]) unregisterMetrics() {
	if p.metricsRegistry == nil || p.metricsPrefix == "" {
		return
	}
	p.metricsRegistry.Unregister(poolComponent, p.metricKey("_queue_depth"))
	p.metricsRegistry.Unregister(poolComponent, p.metricKey("_processed_total"))
	p.metricsRegistry.Unregister(poolComponent, p.metricKey("_dropped_total"))
}

const poolComponent = "worker_pool"

// metricKey names a metric in the registry; label values keep pools that
// share a prefix apart
func (p *Pool[T]) metricKey(suffix string) string {
	key := p.metricsPrefix + suffix
	if len(p.metricsLabels) == 0 {
		return key
	}
	pairs := make([]string, 0, len(p.metricsLabels))
	for _, name := range slices.Sorted(maps.Keys(p.metricsLabels)) {
		pairs = append(pairs, name+"="+p.metricsLabels[name])
	}
	return key + "{" + strings.Join(pairs, ",") + "}"
}

// Submit enqueues work without blocking. Returns ErrQueueFull if the queue is at capacity.
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.workChan <- work:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.queueDepth.Set(float64(len(p.workChan)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		if p.onDrop != nil {
			p.onDrop(work)
		}
		return ErrQueueFull
	}
}

// Start starts the workers
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()

	p.started = true
	return nil
}

// Stop closes the queue and waits for the workers to drain it.
// Items still queued are processed before the workers exit.
// Stop is idempotent; later calls wait on the same drain.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started {
		p.lifecycleMu.Unlock()
		return nil
	}
	if !p.stopped {
		p.stopped = true
		close(p.workChan)
	}
	p.lifecycleMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		p.unregisterMetrics()
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.workChan),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.workChan:
			if !ok {
				return
			}

			err := p.processor(ctx, work)

			p.processed.Add(1)
			if err != nil {
				p.failed.Add(1)
			}
			if p.metrics != nil {
				p.metrics.processed.Inc()
				p.metrics.queueDepth.Set(float64(len(p.workChan)))
			}
		}
	}
}
