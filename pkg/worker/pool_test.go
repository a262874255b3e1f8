package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/c360/genstream/metric"
)

type testWork struct {
	id    int
	delay time.Duration
	fail  bool
}

func TestNewPool(t *testing.T) {
	processor := func(context.Context, testWork) error { return nil }

	pool := NewPool(5, 100, processor)
	if pool.workers != 5 {
		t.Errorf("Expected 5 workers, got %d", pool.workers)
	}
	if pool.queueSize != 100 {
		t.Errorf("Expected queue size 100, got %d", pool.queueSize)
	}

	pool = NewPool(0, 0, processor)
	if pool.workers != 1 {
		t.Errorf("Expected default 1 worker, got %d", pool.workers)
	}
	if pool.queueSize != 256 {
		t.Errorf("Expected default queue size 256, got %d", pool.queueSize)
	}
}

func TestNewPool_NilProcessor(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected panic for nil processor")
		}
	}()
	NewPool[testWork](1, 10, nil)
}

func TestPool_SubmitBeforeStart(t *testing.T) {
	pool := NewPool(1, 10, func(context.Context, testWork) error { return nil })
	if err := pool.Submit(testWork{}); !errors.Is(err, ErrPoolNotStarted) {
		t.Errorf("Expected ErrPoolNotStarted, got %v", err)
	}
}

func TestPool_StartStop(t *testing.T) {
	var processedCount int64
	pool := NewPool(2, 10, func(context.Context, testWork) error {
		atomic.AddInt64(&processedCount, 1)
		return nil
	})

	ctx := context.Background()
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}
	if err := pool.Start(ctx); !errors.Is(err, ErrPoolAlreadyStarted) {
		t.Error("Expected error when starting pool twice")
	}

	for i := 0; i < 5; i++ {
		if err := pool.Submit(testWork{id: i}); err != nil {
			t.Errorf("Failed to submit work %d: %v", i, err)
		}
	}

	// Stop drains what is queued
	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatalf("Failed to stop pool: %v", err)
	}
	if processed := atomic.LoadInt64(&processedCount); processed != 5 {
		t.Errorf("Expected 5 processed items, got %d", processed)
	}

	if err := pool.Submit(testWork{id: 999}); !errors.Is(err, ErrPoolStopped) {
		t.Error("Expected error when submitting to stopped pool")
	}
	if err := pool.Stop(time.Second); err != nil {
		t.Errorf("Second Stop should be a no-op, got %v", err)
	}
}

func TestPool_SingleWorkerPreservesOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	pool := NewPool(1, 100, func(_ context.Context, w testWork) error {
		mu.Lock()
		seen = append(seen, w.id)
		mu.Unlock()
		return nil
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 50; i++ {
		if err := pool.Submit(testWork{id: i}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 50 {
		t.Fatalf("Expected 50 items, got %d", len(seen))
	}
	for i, id := range seen {
		if id != i {
			t.Fatalf("Out of order at %d: got %d", i, id)
		}
	}
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	var droppedIDs []int
	var mu sync.Mutex

	pool := NewPool(1, 2, func(context.Context, testWork) error {
		<-release
		return nil
	}, WithDropHandler(func(w testWork) {
		mu.Lock()
		droppedIDs = append(droppedIDs, w.id)
		mu.Unlock()
	}))

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}

	submitted, dropped := 0, 0
	for i := 0; i < 6; i++ {
		if err := pool.Submit(testWork{id: i}); err != nil {
			if !errors.Is(err, ErrQueueFull) {
				t.Errorf("Expected ErrQueueFull, got %v", err)
			}
			dropped++
		} else {
			submitted++
		}
	}
	close(release)
	_ = pool.Stop(5 * time.Second)

	if dropped == 0 || submitted == 0 {
		t.Errorf("Expected both accepted and dropped items, got submitted=%d dropped=%d", submitted, dropped)
	}
	if stats := pool.Stats(); stats.Dropped != int64(dropped) {
		t.Errorf("Stats should show %d dropped items, got %d", dropped, stats.Dropped)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(droppedIDs) != dropped {
		t.Errorf("Drop handler saw %d items, want %d", len(droppedIDs), dropped)
	}
}

func TestPool_ProcessingErrors(t *testing.T) {
	pool := NewPool(2, 10, func(_ context.Context, w testWork) error {
		if w.fail {
			return errors.New("simulated error")
		}
		return nil
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}

	for i := 0; i < 10; i++ {
		if err := pool.Submit(testWork{id: i, fail: i%2 == 0}); err != nil {
			t.Errorf("Failed to submit work %d: %v", i, err)
		}
	}
	_ = pool.Stop(5 * time.Second)

	stats := pool.Stats()
	if stats.Processed != 10 {
		t.Errorf("Expected 10 processed items in stats, got %d", stats.Processed)
	}
	if stats.Failed != 5 {
		t.Errorf("Expected 5 failed items in stats, got %d", stats.Failed)
	}
}

func TestPool_ContextCancellation(t *testing.T) {
	pool := NewPool(2, 10, func(ctx context.Context, w testWork) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.delay):
			return nil
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Failed to start pool: %v", err)
	}
	for i := 0; i < 5; i++ {
		_ = pool.Submit(testWork{id: i, delay: time.Second})
	}

	cancel()
	if err := pool.Stop(2 * time.Second); err != nil {
		t.Fatalf("Failed to stop pool: %v", err)
	}
}

func TestPool_StopTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	pool := NewPool(1, 1, func(context.Context, testWork) error {
		<-block
		return nil
	})
	_ = pool.Start(context.Background())
	_ = pool.Submit(testWork{})

	time.Sleep(10 * time.Millisecond)
	if err := pool.Stop(20 * time.Millisecond); !errors.Is(err, ErrStopTimeout) {
		t.Errorf("Expected ErrStopTimeout, got %v", err)
	}
}

func TestPool_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pool := NewPool(1, 4, func(context.Context, testWork) error { return nil },
		WithMetricsRegistry[testWork](registry, "test_pool"))
	if pool.metrics == nil {
		t.Fatal("Expected metrics to be initialized")
	}

	_ = pool.Start(context.Background())
	_ = pool.Submit(testWork{})
	_ = pool.Stop(time.Second)

	// Stop unregisters, so the prefix can be reused
	again := NewPool(1, 4, func(context.Context, testWork) error { return nil },
		WithMetricsRegistry[testWork](registry, "test_pool"))
	if again.metrics == nil {
		t.Error("Expected metrics to be re-registered after Stop")
	}
}

func TestPool_MetricsLabels(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	newLabeled := func(id string) *Pool[testWork] {
		return NewPool(1, 1, func(_ context.Context, w testWork) error {
			time.Sleep(w.delay)
			return nil
		},
			WithMetricsRegistry[testWork](registry, "test_subscriber"),
			WithMetricsLabels[testWork](prometheus.Labels{"subscriber": id}))
	}

	first := newLabeled("0")
	second := newLabeled("1")
	if first.metrics == nil || second.metrics == nil {
		t.Fatal("Expected both pools to register metrics under one prefix")
	}

	_ = first.Start(context.Background())
	_ = first.Submit(testWork{delay: 50 * time.Millisecond})
	time.Sleep(10 * time.Millisecond)
	_ = first.Submit(testWork{})
	if err := first.Submit(testWork{}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Expected ErrQueueFull, got %v", err)
	}
	if got := testutil.ToFloat64(first.metrics.dropped); got != 1 {
		t.Errorf("Expected 1 drop for the first pool, got %v", got)
	}
	if got := testutil.ToFloat64(second.metrics.dropped); got != 0 {
		t.Errorf("Expected no drops for the second pool, got %v", got)
	}

	_ = first.Stop(time.Second)
	n, err := testutil.GatherAndCount(registry.PrometheusRegistry(), "test_subscriber_dropped_total")
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected only the unstopped pool to stay registered, got %d series", n)
	}
}
