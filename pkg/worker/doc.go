// Package worker provides a bounded, non-blocking work queue drained by a
// fixed set of goroutines.
//
// The client uses a single-worker pool per event subscriber: the producer
// (the transport receive loop) never blocks on a slow callback, delivery order
// is preserved, and a full queue drops the item and reports it through the
// drop handler.
//
//	pool := worker.NewPool(1, 64, func(ctx context.Context, ev Event) error {
//	    handler(ev)
//	    return nil
//	}, worker.WithDropHandler(func(Event) { dropped.Inc() }))
//	_ = pool.Start(ctx)
//	defer pool.Stop(time.Second)
//
// Submit returns ErrQueueFull instead of blocking. Stop closes the queue,
// lets the workers finish what is already queued and waits up to the given
// timeout.
package worker
