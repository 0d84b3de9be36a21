// Package worker provides a generic bounded worker pool.
//
// Pool[T] runs a fixed number of workers over a buffered queue. Submit is
// non-blocking and returns ErrQueueFull when the queue is at capacity, which
// lets callers on a latency-sensitive path shed load instead of waiting. The
// notification hub relies on this to keep schema writes independent of
// subscriber speed:
//
//	pool := worker.NewPool(1, 1024, hub.dispatch,
//	    worker.WithName[notify.Event]("notify"),
//	    worker.WithMetricsRegistry[notify.Event](registry),
//	)
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
//	if err := pool.Submit(event); errors.Is(err, worker.ErrQueueFull) {
//	    // drop and count
//	}
//
// Stop closes the queue, lets workers drain what was accepted and waits up to
// the given timeout. Cancelling the Start context makes workers exit without
// draining.
//
// With a single worker items are processed in submission order.
package worker
