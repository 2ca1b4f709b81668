package booksync

import (
	"context"
	"log"
	"sync"

	"github.com/sourcegraph/conc"
)

// runner executes fire-and-forget work bound to the coordinator's lifetime.
type runner struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     conc.WaitGroup
}

func newRunner() *runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &runner{ctx: ctx, cancel: cancel}
}

// Go schedules fn and reports whether it was accepted.
func (r *runner) Go(name string, fn func(ctx context.Context)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		log.Printf("[SYNC] Dropping background job %s: coordinator closed", name)
		return false
	}
	r.wg.Go(func() {
		fn(r.ctx)
	})
	return true
}

func (r *runner) Wait() {
	if recovered := r.wg.WaitAndRecover(); recovered != nil {
		log.Printf("[SYNC] Background job panicked: %v", recovered.Value)
	}
}

func (r *runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.Wait()
}

// inBackground runs fn on the runner with ctx's user carried over.
func (c *Coordinator) inBackground(name, userID string, fn func(ctx context.Context)) bool {
	return c.runner.Go(name, func(ctx context.Context) {
		if userID != "" {
			ctx = WithUser(ctx, userID)
		}
		fn(ctx)
	})
}
