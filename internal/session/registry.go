package session

import (
	"context"
	"fmt"
	"sync"
)

// registry tracks manager-owned goroutines (socket pumps, notifier
// fan-out) and provides a bounded join on shutdown.
type registry struct {
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func (r *registry) Go(fn func()) bool {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		fn()
	}()

	return true
}

func (r *registry) CloseAndWait(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session worker drain timeout: %w", ctx.Err())
	}
}
