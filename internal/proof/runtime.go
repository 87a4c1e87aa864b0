// runtime.go - Lazily initialised proving runtime.

package proof

import (
	"context"
	"sync"
)

// Runtime initialises the proving backend once. A failed initialisation is
// retried on the next Ensure.
type Runtime struct {
	mu    sync.Mutex
	init  func(ctx context.Context) error
	ready bool
}

// NewRuntime wraps init. A nil init is always ready.
func NewRuntime(init func(ctx context.Context) error) *Runtime {
	return &Runtime{init: init}
}

// Ensure runs init if it has not yet succeeded.
func (r *Runtime) Ensure(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return nil
	}
	if r.init != nil {
		if err := r.init(ctx); err != nil {
			return err
		}
	}
	r.ready = true
	return nil
}

// Ready reports whether init has succeeded.
func (r *Runtime) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}
