// registry.go - Pending proof requests awaiting a prover response.

package proof

import (
	"sync"
	"time"

	"privacypool/internal/metrics"
)

type waiter struct {
	ch    chan Result
	timer *time.Timer
	gen   uint64
}

// Registry correlates request ids with the callers waiting on them. Each id is
// fulfilled at most once; later fulfilments are dropped.
type Registry struct {
	mu      sync.Mutex
	waiters map[string]*waiter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{waiters: make(map[string]*waiter)}
}

// Register creates the response slot for id. If ttl elapses before the slot is
// fulfilled, onExpire is called (outside the registry lock) and should fulfil it.
func (r *Registry) Register(id string, ttl time.Duration, onExpire func(id string)) <-chan Result {
	w := &waiter{ch: make(chan Result, 1)}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiters[id] = w
	r.arm(id, w, ttl, onExpire)
	metrics.PendingResponses.Set(float64(len(r.waiters)))
	return w.ch
}

// Extend replaces the expiry of id with a new ttl and handler.
func (r *Registry) Extend(id string, ttl time.Duration, onExpire func(id string)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.waiters[id]
	if !ok {
		return false
	}
	r.arm(id, w, ttl, onExpire)
	return true
}

// arm must be called with r.mu held.
func (r *Registry) arm(id string, w *waiter, ttl time.Duration, onExpire func(id string)) {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	if ttl <= 0 || onExpire == nil {
		w.timer = nil
		return
	}
	gen := w.gen
	w.timer = time.AfterFunc(ttl, func() {
		r.mu.Lock()
		cur, ok := r.waiters[id]
		live := ok && cur == w && cur.gen == gen
		r.mu.Unlock()
		if live {
			onExpire(id)
		}
	})
}

// Fulfill delivers res to the caller waiting on id and reports whether one was.
func (r *Registry) Fulfill(id string, res Result) bool {
	r.mu.Lock()
	w, ok := r.waiters[id]
	if ok {
		delete(r.waiters, id)
		if w.timer != nil {
			w.timer.Stop()
		}
	}
	metrics.PendingResponses.Set(float64(len(r.waiters)))
	r.mu.Unlock()

	if !ok {
		return false
	}
	res.RequestID = id
	w.ch <- res
	close(w.ch)
	return true
}

// Cancel drops the slot for id without delivering anything.
func (r *Registry) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.waiters[id]; ok {
		if w.timer != nil {
			w.timer.Stop()
		}
		delete(r.waiters, id)
		close(w.ch)
	}
	metrics.PendingResponses.Set(float64(len(r.waiters)))
}

// FailAll fulfils every outstanding slot with err.
func (r *Registry) FailAll(err error) int {
	n := 0
	for _, id := range r.IDs() {
		if r.Fulfill(id, Result{Err: err}) {
			n++
		}
	}
	return n
}

// IDs lists the ids with a caller still waiting.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.waiters))
	for id := range r.waiters {
		ids = append(ids, id)
	}
	return ids
}

// Len is the number of callers still waiting.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
