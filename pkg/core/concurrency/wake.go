package concurrency

import "sync"

// WakeSignal is a binary, level-triggered wake primitive.
// It tracks a single pending-wake bit: any number of posts made before a
// Wait collapse into one wake. It is not a counting semaphore.
type WakeSignal struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending bool
}

// NewWakeSignal creates a WakeSignal with no pending wake
func NewWakeSignal() *WakeSignal {
	ws := &WakeSignal{}
	ws.cond = sync.NewCond(&ws.mu)
	return ws
}

// Post sets the pending bit and wakes one blocked waiter, if any.
// When nobody is waiting the bit stays set, so the next Wait returns
// immediately.
func (ws *WakeSignal) Post() {
	ws.mu.Lock()
	ws.pending = true
	ws.mu.Unlock()
	ws.cond.Signal()
}

// PostAll sets the pending bit and wakes every blocked waiter.
func (ws *WakeSignal) PostAll() {
	ws.mu.Lock()
	ws.pending = true
	ws.mu.Unlock()
	ws.cond.Broadcast()
}

// Wait blocks until the pending bit is set, then clears it and returns.
func (ws *WakeSignal) Wait() {
	ws.mu.Lock()
	for !ws.pending {
		ws.cond.Wait()
	}
	ws.pending = false
	ws.mu.Unlock()
}

// Reset clears the pending bit.
// Only the flag is touched; blocked waiters stay blocked until the next post.
func (ws *WakeSignal) Reset() {
	ws.mu.Lock()
	ws.pending = false
	ws.mu.Unlock()
}

// Pending reports whether a wake is currently pending
func (ws *WakeSignal) Pending() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.pending
}
