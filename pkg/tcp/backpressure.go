package tcp

import (
	"errors"
	"sync/atomic"
)

// ErrTooManyConns is the reject reason when MaxConns is reached
var ErrTooManyConns = errors.New("too many connections")

// connLimiter bounds in-flight connections (queued + handling).
// The worker pool's queue already bounds what is waiting; this caps the total
// including connections being served. A limit <= 0 only counts.
type connLimiter struct {
	limit    int64
	active   int64
	rejected int64
}

func newConnLimiter(limit int) *connLimiter {
	if limit < 0 {
		limit = 0
	}
	return &connLimiter{limit: int64(limit)}
}

// TryAcquire takes a slot, returning false when the limit is reached
func (l *connLimiter) TryAcquire() bool {
	if l.limit <= 0 {
		atomic.AddInt64(&l.active, 1)
		return true
	}
	for {
		cur := atomic.LoadInt64(&l.active)
		if cur >= l.limit {
			atomic.AddInt64(&l.rejected, 1)
			return false
		}
		if atomic.CompareAndSwapInt64(&l.active, cur, cur+1) {
			return true
		}
	}
}

// Release returns a slot
func (l *connLimiter) Release() {
	atomic.AddInt64(&l.active, -1)
}

// Active returns the number of held slots
func (l *connLimiter) Active() int64 {
	return atomic.LoadInt64(&l.active)
}

// Rejected returns how many acquisitions failed on the limit
func (l *connLimiter) Rejected() int64 {
	return atomic.LoadInt64(&l.rejected)
}
