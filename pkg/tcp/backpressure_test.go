package tcp

import (
	"sync"
	"testing"
)

func TestConnLimiter_CapacityExceeded(t *testing.T) {
	t.Parallel()

	l := newConnLimiter(2)

	if !l.TryAcquire() {
		t.Fatalf("expected first acquire to succeed")
	}
	if !l.TryAcquire() {
		t.Fatalf("expected second acquire to succeed")
	}
	if l.TryAcquire() {
		t.Fatalf("expected third acquire to fail-fast")
	}
	if l.Rejected() != 1 {
		t.Fatalf("expected rejected count 1, got %d", l.Rejected())
	}

	l.Release()
	if !l.TryAcquire() {
		t.Fatalf("expected acquire to succeed after release")
	}
}

func TestConnLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	l := newConnLimiter(0)
	for i := 0; i < 100; i++ {
		if !l.TryAcquire() {
			t.Fatalf("unlimited limiter refused acquire %d", i)
		}
	}
	if l.Active() != 100 {
		t.Errorf("Active() = %d, want 100", l.Active())
	}
}

func TestConnLimiter_ConcurrentAcquire(t *testing.T) {
	t.Parallel()

	const limit = 8
	l := newConnLimiter(limit)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got int
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire() {
				mu.Lock()
				got++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if got != limit {
		t.Errorf("acquired %d slots, want %d", got, limit)
	}
	if l.Rejected() != 64-limit {
		t.Errorf("Rejected() = %d, want %d", l.Rejected(), 64-limit)
	}
}
