package concurrency

import (
	"errors"
	"testing"
)

func named(name string) Job {
	return NewNamedJob(name, func() {})
}

func TestNewJobQueue_InvalidCapacity(t *testing.T) {
	t.Parallel()
	for _, capacity := range []int{0, -1} {
		if _, err := NewJobQueue(capacity); !errors.Is(err, ErrInvalidCapacity) {
			t.Errorf("NewJobQueue(%d) error = %v, want ErrInvalidCapacity", capacity, err)
		}
	}
}

func TestJobQueue_FIFOAcrossWrap(t *testing.T) {
	t.Parallel()
	q, err := NewJobQueue(3)
	if err != nil {
		t.Fatalf("NewJobQueue() error = %v", err)
	}

	for _, name := range []string{"a", "b", "c"} {
		if !q.Enqueue(named(name)) {
			t.Fatalf("Enqueue(%s) rejected", name)
		}
	}
	if got := q.Dequeue().Name(); got != "a" {
		t.Fatalf("Dequeue() = %s, want a", got)
	}
	if !q.Enqueue(named("d")) {
		t.Fatal("Enqueue(d) rejected after a slot was freed")
	}

	for _, want := range []string{"b", "c", "d"} {
		job := q.Dequeue()
		if job == nil {
			t.Fatalf("Dequeue() = nil, want %s", want)
		}
		if job.Name() != want {
			t.Errorf("Dequeue() = %s, want %s", job.Name(), want)
		}
	}
	if job := q.Dequeue(); job != nil {
		t.Errorf("Dequeue() on empty queue = %s, want nil", job.Name())
	}
}

func TestJobQueue_RejectsWhenFull(t *testing.T) {
	t.Parallel()
	q, _ := NewJobQueue(1)

	if !q.Enqueue(named("a")) {
		t.Fatal("first Enqueue() should succeed")
	}
	if q.Enqueue(named("b")) {
		t.Fatal("Enqueue() on a full queue should fail")
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d after rejected enqueue, want 1", q.Len())
	}
	if got := q.Dequeue().Name(); got != "a" {
		t.Errorf("rejected job must not be stored: Dequeue() = %s, want a", got)
	}
}

func TestJobQueue_SignalPropagation(t *testing.T) {
	t.Parallel()
	q, _ := NewJobQueue(4)

	q.Enqueue(named("a"))
	q.Enqueue(named("b"))
	q.Enqueue(named("c"))
	if !q.hasJobs.Pending() {
		t.Fatal("Enqueue() should post the wake signal")
	}

	// A worker consumes the collapsed wake, then takes one job.
	q.waitForJobs()
	q.Dequeue()
	if !q.hasJobs.Pending() {
		t.Fatal("Dequeue() with jobs remaining should re-post the wake signal")
	}

	q.waitForJobs()
	q.Dequeue()
	q.waitForJobs()
	q.Dequeue()
	if q.hasJobs.Pending() {
		t.Error("Dequeue() of the last job should not re-post the wake signal")
	}
}

func TestJobQueue_ClearAndClose(t *testing.T) {
	t.Parallel()
	q, _ := NewJobQueue(4)
	q.Enqueue(named("a"))
	q.Enqueue(named("b"))

	if n := q.Clear(); n != 2 {
		t.Errorf("Clear() = %d, want 2", n)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after Clear(), want 0", q.Len())
	}
	if q.hasJobs.Pending() {
		t.Error("Clear() should reset the wake signal")
	}
	if !q.Enqueue(named("c")) {
		t.Fatal("Enqueue() after Clear() should succeed")
	}

	if n := q.Close(); n != 1 {
		t.Errorf("Close() = %d, want 1", n)
	}
	if !q.IsClosed() {
		t.Error("IsClosed() should be true after Close()")
	}
	if q.Enqueue(named("d")) {
		t.Error("Enqueue() after Close() should fail")
	}
	if q.Cap() != 4 {
		t.Errorf("Cap() = %d, want 4", q.Cap())
	}
}

func TestJobQueue_ReportsDepthOnEveryChange(t *testing.T) {
	t.Parallel()
	q, _ := NewJobQueue(3)
	var depths []int
	q.onDepth = func(n int) { depths = append(depths, n) }

	q.Enqueue(named("a"))
	q.Enqueue(named("b"))
	q.Dequeue()
	q.Enqueue(named("c"))
	q.Close()
	q.Dequeue() // empty: no change, no report

	want := []int{1, 2, 1, 2, 0}
	if len(depths) != len(want) {
		t.Fatalf("depths = %v, want %v", depths, want)
	}
	for i := range want {
		if depths[i] != want[i] {
			t.Fatalf("depths = %v, want %v", depths, want)
		}
	}
}
