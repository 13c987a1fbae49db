package concurrency

import "sync"

// JobQueue is a bounded FIFO of pending jobs backed by a ring buffer.
// A full queue rejects new jobs instead of blocking the submitter.
//
// Every successful Enqueue posts the queue's WakeSignal once. Because the
// signal is level-triggered, Dequeue re-posts while jobs remain so that
// several idle workers can drain a burst.
type JobQueue struct {
	mu     sync.Mutex
	buf    []Job
	head   int
	length int
	closed bool

	hasJobs *WakeSignal

	// onDepth, if set, receives the length after every change. It runs
	// under mu.
	onDepth func(int)
}

// NewJobQueue creates a queue holding at most capacity jobs
func NewJobQueue(capacity int) (*JobQueue, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &JobQueue{
		buf:     make([]Job, capacity),
		hasJobs: NewWakeSignal(),
	}, nil
}

// Enqueue appends job at the tail.
// Returns false without storing anything when the queue is full or closed.
func (q *JobQueue) Enqueue(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.length == len(q.buf) {
		return false
	}

	q.buf[(q.head+q.length)%len(q.buf)] = job
	q.length++
	q.reportDepth()
	q.hasJobs.Post()
	return true
}

// Dequeue removes and returns the head job, or nil when the queue is empty.
func (q *JobQueue) Dequeue() Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.length == 0 {
		return nil
	}

	job := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.length--
	q.reportDepth()

	if q.length > 0 {
		q.hasJobs.Post()
	}
	return job
}

// Clear discards every pending job and resets the wake signal.
// Returns the number of jobs discarded.
func (q *JobQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.clearLocked()
}

// Close clears the queue and rejects all later Enqueue calls.
// Returns the number of jobs discarded.
func (q *JobQueue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return q.clearLocked()
}

func (q *JobQueue) clearLocked() int {
	n := q.length
	for i := 0; i < q.length; i++ {
		q.buf[(q.head+i)%len(q.buf)] = nil
	}
	q.head = 0
	q.length = 0
	q.reportDepth()
	q.hasJobs.Reset()
	return n
}

func (q *JobQueue) reportDepth() {
	if q.onDepth != nil {
		q.onDepth(q.length)
	}
}

// Len returns the current number of pending jobs
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}

// Cap returns the maximum number of pending jobs
func (q *JobQueue) Cap() int {
	return len(q.buf)
}

// IsClosed returns true once Close has been called
func (q *JobQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// waitForJobs suspends the caller until the queue signals work may be available
func (q *JobQueue) waitForJobs() {
	q.hasJobs.Wait()
}

// wakeAll releases every goroutine blocked in waitForJobs
func (q *JobQueue) wakeAll() {
	q.hasJobs.PostAll()
}
