package concurrency

import (
	"context"
	"time"
)

// PoolStats provides a point-in-time view of pool state
type PoolStats struct {
	Workers          int     // Configured worker count
	AliveWorkers     int     // Workers that have not yet stopped
	BusyWorkers      int     // Workers currently running a job
	QueuedJobs       int     // Jobs waiting in the queue
	QueueCapacity    int     // Maximum queue capacity
	QueueUtilization float64 // Queue utilization percentage
	SubmittedJobs    int64   // Total accepted jobs
	RejectedJobs     int64   // Total rejected jobs (backpressure or closed)
	CompletedJobs    int64   // Total jobs that ran to completion or panicked
	PanickedJobs     int64   // Total jobs that panicked
	DiscardedJobs    int64   // Jobs dropped from the queue at shutdown
}

// Executor is the submission surface consumers depend on.
// *Pool implements it.
type Executor interface {
	// Submit queues a job for execution.
	// Returns ErrQueueFull if the queue is at capacity (backpressure) or
	// ErrPoolClosed after shutdown. Never blocks.
	Submit(job Job) error

	// SubmitWithTimeout retries Submit while the queue is full, up to timeout
	SubmitWithTimeout(job Job, timeout time.Duration) error

	// Shutdown discards queued jobs, lets in-flight jobs finish and waits
	// for all workers to exit (up to ctx deadline)
	Shutdown(ctx context.Context) error

	// Stats returns current pool statistics
	Stats() PoolStats
}

var _ Executor = (*Pool)(nil)
