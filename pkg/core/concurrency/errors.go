package concurrency

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidWorkers is returned when a pool is configured with no workers
	ErrInvalidWorkers = errors.New("worker count must be positive")

	// ErrInvalidCapacity is returned when a queue is configured with no capacity
	ErrInvalidCapacity = errors.New("queue capacity must be positive")

	// ErrStartupTimeout is returned when workers do not report alive in time
	ErrStartupTimeout = errors.New("workers did not start in time")

	// ErrNilJob is returned when submitting a nil job
	ErrNilJob = errors.New("job cannot be nil")

	// ErrQueueFull is returned when the job queue is at capacity (backpressure)
	ErrQueueFull = errors.New("job queue is full")

	// ErrPoolClosed is returned when submitting to a pool that has been shut down
	ErrPoolClosed = errors.New("pool is closed")

	// ErrSubmitTimeout is returned when SubmitWithTimeout gives up
	ErrSubmitTimeout = errors.New("submit timeout")
)

// ConstructionError reports a failure to build a pool.
// The pool is unusable and any partially started workers have been stopped.
type ConstructionError struct {
	Op  string
	Err error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("pool construction failed (%s): %v", e.Op, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}
