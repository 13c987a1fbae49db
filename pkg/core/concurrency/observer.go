package concurrency

import "time"

// Observer receives pool lifecycle events.
// Implementations must be cheap, safe for concurrent use, and must not call
// back into the pool. BusyWorkers and WorkersAlive run under the pool lock
// and QueueDepth under the queue lock, so each gauge sees its values in
// the order they happened.
type Observer interface {
	JobSubmitted()
	JobRejected(reason error)
	JobFinished(elapsed time.Duration, panicked bool)
	BusyWorkers(n int)
	QueueDepth(n int)
	WorkersAlive(n int)
}

// NopObserver ignores every event
type NopObserver struct{}

func (NopObserver) JobSubmitted() {}
func (NopObserver) JobRejected(error) {}
func (NopObserver) JobFinished(time.Duration, bool) {}
func (NopObserver) BusyWorkers(int) {}
func (NopObserver) QueueDepth(int) {}
func (NopObserver) WorkersAlive(int) {}
