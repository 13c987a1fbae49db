package prometheus

import (
	"errors"
	"time"

	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
)

// PoolObserver feeds worker pool events into Metrics.
// It implements concurrency.Observer.
type PoolObserver struct {
	m *Metrics
}

// NewPoolObserver returns an observer recording into m (GetMetrics() if nil)
func NewPoolObserver(m *Metrics) *PoolObserver {
	if m == nil {
		m = GetMetrics()
	}
	return &PoolObserver{m: m}
}

func (o *PoolObserver) JobSubmitted() {
	o.m.PoolJobsSubmitted.Inc()
}

func (o *PoolObserver) JobRejected(reason error) {
	o.m.PoolJobsRejected.WithLabelValues(rejectReason(reason)).Inc()
}

func (o *PoolObserver) JobFinished(elapsed time.Duration, panicked bool) {
	o.m.PoolJobsCompleted.Inc()
	if panicked {
		o.m.PoolJobsPanicked.Inc()
	}
	o.m.PoolJobDuration.Observe(elapsed.Seconds())
}

func (o *PoolObserver) BusyWorkers(n int) {
	o.m.PoolBusyWorkers.Set(float64(n))
}

func (o *PoolObserver) QueueDepth(n int) {
	o.m.PoolQueueDepth.Set(float64(n))
}

func (o *PoolObserver) WorkersAlive(n int) {
	o.m.PoolAliveWorkers.Set(float64(n))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, concurrency.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, concurrency.ErrPoolClosed):
		return "closed"
	default:
		return "invalid"
	}
}

var _ concurrency.Observer = (*PoolObserver)(nil)
