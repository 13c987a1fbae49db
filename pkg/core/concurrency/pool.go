package concurrency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// shutdownPollInterval is how often Shutdown re-wakes workers and
	// re-checks the alive count
	shutdownPollInterval = 10 * time.Millisecond

	maxSubmitBackoff = 50 * time.Millisecond
)

// PoolConfig configures a Pool
type PoolConfig struct {
	Workers        int           // Number of worker goroutines (fixed for the pool's lifetime)
	QueueSize      int           // Maximum pending jobs (bounded for backpressure)
	StartupTimeout time.Duration // Bound on the startup barrier
	Logger         Logger        // Optional; defaults to a stderr logger
	Observer       Observer      // Optional; defaults to NopObserver
}

// DefaultPoolConfig returns default pool configuration
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:        10,
		QueueSize:      1000,
		StartupTimeout: 5 * time.Second,
	}
}

// Pool is a fixed-size worker pool draining a bounded FIFO job queue.
//
// Submit never blocks: a full queue is reported as ErrQueueFull and the
// caller decides whether to retry, drop or report the overload. Shutdown
// discards jobs that have not started and waits for in-flight jobs.
type Pool struct {
	workers    []*worker
	numWorkers int
	queue      *JobQueue

	// mu guards alive, busy, shuttingDown and workers.
	// cond is broadcast whenever alive or busy changes.
	mu           sync.Mutex
	cond         *sync.Cond
	alive        int
	busy         int
	shuttingDown bool

	keepRunning atomic.Bool
	closed      atomic.Bool

	logger   Logger
	observer Observer

	submitted atomic.Int64
	rejected  atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	discarded atomic.Int64
}

// NewPool starts config.Workers workers and blocks until all of them are
// alive. Construction errors are returned as *ConstructionError.
func NewPool(config PoolConfig) (*Pool, error) {
	if config.Workers < 1 {
		return nil, &ConstructionError{Op: "validate", Err: ErrInvalidWorkers}
	}
	queue, err := NewJobQueue(config.QueueSize)
	if err != nil {
		return nil, &ConstructionError{Op: "validate", Err: err}
	}
	if config.Observer == nil {
		config.Observer = NopObserver{}
	}
	queue.onDepth = config.Observer.QueueDepth
	if config.StartupTimeout <= 0 {
		config.StartupTimeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = newDefaultSimpleLogger()
	}

	p := &Pool{
		workers:    make([]*worker, config.Workers),
		numWorkers: config.Workers,
		queue:      queue,
		logger:     config.Logger,
		observer:   config.Observer,
	}
	p.cond = sync.NewCond(&p.mu)
	p.keepRunning.Store(true)

	for i := range p.workers {
		w := newWorker(i, p)
		p.workers[i] = w
		go w.run()
	}

	if err := p.awaitStartup(config.StartupTimeout); err != nil {
		ctx, cancel := context.WithTimeout(context.Background(), config.StartupTimeout)
		defer cancel()
		if stopErr := p.Shutdown(ctx); stopErr != nil {
			p.logger.Warnf("teardown after failed startup: %v", stopErr)
		}
		return nil, &ConstructionError{Op: "startup", Err: err}
	}

	return p, nil
}

// awaitStartup is the startup barrier: a condition wait on the alive count,
// bounded by timeout.
func (p *Pool) awaitStartup(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer timer.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.alive < p.numWorkers {
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %d of %d alive after %v", ErrStartupTimeout, p.alive, p.numWorkers, timeout)
		}
		p.cond.Wait()
	}
	return nil
}

// Submit queues job for execution by one worker
func (p *Pool) Submit(job Job) error {
	err := p.trySubmit(job)
	p.account(err)
	return err
}

// SubmitWithTimeout retries Submit with capped exponential backoff while
// the queue is full. Any other failure is returned immediately.
func (p *Pool) SubmitWithTimeout(job Job, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	backoff := time.Millisecond

	for {
		err := p.trySubmit(job)
		if !errors.Is(err, ErrQueueFull) {
			p.account(err)
			return err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			err = fmt.Errorf("%w after %v: %w", ErrSubmitTimeout, timeout, ErrQueueFull)
			p.account(err)
			return err
		}
		if backoff > remaining {
			backoff = remaining
		}
		time.Sleep(backoff)
		if backoff *= 2; backoff > maxSubmitBackoff {
			backoff = maxSubmitBackoff
		}
	}
}

func (p *Pool) trySubmit(job Job) error {
	if job == nil {
		return ErrNilJob
	}
	if nj, ok := job.(*NamedJob); ok && nj == nil {
		return ErrNilJob
	}
	if p.closed.Load() {
		return ErrPoolClosed
	}
	if !p.queue.Enqueue(job) {
		// Shutdown may have closed the queue after the check above.
		if p.queue.IsClosed() {
			return ErrPoolClosed
		}
		return ErrQueueFull
	}
	return nil
}

func (p *Pool) account(err error) {
	if err != nil {
		p.rejected.Add(1)
		p.observer.JobRejected(err)
		return
	}
	p.submitted.Add(1)
	p.observer.JobSubmitted()
}

// WaitIdle blocks until the queue is empty and no worker is running a job.
// With concurrent submitters the pool may be busy again as soon as it returns.
func (p *Pool) WaitIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.queue.Len() > 0 || p.busy > 0 {
		p.cond.Wait()
	}
}

// ActiveWorkerCount returns the number of workers currently running a job.
// Diagnostic only.
func (p *Pool) ActiveWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// AliveWorkerCount returns the number of workers that have not stopped
func (p *Pool) AliveWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// QueueLen returns the number of jobs waiting to run
func (p *Pool) QueueLen() int {
	return p.queue.Len()
}

// Workers returns the configured worker count
func (p *Pool) Workers() int {
	return p.numWorkers
}

// IsClosed returns true once Shutdown has begun
func (p *Pool) IsClosed() bool {
	return p.closed.Load()
}

// Shutdown stops the pool. Submissions are rejected from the moment it is
// called, queued jobs that have not started are discarded, and in-flight
// jobs run to completion. It waits until every worker has exited or ctx
// ends. Later calls only wait again for the workers, so they return nil
// once the pool has fully stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		return p.awaitWorkers(ctx)
	}
	p.shuttingDown = true
	p.mu.Unlock()

	p.closed.Store(true)
	p.keepRunning.Store(false)

	if n := p.queue.Close(); n > 0 {
		p.discarded.Add(int64(n))
		p.logger.Debugf("shutdown discarded %d queued jobs", n)
	}

	// WaitIdle callers may be parked on jobs that no longer exist.
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()

	return p.awaitWorkers(ctx)
}

// awaitWorkers re-wakes workers until every one has exited or ctx ends
func (p *Pool) awaitWorkers(ctx context.Context) error {
	p.queue.wakeAll()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for p.AliveWorkerCount() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("shutdown timeout: %w", ctx.Err())
		case <-ticker.C:
			p.queue.wakeAll()
		}
	}

	p.mu.Lock()
	p.workers = nil
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}

// Stats returns current pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	alive, busy := p.alive, p.busy
	p.mu.Unlock()

	queued := p.queue.Len()
	capacity := p.queue.Cap()

	return PoolStats{
		Workers:          p.numWorkers,
		AliveWorkers:     alive,
		BusyWorkers:      busy,
		QueuedJobs:       queued,
		QueueCapacity:    capacity,
		QueueUtilization: float64(queued) / float64(capacity) * 100.0,
		SubmittedJobs:    p.submitted.Load(),
		RejectedJobs:     p.rejected.Load(),
		CompletedJobs:    p.completed.Load(),
		PanickedJobs:     p.panicked.Load(),
		DiscardedJobs:    p.discarded.Load(),
	}
}

func (p *Pool) markAlive() {
	p.mu.Lock()
	p.alive++
	p.observer.WorkersAlive(p.alive)
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *Pool) markDead() {
	p.mu.Lock()
	p.alive--
	p.observer.WorkersAlive(p.alive)
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *Pool) markBusy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy++
	p.observer.BusyWorkers(p.busy)
}

// markIdle ends a worker iteration. WaitIdle callers re-check the queue
// themselves, so the worker only needs the pool lock here.
func (p *Pool) markIdle(ran, panicked bool) {
	// Counters first so they are settled by the time WaitIdle returns.
	if ran {
		p.completed.Add(1)
	}
	if panicked {
		p.panicked.Add(1)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy--
	p.observer.BusyWorkers(p.busy)
	if p.busy == 0 {
		p.cond.Broadcast()
	}
}
