package concurrency

import (
	"fmt"
	"sync/atomic"
	"time"
)

// WorkerState is the lifecycle state of a worker
type WorkerState int32

const (
	// WorkerRunning means the worker is looping on the queue
	WorkerRunning WorkerState = iota
	// WorkerStopped is terminal
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerRunning:
		return "running"
	case WorkerStopped:
		return "stopped"
	default:
		return fmt.Sprintf("WorkerState(%d)", int32(s))
	}
}

// worker is one goroutine bound to a pool.
// pool is a non-owning back-reference; the pool outlives its workers.
type worker struct {
	id    int
	pool  *Pool
	state int32
}

func newWorker(id int, pool *Pool) *worker {
	return &worker{id: id, pool: pool, state: int32(WorkerRunning)}
}

// State returns the current lifecycle state
func (w *worker) State() WorkerState {
	return WorkerState(atomic.LoadInt32(&w.state))
}

// run is the worker goroutine body
func (w *worker) run() {
	w.pool.markAlive()
	w.loop()
}

// loop drains the queue until the pool stops. If a job ends the goroutine
// with runtime.Goexit, a replacement loop takes over the same alive slot.
func (w *worker) loop() {
	p := w.pool
	stopped := false
	defer func() {
		if !stopped && p.keepRunning.Load() {
			p.logger.Errorf("worker %d: job exited the worker goroutine; restarting", w.id)
			go w.loop()
			return
		}
		atomic.StoreInt32(&w.state, int32(WorkerStopped))
		p.markDead()
	}()

	for p.keepRunning.Load() {
		p.queue.waitForJobs()

		// State may have changed while we were suspended.
		if !p.keepRunning.Load() {
			// The first waiter through a PostAll clears the bit; pass the
			// wake on so the remaining workers also observe the stop.
			p.queue.wakeAll()
			break
		}

		p.markBusy()
		job := p.queue.Dequeue()
		if job == nil {
			// Woken by a collapsed or broadcast post with nothing left to take.
			p.markIdle(false, false)
			continue
		}
		w.runJob(job)
	}
	stopped = true
}

// runJob executes one dequeued job and settles the busy count even when
// the job never returns normally.
func (w *worker) runJob(job Job) {
	p := w.pool
	start := time.Now()
	finished, panicked := false, false
	defer func() {
		failed := panicked || !finished
		p.markIdle(true, failed)
		p.observer.JobFinished(time.Since(start), failed)
	}()
	panicked = w.execute(job)
	finished = true
}

// execute runs job with panic isolation: a failing job must not take the
// worker (or the pool) down with it.
func (w *worker) execute(job Job) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			w.pool.logger.Errorf("worker %d: job %s panicked (isolated): %v", w.id, jobName(job), r)
		}
	}()
	job.Run()
	return false
}

// jobName returns job.Name(), or "job" when Name itself panics
func jobName(job Job) (name string) {
	defer func() {
		if recover() != nil {
			name = "job"
		}
	}()
	return job.Name()
}
