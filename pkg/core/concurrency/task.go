package concurrency

// Job represents a unit of work executed by exactly one pool worker.
// Any input the job needs is captured when it is constructed; the pool
// never inspects it and never observes its outcome.
type Job interface {
	// Run performs the work. It must not block forever. A panic is
	// recovered and counted; runtime.Goexit restarts the worker.
	Run()

	// Name returns a human-readable name for the job (for logging/debugging)
	Name() string
}

// JobFunc is a function type that implements Job
// Allows closures to be submitted without creating a struct
type JobFunc func()

// Run implements Job interface for JobFunc
func (f JobFunc) Run() {
	f()
}

// Name returns a default name for JobFunc
func (f JobFunc) Name() string {
	return "JobFunc"
}

// NamedJob wraps a function with a custom name
type NamedJob struct {
	name string
	fn   func()
}

// NewNamedJob creates a new NamedJob.
// A nil fn yields a nil *NamedJob, which Submit rejects with ErrNilJob.
func NewNamedJob(name string, fn func()) *NamedJob {
	if fn == nil {
		return nil
	}
	return &NamedJob{
		name: name,
		fn:   fn,
	}
}

// Run implements Job interface
func (nj *NamedJob) Run() {
	nj.fn()
}

// Name returns the job name
func (nj *NamedJob) Name() string {
	return nj.name
}
