package core

import (
	"errors"
	"sync"
)

// ErrServerStarted is returned by Start on a server that is already running
var ErrServerStarted = errors.New("server already started")

// BaseServer carries the lifecycle bookkeeping shared by the acceptors:
// started/stopped state, a name and a logger. Concrete servers embed it and
// install their behaviour with SetHooks, because an embedded type calling its
// own methods never dispatches to the outer type.
type BaseServer struct {
	name string

	mu      sync.RWMutex
	started bool
	stopped bool

	logger Logger

	startHook func() error
	stopHook  func() error
}

// NewBaseServer creates a BaseServer logging through the default logger
func NewBaseServer(name string) *BaseServer {
	return &BaseServer{
		name:   name,
		logger: NewDefaultLogger(),
	}
}

// SetHooks configures the functions run by Start and Stop.
// Call this from the concrete server after construction:
//
//	s.BaseServer.SetHooks(s.doStart, s.doStop)
func (bs *BaseServer) SetHooks(startHook func() error, stopHook func() error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.startHook = startHook
	bs.stopHook = stopHook
}

// Start runs the start hook. The server counts as started while the hook
// runs, since serving hooks usually block until Stop.
func (bs *BaseServer) Start() error {
	bs.mu.Lock()
	if bs.started {
		bs.mu.Unlock()
		return ErrServerStarted
	}
	hook := bs.startHook
	bs.started = true
	bs.mu.Unlock()

	if hook == nil {
		return nil
	}
	if err := hook(); err != nil {
		bs.mu.Lock()
		bs.started = false
		bs.mu.Unlock()
		return err
	}
	return nil
}

// Stop runs the stop hook once. A failed hook leaves the server stoppable.
func (bs *BaseServer) Stop() error {
	bs.mu.Lock()
	if bs.stopped {
		bs.mu.Unlock()
		return nil
	}
	hook := bs.stopHook
	bs.mu.Unlock()

	if hook != nil {
		if err := hook(); err != nil {
			return err
		}
	}

	bs.mu.Lock()
	bs.stopped = true
	bs.mu.Unlock()
	return nil
}

// Name returns the server name
func (bs *BaseServer) Name() string {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.name
}

// Logger returns the logger instance
func (bs *BaseServer) Logger() Logger {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.logger
}

// SetLogger replaces the server's logger; nil is ignored
func (bs *BaseServer) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.logger = logger
}

// IsStarted returns whether the server has been started
func (bs *BaseServer) IsStarted() bool {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.started
}

// IsStopped returns whether the server has been stopped
func (bs *BaseServer) IsStopped() bool {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.stopped
}
