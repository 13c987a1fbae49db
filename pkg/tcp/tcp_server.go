package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxorio/fluxpool/pkg/core"
	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
	"github.com/fluxorio/fluxpool/pkg/core/failfast"
)

// TCPServer accepts connections and hands each one to a fixed worker pool.
// A connection the pool cannot take (queue full, pool closed, MaxConns
// reached) is passed to the RejectHandler and closed; it is never dropped
// without a reply.
type TCPServer struct {
	*core.BaseServer

	config *TCPServerConfig

	mu       sync.RWMutex
	listener net.Listener
	stopping int32

	pool    *concurrency.Pool
	limiter *connLimiter

	handler     ConnectionHandler
	middlewares []Middleware
	effective   ConnectionHandler
	reject      RejectHandler

	baseCtx context.Context
	cancel  context.CancelFunc

	// pending holds connections submitted to the pool but not yet claimed by
	// a worker. Stop closes whatever is left after the pool discards them.
	pendingMu sync.Mutex
	pending   map[net.Conn]struct{}

	totalAccepted       int64
	rejectedConnections int64
	handledConnections  int64
	errorConnections    int64
}

// TCPServerConfig configures the TCP server.
type TCPServerConfig struct {
	Addr string

	// Worker pool: Workers goroutines draining a queue of MaxQueue connections.
	Workers  int
	MaxQueue int
	// MaxConns bounds concurrent in-flight connections (queued + handling).
	// 0 means unlimited.
	MaxConns int

	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	StartupTimeout  time.Duration
}

// DefaultTCPServerConfig returns a sensible default configuration.
func DefaultTCPServerConfig(addr string) *TCPServerConfig {
	if addr == "" {
		addr = ":8080"
	}
	return &TCPServerConfig{
		Addr:            addr,
		Workers:         10,
		MaxQueue:        1000,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		StartupTimeout:  5 * time.Second,
	}
}

// Option customizes a TCPServer at construction
type Option func(*serverOptions)

type serverOptions struct {
	logger   core.Logger
	observer concurrency.Observer
	reject   RejectHandler
}

// WithLogger sets the logger shared by the server and its pool
func WithLogger(logger core.Logger) Option {
	return func(o *serverOptions) { o.logger = logger }
}

// WithPoolObserver attaches a metrics observer to the worker pool
func WithPoolObserver(observer concurrency.Observer) Option {
	return func(o *serverOptions) { o.observer = observer }
}

// WithRejectHandler sets the handler for connections that cannot be scheduled
func WithRejectHandler(h RejectHandler) Option {
	return func(o *serverOptions) { o.reject = h }
}

// NewTCPServer creates a TCP server and starts its worker pool.
// Pool construction errors are returned unchanged (wrapped).
func NewTCPServer(config *TCPServerConfig, opts ...Option) (*TCPServer, error) {
	if config == nil {
		config = DefaultTCPServerConfig("")
	}
	cfg := *config
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MaxConns < 0 {
		cfg.MaxConns = 0
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	o := serverOptions{reject: defaultRejectHandler}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = core.NewDefaultLogger()
	}

	pool, err := concurrency.NewPool(concurrency.PoolConfig{
		Workers:        cfg.Workers,
		QueueSize:      cfg.MaxQueue,
		StartupTimeout: cfg.StartupTimeout,
		Logger:         o.logger,
		Observer:       o.observer,
	})
	if err != nil {
		return nil, fmt.Errorf("tcp server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &TCPServer{
		BaseServer: core.NewBaseServer("tcp-server"),
		config:     &cfg,
		pool:       pool,
		limiter:    newConnLimiter(cfg.MaxConns),
		handler:    defaultConnectionHandler,
		reject:     o.reject,
		baseCtx:    ctx,
		cancel:     cancel,
		pending:    make(map[net.Conn]struct{}),
	}
	s.effective = s.handler
	s.BaseServer.SetLogger(o.logger)
	s.BaseServer.SetHooks(s.doStart, s.doStop)

	return s, nil
}

func defaultConnectionHandler(ctx *ConnContext) error {
	return nil
}

func defaultRejectHandler(conn net.Conn, reason error) {
	_, _ = conn.Write([]byte("server busy\r\n"))
}

// SetHandler sets the connection handler (fail-fast on nil).
func (s *TCPServer) SetHandler(handler ConnectionHandler) {
	failfast.NotNil(handler, "tcp handler")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	s.rebuildHandlerLocked()
}

// SetRejectHandler replaces the reject handler (fail-fast on nil).
func (s *TCPServer) SetRejectHandler(handler RejectHandler) {
	failfast.NotNil(handler, "tcp reject handler")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = handler
}

// Use adds middleware. Call before Start().
// Fail-fast: panics if any middleware is nil.
func (s *TCPServer) Use(mw ...Middleware) {
	if len(mw) == 0 {
		return
	}
	for _, m := range mw {
		failfast.NotNil(m, "tcp middleware")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, mw...)
	s.rebuildHandlerLocked()
}

func (s *TCPServer) rebuildHandlerLocked() {
	h := s.handler
	// First added runs outermost.
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		h = s.middlewares[i](h)
	}
	s.effective = h
}

// ListeningAddr returns the actual listening address (useful when Addr is ":0").
// Returns empty string if not currently listening.
func (s *TCPServer) ListeningAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Executor exposes the server's worker pool
func (s *TCPServer) Executor() concurrency.Executor {
	return s.pool
}

// doStart listens and runs the accept loop; it blocks until Stop.
func (s *TCPServer) doStart() error {
	var (
		ln  net.Listener
		err error
	)
	if s.config.TLSConfig != nil {
		ln, err = tls.Listen("tcp", s.config.Addr, s.config.TLSConfig)
	} else {
		ln, err = net.Listen("tcp", s.config.Addr)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	if atomic.LoadInt32(&s.stopping) == 1 {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.Logger().Infof("tcp server listening on %s (%d workers, queue %d)",
		ln.Addr(), s.config.Workers, s.config.MaxQueue)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.stopping) == 1 || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		atomic.AddInt64(&s.totalAccepted, 1)
		if !s.limiter.TryAcquire() {
			s.rejectConn(conn, ErrTooManyConns)
			continue
		}
		s.dispatch(conn)
	}
}

// doStop closes the listener, then drains the pool. Connections still queued
// are discarded by the pool and closed here.
func (s *TCPServer) doStop() error {
	atomic.StoreInt32(&s.stopping, 1)

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	err := s.pool.Shutdown(ctx)

	if n := s.closePending(); n > 0 {
		s.Logger().Warnf("tcp server closed %d queued connections at shutdown", n)
	}
	return err
}

// Metrics returns current server metrics.
func (s *TCPServer) Metrics() ServerMetrics {
	return ServerMetrics{
		TotalAccepted:       atomic.LoadInt64(&s.totalAccepted),
		RejectedConnections: atomic.LoadInt64(&s.rejectedConnections),
		HandledConnections:  atomic.LoadInt64(&s.handledConnections),
		ErrorConnections:    atomic.LoadInt64(&s.errorConnections),
		ActiveConnections:   s.limiter.Active(),
		MaxConns:            s.config.MaxConns,
		Pool:                s.pool.Stats(),
	}
}

func (s *TCPServer) dispatch(conn net.Conn) {
	s.pendingMu.Lock()
	s.pending[conn] = struct{}{}
	s.pendingMu.Unlock()

	job := concurrency.NewNamedJob("conn "+conn.RemoteAddr().String(), func() {
		s.serveConn(conn)
	})
	if err := s.pool.Submit(job); err != nil {
		// A rejected job never runs, so the pending entry is still ours.
		s.pendingMu.Lock()
		delete(s.pending, conn)
		s.pendingMu.Unlock()
		s.limiter.Release()
		s.rejectConn(conn, err)
	}
}

// claim removes conn from pending. Exactly one of a worker or closePending
// succeeds for each connection.
func (s *TCPServer) claim(conn net.Conn) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if _, ok := s.pending[conn]; !ok {
		return false
	}
	delete(s.pending, conn)
	return true
}

func (s *TCPServer) closePending() int {
	s.pendingMu.Lock()
	conns := make([]net.Conn, 0, len(s.pending))
	for c := range s.pending {
		conns = append(conns, c)
		delete(s.pending, c)
	}
	s.pendingMu.Unlock()

	for _, c := range conns {
		_ = c.Close()
		s.limiter.Release()
	}
	return len(conns)
}

// rejectConn runs on the accept goroutine; the write deadline bounds how
// long a slow client can hold it.
func (s *TCPServer) rejectConn(conn net.Conn, reason error) {
	atomic.AddInt64(&s.rejectedConnections, 1)

	s.mu.RLock()
	h := s.reject
	s.mu.RUnlock()

	_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.Logger().Errorf("panic in tcp reject handler (isolated): %v", r)
			}
		}()
		h(conn, reason)
	}()
	_ = conn.Close()

	s.Logger().Debugf("tcp connection from %s rejected: %v", conn.RemoteAddr(), reason)
}

func (s *TCPServer) serveConn(conn net.Conn) {
	if !s.claim(conn) {
		return
	}
	defer func() {
		_ = conn.Close()
		s.limiter.Release()
	}()

	now := time.Now()
	_ = conn.SetReadDeadline(now.Add(s.config.ReadTimeout))
	_ = conn.SetWriteDeadline(now.Add(s.config.WriteTimeout))

	ctx, id := core.EnsureRequestID(s.baseCtx)
	cctx := &ConnContext{
		Context:    ctx,
		Conn:       conn,
		LocalAddr:  conn.LocalAddr(),
		RemoteAddr: conn.RemoteAddr(),
		RequestID:  id,
	}

	s.mu.RLock()
	h := s.effective
	s.mu.RUnlock()

	atomic.AddInt64(&s.handledConnections, 1)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&s.errorConnections, 1)
			s.Logger().Errorf("panic in tcp handler (isolated) [%s]: %v", id, r)
		}
	}()
	if err := h(cctx); err != nil {
		atomic.AddInt64(&s.errorConnections, 1)
		s.Logger().Errorf("tcp handler error [%s]: %v", id, err)
	}
}

var _ Server = (*TCPServer)(nil)
