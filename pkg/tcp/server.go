package tcp

import (
	"context"
	"net"

	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
)

// Server is the acceptor surface the binary depends on
type Server interface {
	// Start listens and serves; it blocks until Stop.
	Start() error

	// Stop closes the listener and drains the worker pool.
	Stop() error

	// SetHandler sets the connection handler (fail-fast on nil).
	SetHandler(handler ConnectionHandler)

	// Metrics returns current server metrics.
	Metrics() ServerMetrics
}

// ConnectionHandler handles a single TCP connection on a pool worker.
// The server closes the connection after the handler returns.
type ConnectionHandler func(ctx *ConnContext) error

// Middleware wraps a ConnectionHandler
type Middleware func(next ConnectionHandler) ConnectionHandler

// RejectHandler writes a refusal to a connection the server could not
// schedule. reason is concurrency.ErrQueueFull, concurrency.ErrPoolClosed or
// ErrTooManyConns. The server closes conn afterwards.
type RejectHandler func(conn net.Conn, reason error)

// ConnContext is what a handler gets for one connection
type ConnContext struct {
	// Context is cancelled when the server stops and carries the request ID.
	Context context.Context
	Conn    net.Conn

	LocalAddr  net.Addr
	RemoteAddr net.Addr
	RequestID  string
}

// ServerMetrics provides TCP server counters.
type ServerMetrics struct {
	TotalAccepted       int64 // Connections returned by Accept
	RejectedConnections int64 // Connections refused (queue full, pool closed or MaxConns)
	HandledConnections  int64 // Connections a worker ran the handler for
	ErrorConnections    int64 // Handlers that returned an error or panicked
	ActiveConnections   int64 // Queued plus in-flight connections
	MaxConns            int   // 0 means unlimited

	Pool concurrency.PoolStats
}
