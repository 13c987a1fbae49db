package httpd

import (
	"net"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/fluxpool/pkg/core"
)

// BusyResponder answers connections the worker pool could not take with
// 503 Service Unavailable. Its Reject method is a tcp.RejectHandler.
type BusyResponder struct {
	// RetryAfter is advertised in the Retry-After header (whole seconds, min 1).
	RetryAfter time.Duration
	ServerName string
	Recorder   Recorder
	Logger     core.Logger
}

// Reject writes the 503 reply. The request itself is never read.
func (b *BusyResponder) Reject(conn net.Conn, reason error) {
	start := time.Now()
	name := b.ServerName
	if name == "" {
		name = DefaultServerName
	}

	resp := newResponse(name)
	defer fasthttp.ReleaseResponse(resp)

	secs := int(b.RetryAfter / time.Second)
	if secs < 1 {
		secs = 1
	}
	resp.Header.Set(fasthttp.HeaderRetryAfter, strconv.Itoa(secs))
	setError(resp, fasthttp.StatusServiceUnavailable, "The server is busy, try again later")

	err := writeResponse(conn, resp)
	if err != nil && b.Logger != nil {
		b.Logger.Debugf("busy reply to %s failed: %v", conn.RemoteAddr(), err)
	}
	if b.Recorder != nil {
		b.Recorder.RecordHTTPRequest("", fasthttp.StatusServiceUnavailable, time.Since(start), bodySize(resp))
	}
	if b.Logger != nil {
		b.Logger.Warnf("rejected connection from %s: %v", conn.RemoteAddr(), reason)
	}
}
