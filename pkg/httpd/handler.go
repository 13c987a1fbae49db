// Package httpd serves static files over the worker-pool TCP server.
//
// Each accepted connection carries exactly one request: the handler reads
// the request head, writes one response and the server closes the
// connection.
package httpd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/fluxpool/pkg/core"
	"github.com/fluxorio/fluxpool/pkg/events"
	"github.com/fluxorio/fluxpool/pkg/tcp"
)

const instrumentationName = "github.com/fluxorio/fluxpool/pkg/httpd"

// Recorder receives one observation per response
type Recorder interface {
	RecordHTTPRequest(method string, status int, duration time.Duration, responseSize int64)
}

// StaticHandler serves GET requests for regular files under a root directory
type StaticHandler struct {
	root       string
	serverName string

	logger   core.Logger
	tracer   trace.Tracer
	recorder Recorder
	sink     events.Sink

	openFile func(name string) (io.ReadCloser, error)
}

// Option customizes a StaticHandler
type Option func(*StaticHandler)

// WithServerName sets the Server header
func WithServerName(name string) Option {
	return func(h *StaticHandler) { h.serverName = name }
}

// WithLogger sets the handler's logger
func WithLogger(l core.Logger) Option {
	return func(h *StaticHandler) { h.logger = l }
}

// WithTracer sets the tracer used for per-request spans.
// The default is the global OpenTelemetry tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(h *StaticHandler) { h.tracer = t }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(h *StaticHandler) { h.recorder = r }
}

// WithSink sets the access-event sink
func WithSink(s events.Sink) Option {
	return func(h *StaticHandler) { h.sink = s }
}

// NewStaticHandler serves files under root, which must be an existing directory
func NewStaticHandler(root string, opts ...Option) (*StaticHandler, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("static root %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("static root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("static root %q is not a directory", abs)
	}

	h := &StaticHandler{
		root:       abs,
		serverName: DefaultServerName,
		logger:     core.NewDefaultLogger(),
		sink:       events.NopSink{},
		openFile: func(name string) (io.ReadCloser, error) {
			return os.Open(name)
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.tracer == nil {
		h.tracer = otelapi.Tracer(instrumentationName)
	}
	return h, nil
}

// Root returns the absolute document root
func (h *StaticHandler) Root() string {
	return h.root
}

// ServeConn is a tcp.ConnectionHandler
func (h *StaticHandler) ServeConn(c *tcp.ConnContext) error {
	start := time.Now()

	var req fasthttp.RequestHeader
	readErr := req.Read(bufio.NewReader(c.Conn))
	if errors.Is(readErr, io.EOF) {
		// Client connected and went away without sending anything.
		return nil
	}

	parent := c.Context
	if readErr == nil {
		parent = otelapi.GetTextMapPropagator().Extract(parent, headerCarrier{&req})
	}
	ctx, span := h.tracer.Start(parent, "HTTP "+methodName(&req, readErr),
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	resp := newResponse(h.serverName)
	defer fasthttp.ReleaseResponse(resp)

	status := h.respond(&req, readErr, resp)
	writeErr := writeResponse(c.Conn, resp)
	elapsed := time.Since(start)
	size := bodySize(resp)

	method, path, proto := "", "", ""
	if readErr == nil {
		method = string(req.Method())
		path = string(req.RequestURI())
		proto = string(req.Protocol())
	}

	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
		attribute.Int("http.response.status_code", status),
		attribute.String("client.address", c.RemoteAddr.String()),
		attribute.String("request.id", c.RequestID),
	)
	if status >= 500 {
		span.SetStatus(codes.Error, fasthttp.StatusMessage(status))
	}
	if writeErr != nil {
		span.RecordError(writeErr)
	}

	if h.recorder != nil {
		h.recorder.RecordHTTPRequest(method, status, elapsed, size)
	}
	h.publish(ctx, events.AccessEvent{
		RequestID:  c.RequestID,
		Time:       start,
		RemoteAddr: c.RemoteAddr.String(),
		Method:     method,
		Path:       path,
		Proto:      proto,
		Status:     status,
		Bytes:      size,
		Duration:   elapsed,
	})

	if writeErr != nil {
		return fmt.Errorf("write %d response: %w", status, writeErr)
	}
	return nil
}

func (h *StaticHandler) publish(ctx context.Context, ev events.AccessEvent) {
	if err := h.sink.Publish(ctx, ev); err != nil {
		h.logger.Warnf("access event [%s]: %v", ev.RequestID, err)
	}
}

// respond fills resp for the parsed request head and returns the status
func (h *StaticHandler) respond(req *fasthttp.RequestHeader, readErr error, resp *fasthttp.Response) int {
	if readErr != nil {
		h.logger.Debugf("bad request: %v", readErr)
		return setError(resp, fasthttp.StatusBadRequest, "Client sent a malformed or non-HTTP request")
	}
	if code, msg := checkProtocol(req.Protocol()); code != 0 {
		return setError(resp, code, msg)
	}
	if !req.IsGet() {
		return setError(resp, fasthttp.StatusNotImplemented, "Server cannot fulfill the request method for now")
	}

	rel, err := requestPath(req.RequestURI())
	if err != nil {
		return setError(resp, fasthttp.StatusBadRequest, "Malformed request target")
	}
	name, ok := h.resolve(rel)
	if !ok {
		return setError(resp, fasthttp.StatusForbidden, "")
	}

	info, err := os.Stat(name)
	if err != nil {
		return setError(resp, fasthttp.StatusNotFound, "The requested resource could not be found")
	}
	if !info.Mode().IsRegular() || info.Mode().Perm()&0o400 == 0 {
		return setError(resp, fasthttp.StatusForbidden, "")
	}

	f, err := h.openFile(name)
	if err != nil {
		h.logger.Errorf("open %s: %v", name, err)
		return setError(resp, fasthttp.StatusInternalServerError, "")
	}

	resp.SetStatusCode(fasthttp.StatusOK)
	resp.Header.SetContentType(ContentType(name))
	// fasthttp closes the stream once the body is written or the response released.
	resp.SetBodyStream(f, int(info.Size()))
	return fasthttp.StatusOK
}

// checkProtocol accepts HTTP/1.0 and HTTP/1.1. It returns 400 for a
// non-HTTP protocol and 505 for any other HTTP version.
func checkProtocol(proto []byte) (int, string) {
	name, version, ok := bytes.Cut(proto, []byte("/"))
	if !ok || string(name) != "HTTP" {
		return fasthttp.StatusBadRequest, "Client sent a Non-HTTP request"
	}
	switch string(version) {
	case "1.0", "1.1":
		return 0, ""
	default:
		return fasthttp.StatusHTTPVersionNotSupported, ""
	}
}

// requestPath extracts the decoded path from an origin-form request target
func requestPath(uri []byte) (string, error) {
	target := string(uri)
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	if !strings.HasPrefix(target, "/") {
		return "", fmt.Errorf("request target %q is not origin-form", target)
	}
	return url.PathUnescape(target)
}

// resolve maps a request path to a file under root. A trailing slash selects
// index.html. ok is false if the path climbs above root.
func (h *StaticHandler) resolve(p string) (string, bool) {
	if strings.HasSuffix(p, "/") {
		p += "index.html"
	}

	var parts []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(parts) == 0 {
				return "", false
			}
			parts = parts[:len(parts)-1]
		default:
			if strings.ContainsRune(seg, filepath.Separator) || strings.ContainsRune(seg, 0) {
				return "", false
			}
			parts = append(parts, seg)
		}
	}
	return filepath.Join(append([]string{h.root}, parts...)...), true
}

func methodName(req *fasthttp.RequestHeader, readErr error) string {
	if readErr != nil {
		return "request"
	}
	return string(req.Method())
}

// headerCarrier exposes request headers to OpenTelemetry propagators
type headerCarrier struct {
	h *fasthttp.RequestHeader
}

func (c headerCarrier) Get(key string) string { return string(c.h.Peek(key)) }

func (c headerCarrier) Set(key, value string) { c.h.Set(key, value) }

func (c headerCarrier) Keys() []string {
	var keys []string
	c.h.VisitAll(func(k, _ []byte) {
		keys = append(keys, string(k))
	})
	return keys
}
