package httpd

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/fluxpool/pkg/core"
	"github.com/fluxorio/fluxpool/pkg/events"
	"github.com/fluxorio/fluxpool/pkg/tcp"
)

type observation struct {
	method string
	status int
	size   int64
}

type testRecorder struct {
	mu  sync.Mutex
	obs []observation
}

func (r *testRecorder) RecordHTTPRequest(method string, status int, _ time.Duration, size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, observation{method, status, size})
}

func (r *testRecorder) last() observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.obs) == 0 {
		return observation{}
	}
	return r.obs[len(r.obs)-1]
}

type chanSink chan events.AccessEvent

func (c chanSink) Publish(_ context.Context, ev events.AccessEvent) error {
	c <- ev
	return nil
}

// newTestRoot lays out:
//
//	index.html
//	style.css
//	docs/index.html
//	docs/empty/
func newTestRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write := func(name, body string) {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("index.html", "<p>home</p>")
	write("style.css", "body{}")
	write("docs/index.html", "<p>docs</p>")
	if err := os.MkdirAll(filepath.Join(root, "docs", "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return root
}

func newTestHandler(t *testing.T, opts ...Option) *StaticHandler {
	t.Helper()
	opts = append([]Option{WithLogger(core.NewNopLogger())}, opts...)
	h, err := NewStaticHandler(newTestRoot(t), opts...)
	if err != nil {
		t.Fatalf("NewStaticHandler: %v", err)
	}
	return h
}

// do sends raw over an in-memory connection served by h and parses the reply
func do(t *testing.T, h *StaticHandler, raw string) *fasthttp.Response {
	t.Helper()

	pc := fasthttputil.NewPipeConns()
	client, server := pc.Conn1(), pc.Conn2()

	done := make(chan error, 1)
	go func() {
		defer server.Close()
		done <- h.ServeConn(&tcp.ConnContext{
			Context:    context.Background(),
			Conn:       server,
			LocalAddr:  server.LocalAddr(),
			RemoteAddr: server.RemoteAddr(),
			RequestID:  "test-req",
		})
	}()

	if _, err := io.WriteString(client, raw); err != nil {
		t.Fatalf("write request: %v", err)
	}

	resp := &fasthttp.Response{}
	if err := resp.Read(bufio.NewReader(client)); err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = client.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ServeConn: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConn did not return")
	}
	return resp
}

func get(path string) string {
	return "GET " + path + " HTTP/1.1\r\nHost: test\r\n\r\n"
}

func TestNewStaticHandler_RootMustBeDirectory(t *testing.T) {
	t.Parallel()

	root := newTestRoot(t)
	if _, err := NewStaticHandler(filepath.Join(root, "missing")); err == nil {
		t.Error("expected error for missing root")
	}
	if _, err := NewStaticHandler(filepath.Join(root, "index.html")); err == nil {
		t.Error("expected error for file root")
	}
}

func TestStaticHandler_Responses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		raw         string
		wantStatus  int
		wantBody    string
		contentType string
	}{
		{"file", get("/style.css"), 200, "body{}", "text/css"},
		{"root index", get("/"), 200, "<p>home</p>", "text/html"},
		{"directory index", get("/docs/"), 200, "<p>docs</p>", "text/html"},
		{"query ignored", get("/style.css?v=2"), 200, "body{}", "text/css"},
		{"escaped name", get("/%73tyle.css"), 200, "body{}", "text/css"},
		{"http 1.0", "GET /index.html HTTP/1.0\r\n\r\n", 200, "<p>home</p>", "text/html"},
		{"missing", get("/nope.html"), 404, "The requested resource could not be found", "text/html"},
		{"missing index", get("/docs/empty/"), 404, "404 Not Found", "text/html"},
		{"directory without slash", get("/docs"), 403, "403 Forbidden", "text/html"},
		{"escape root", get("/../etc/passwd"), 403, "403 Forbidden", "text/html"},
		{"escape root encoded", get("/%2e%2e/etc/passwd"), 403, "403 Forbidden", "text/html"},
		{"post", "POST / HTTP/1.1\r\nHost: test\r\nContent-Length: 0\r\n\r\n", 501, "501 Not Implemented", "text/html"},
		{"head", "HEAD / HTTP/1.1\r\nHost: test\r\n\r\n", 501, "", "text/html"},
		{"http 2", "GET / HTTP/2.0\r\nHost: test\r\n\r\n", 505, "505 HTTP Version Not Supported", "text/html"},
		{"non-http", "GET / FTP/1.0\r\n\r\n", 400, "400 Bad Request", "text/html"},
		{"garbage", "hello\r\n\r\n", 400, "400 Bad Request", "text/html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newTestHandler(t)
			resp := do(t, h, tt.raw)

			if resp.StatusCode() != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", resp.StatusCode(), tt.wantStatus, resp.Body())
			}
			if !strings.Contains(string(resp.Body()), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", resp.Body(), tt.wantBody)
			}
			if ct := string(resp.Header.ContentType()); !strings.HasPrefix(ct, tt.contentType) {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			if got := string(resp.Header.Server()); got != DefaultServerName {
				t.Errorf("Server = %q, want %q", got, DefaultServerName)
			}
			if resp.Header.ContentLength() != len(resp.Body()) {
				t.Errorf("Content-Length = %d, body is %d bytes", resp.Header.ContentLength(), len(resp.Body()))
			}
			if !resp.ConnectionClose() {
				t.Error("expected Connection: close")
			}
		})
	}
}

func TestStaticHandler_ErrorPageFormat(t *testing.T) {
	t.Parallel()

	resp := do(t, newTestHandler(t), get("/nope"))
	want := `<body><h1><b>404 Not Found</b></h1><p>The requested resource could not be found</p></body>`
	if !strings.Contains(string(resp.Body()), want) {
		t.Errorf("error page = %q, want it to contain %q", resp.Body(), want)
	}
}

func TestStaticHandler_OpenFailure(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	h.openFile = func(string) (io.ReadCloser, error) {
		return nil, errors.New("too many open files")
	}

	resp := do(t, h, get("/index.html"))
	if resp.StatusCode() != fasthttp.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode())
	}
}

func TestStaticHandler_Unreadable(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	if err := os.WriteFile(filepath.Join(h.Root(), "secret.txt"), []byte("x"), 0o200); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := do(t, h, get("/secret.txt")); resp.StatusCode() != fasthttp.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode())
	}
}

func TestStaticHandler_ReportsRecorderSinkAndSpan(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	rec := &testRecorder{}
	sink := make(chanSink, 1)
	h := newTestHandler(t,
		WithTracer(tp.Tracer("test")),
		WithRecorder(rec),
		WithSink(sink),
		WithServerName("unit"),
	)

	resp := do(t, h, get("/style.css"))
	if got := string(resp.Header.Server()); got != "unit" {
		t.Errorf("Server = %q, want unit", got)
	}

	if got := rec.last(); got != (observation{"GET", 200, int64(len("body{}"))}) {
		t.Errorf("recorded %+v", got)
	}

	select {
	case ev := <-sink:
		if ev.RequestID != "test-req" || ev.Status != 200 || ev.Path != "/style.css" || ev.Method != "GET" {
			t.Errorf("access event = %+v", ev)
		}
		if ev.Proto != "HTTP/1.1" {
			t.Errorf("Proto = %q", ev.Proto)
		}
	default:
		t.Fatal("no access event published")
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if spans[0].Name() != "HTTP GET" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	var status int64
	for _, kv := range spans[0].Attributes() {
		if kv.Key == attribute.Key("http.response.status_code") {
			status = kv.Value.AsInt64()
		}
	}
	if status != 200 {
		t.Errorf("span status code attribute = %d, want 200", status)
	}
}

func TestHeaderCarrier_TraceContext(t *testing.T) {
	var req fasthttp.RequestHeader
	raw := "GET / HTTP/1.1\r\nHost: x\r\n" +
		"Traceparent: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01\r\n\r\n"
	if err := req.Read(bufio.NewReader(strings.NewReader(raw))); err != nil {
		t.Fatalf("read header: %v", err)
	}

	carrier := headerCarrier{&req}
	ctx := propagation.TraceContext{}.Extract(context.Background(), carrier)
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsRemote() {
		t.Fatalf("span context not extracted: %+v", sc)
	}
	if got := sc.TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s", got)
	}

	carrier.Set("X-Extra", "1")
	if carrier.Get("X-Extra") != "1" {
		t.Error("Set/Get round trip failed")
	}
	found := false
	for _, k := range carrier.Keys() {
		if strings.EqualFold(k, "traceparent") {
			found = true
		}
	}
	if !found {
		t.Errorf("Keys() = %v, missing traceparent", carrier.Keys())
	}
}

func TestStaticHandler_ClientHangsUp(t *testing.T) {
	t.Parallel()

	rec := &testRecorder{}
	h := newTestHandler(t, WithRecorder(rec))

	pc := fasthttputil.NewPipeConns()
	_ = pc.Conn1().Close()

	err := h.ServeConn(&tcp.ConnContext{
		Context:    context.Background(),
		Conn:       pc.Conn2(),
		RemoteAddr: pc.Conn2().RemoteAddr(),
	})
	if err != nil {
		t.Fatalf("ServeConn() = %v, want nil for an empty connection", err)
	}
	if got := rec.last(); got != (observation{}) {
		t.Errorf("nothing should be recorded, got %+v", got)
	}
}

func TestCheckProtocol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		proto string
		want  int
	}{
		{"HTTP/1.0", 0},
		{"HTTP/1.1", 0},
		{"HTTP/2.0", 505},
		{"HTTP/0.9", 505},
		{"FTP/1.0", 400},
		{"HTTP", 400},
		{"", 400},
	}
	for _, tt := range tests {
		if got, _ := checkProtocol([]byte(tt.proto)); got != tt.want {
			t.Errorf("checkProtocol(%q) = %d, want %d", tt.proto, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"index.html":   "text/html",
		"a/b/page.HTM": "text/html",
		"photo.jpg":    "image/jpeg",
		"photo.jpeg":   "image/jpeg",
		"logo.png":     "image/png",
		"anim.gif":     "image/gif",
		"site.css":     "text/css",
		"app.js":       "application/javascript",
		"data.json":    "application/json",
		"README":       "text/plain",
		"notes.txt":    "text/plain",
	}
	for name, want := range tests {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}
