package prometheus

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/valyala/fasthttp"

	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
	"github.com/fluxorio/fluxpool/pkg/tcp"
)

type quietLogger struct{}

func (quietLogger) Errorf(string, ...interface{}) {}
func (quietLogger) Warnf(string, ...interface{}) {}
func (quietLogger) Debugf(string, ...interface{}) {}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordHTTPRequest("GET", 200, 10*time.Millisecond, 512)
	m.RecordHTTPRequest("GET", 200, 20*time.Millisecond, 512)
	m.RecordHTTPRequest("BREW", 501, time.Millisecond, 120)
	m.RecordHTTPRequest("", 503, time.Millisecond, 120)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "200")); got != 2 {
		t.Errorf("GET 200 = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("OTHER", "501")); got != 1 {
		t.Errorf("OTHER 501 = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("NONE", "503")); got != 1 {
		t.Errorf("NONE 503 = %v, want 1", got)
	}
}

func TestPoolObserver_WithPool(t *testing.T) {
	t.Parallel()
	m := NewMetrics(prometheus.NewRegistry())

	p, err := concurrency.NewPool(concurrency.PoolConfig{
		Workers:   2,
		QueueSize: 1,
		Logger:    quietLogger{},
		Observer:  NewPoolObserver(m),
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	if got := testutil.ToFloat64(m.PoolAliveWorkers); got != 2 {
		t.Errorf("alive workers = %v, want 2", got)
	}

	_ = p.Submit(concurrency.JobFunc(func() {}))
	p.WaitIdle()
	_ = p.Submit(concurrency.NewNamedJob("boom", func() { panic("boom") }))
	p.WaitIdle()
	_ = p.Submit(nil)

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	_ = p.Submit(concurrency.JobFunc(func() {}))

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"submitted", m.PoolJobsSubmitted, 2},
		{"completed", m.PoolJobsCompleted, 2},
		{"panicked", m.PoolJobsPanicked, 1},
		{"rejected invalid", m.PoolJobsRejected.WithLabelValues("invalid"), 1},
		{"rejected closed", m.PoolJobsRejected.WithLabelValues("closed"), 1},
		{"alive after shutdown", m.PoolAliveWorkers, 0},
		{"busy", m.PoolBusyWorkers, 0},
		{"queue depth", m.PoolQueueDepth, 0},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Errorf("%s = %v, want %v", c.name, got, c.want)
		}
	}
	if n := testutil.CollectAndCount(m.PoolJobDuration); n != 1 {
		t.Errorf("job duration series = %d, want 1", n)
	}
}

func TestPoolObserver_GaugesTrackDrain(t *testing.T) {
	t.Parallel()
	m := NewMetrics(prometheus.NewRegistry())

	p, err := concurrency.NewPool(concurrency.PoolConfig{
		Workers:   1,
		QueueSize: 5,
		Logger:    quietLogger{},
		Observer:  NewPoolObserver(m),
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Shutdown(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	if err := p.Submit(concurrency.JobFunc(func() {
		close(started)
		<-release
	})); err != nil {
		t.Fatalf("Submit(blocker): %v", err)
	}
	<-started

	for i := 0; i < 5; i++ {
		if err := p.Submit(concurrency.JobFunc(func() {})); err != nil {
			t.Fatalf("Submit(%d): %v", i, err)
		}
	}
	if got := testutil.ToFloat64(m.PoolQueueDepth); got != 5 {
		t.Errorf("queue depth while blocked = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.PoolBusyWorkers); got != 1 {
		t.Errorf("busy workers while blocked = %v, want 1", got)
	}

	close(release)
	p.WaitIdle()

	if got := p.QueueLen(); got != 0 {
		t.Fatalf("QueueLen() = %d, want 0", got)
	}
	if got := testutil.ToFloat64(m.PoolQueueDepth); got != 0 {
		t.Errorf("queue depth after drain = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.PoolBusyWorkers); got != 0 {
		t.Errorf("busy workers after drain = %v, want 0", got)
	}
}

func TestRejectReason(t *testing.T) {
	t.Parallel()
	if got := rejectReason(concurrency.ErrQueueFull); got != "queue_full" {
		t.Errorf("rejectReason(ErrQueueFull) = %q", got)
	}
	if got := rejectReason(concurrency.ErrSubmitTimeout); got != "invalid" {
		t.Errorf("rejectReason(ErrSubmitTimeout) = %q", got)
	}
}

type fixedSource tcp.ServerMetrics

func (f fixedSource) Metrics() tcp.ServerMetrics { return tcp.ServerMetrics(f) }

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RecordHTTPRequest("GET", 404, time.Millisecond, 10)

	if err := m.RegisterServer(fixedSource{TotalAccepted: 7, ActiveConnections: 3}); err != nil {
		t.Fatalf("RegisterServer: %v", err)
	}
	if err := m.RegisterServer(fixedSource{}); err == nil {
		t.Error("registering a second server on one registry should fail")
	}

	var req fasthttp.Request
	req.SetRequestURI("/metrics")
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)

	Handler(reg)(&ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	body := string(ctx.Response.Body())
	for _, want := range []string{
		`fluxpool_http_requests_total{method="GET",status="404"} 1`,
		"fluxpool_server_connections_accepted_total 7",
		"fluxpool_server_connections_active 3",
		"fluxpool_pool_queue_depth 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestGetMetrics_Singleton(t *testing.T) {
	if GetMetrics() != GetMetrics() {
		t.Fatal("GetMetrics() should return one instance")
	}
	if NewPoolObserver(nil).m != GetMetrics() {
		t.Error("NewPoolObserver(nil) should use the global metrics")
	}
}
