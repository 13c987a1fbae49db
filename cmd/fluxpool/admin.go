package main

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/fluxpool/pkg/auth"
	"github.com/fluxorio/fluxpool/pkg/config"
	"github.com/fluxorio/fluxpool/pkg/core"
	"github.com/fluxorio/fluxpool/pkg/observability/prometheus"
	"github.com/fluxorio/fluxpool/pkg/tcp"
)

// readyQueueLimit is the queue utilization (percent) above which /ready fails
const readyQueueLimit = 90

// serverStatus is the part of *tcp.TCPServer the admin endpoints read
type serverStatus interface {
	Metrics() tcp.ServerMetrics
	IsStarted() bool
	IsStopped() bool
}

// adminServer serves /metrics, /live and /ready on a separate listener so
// probes and scrapes never queue behind file requests.
type adminServer struct {
	addr        string
	metricsPath string
	metrics     fasthttp.RequestHandler
	status      serverStatus
	server      *fasthttp.Server
	// handler is handle behind the configured auth middleware
	handler fasthttp.RequestHandler
}

func newAdminServer(cfg config.MetricsConfig, status serverStatus, logger core.Logger) *adminServer {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	a := &adminServer{
		addr:        cfg.Addr,
		metricsPath: path,
		metrics:     prometheus.Handler(prometheus.DefaultRegistry),
		status:      status,
	}
	a.handler = a.handle
	if guard := adminAuth(cfg.Auth, logger); guard != nil {
		a.handler = guard(a.handle)
	}
	a.server = &fasthttp.Server{
		Handler:      a.handler,
		Name:         "fluxpool-admin",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		Logger:       adminLogger{logger},
	}
	return a
}

// adminAuth returns the middleware for cfg, or nil when auth is off.
// /live always stays open for orchestrator probes.
func adminAuth(cfg config.AdminAuthConfig, logger core.Logger) auth.Middleware {
	skip := []string{"/live"}
	switch {
	case cfg.JWTSecret != "":
		return auth.JWT(auth.JWTConfig{
			SecretKey: cfg.JWTSecret,
			Issuer:    cfg.JWTIssuer,
			Leeway:    30 * time.Second,
			SkipPaths: skip,
			Logger:    logger,
		})
	case cfg.Username != "":
		return auth.Basic(auth.BasicConfig{
			Username:     cfg.Username,
			PasswordHash: cfg.PasswordHash,
			SkipPaths:    skip,
		})
	default:
		return nil
	}
}

func (a *adminServer) ListenAndServe() error {
	return a.server.ListenAndServe(a.addr)
}

func (a *adminServer) Shutdown() error {
	return a.server.Shutdown()
}

func (a *adminServer) handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}

	switch string(ctx.Path()) {
	case a.metricsPath:
		a.metrics(ctx)
	case "/live":
		writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{"status": "up"})
	case "/ready":
		m := a.status.Metrics()
		ready := a.status.IsStarted() && !a.status.IsStopped() &&
			m.Pool.QueueUtilization < readyQueueLimit
		status := fasthttp.StatusOK
		if !ready {
			status = fasthttp.StatusServiceUnavailable
		}
		writeJSON(ctx, status, map[string]interface{}{
			"ready":         ready,
			"busy_workers":  m.Pool.BusyWorkers,
			"alive_workers": m.Pool.AliveWorkers,
			"queued":        m.Pool.QueuedJobs,
			"queue_cap":     m.Pool.QueueCapacity,
		})
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, body interface{}) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(body); err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
	}
}

// adminLogger routes fasthttp's internal messages to the app logger
type adminLogger struct {
	core.Logger
}

func (l adminLogger) Printf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}
