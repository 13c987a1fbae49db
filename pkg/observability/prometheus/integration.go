package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/fluxorio/fluxpool/pkg/tcp"
)

// Handler serves the exposition format for gatherer (DefaultRegistry if nil)
// as a fasthttp handler
func Handler(gatherer prometheus.Gatherer) fasthttp.RequestHandler {
	if gatherer == nil {
		gatherer = DefaultRegistry
	}
	return fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	)
}

// MetricsSource is anything reporting tcp.ServerMetrics; *tcp.TCPServer does
type MetricsSource interface {
	Metrics() tcp.ServerMetrics
}

// RegisterServer exposes a TCP server's connection counters. Values are read
// from src at scrape time.
func (m *Metrics) RegisterServer(src MetricsSource) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "fluxpool_server_connections_accepted_total",
			Help: "Connections returned by Accept",
		}, func() float64 { return float64(src.Metrics().TotalAccepted) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "fluxpool_server_connections_rejected_total",
			Help: "Connections answered by the reject handler",
		}, func() float64 { return float64(src.Metrics().RejectedConnections) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "fluxpool_server_connections_errors_total",
			Help: "Connection handlers that failed or panicked",
		}, func() float64 { return float64(src.Metrics().ErrorConnections) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "fluxpool_server_connections_active",
			Help: "Queued plus in-flight connections",
		}, func() float64 { return float64(src.Metrics().ActiveConnections) }),
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}
