package prometheus

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefaultRegistry is the default Prometheus registry
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer is the default Prometheus registerer
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "fluxpool"}, DefaultRegistry)

	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP responses written by the static handler and the busy responder
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Worker pool
	PoolJobsSubmitted prometheus.Counter
	PoolJobsRejected  *prometheus.CounterVec
	PoolJobsCompleted prometheus.Counter
	PoolJobsPanicked  prometheus.Counter
	PoolJobDuration   prometheus.Histogram
	PoolBusyWorkers   prometheus.Gauge
	PoolAliveWorkers  prometheus.Gauge
	PoolQueueDepth    prometheus.Gauge

	registerer prometheus.Registerer
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics creates a new metrics collection
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	f := promauto.With(registerer)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxpool_http_requests_total",
				Help: "Total number of HTTP responses written",
			},
			[]string{"method", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fluxpool_http_request_duration_seconds",
				Help:    "Time from accepting a request on a worker to the response being written",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
		HTTPResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fluxpool_http_response_size_bytes",
				Help:    "HTTP response body size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 7), // 100B to 100MB
			},
			[]string{"method", "status"},
		),

		PoolJobsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "fluxpool_pool_jobs_submitted_total",
			Help: "Jobs accepted into the queue",
		}),
		PoolJobsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxpool_pool_jobs_rejected_total",
				Help: "Jobs refused by the pool",
			},
			[]string{"reason"}, // queue_full, closed, invalid
		),
		PoolJobsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "fluxpool_pool_jobs_completed_total",
			Help: "Jobs that ran to completion or panicked",
		}),
		PoolJobsPanicked: f.NewCounter(prometheus.CounterOpts{
			Name: "fluxpool_pool_jobs_panicked_total",
			Help: "Jobs that panicked (isolated by the worker)",
		}),
		PoolJobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fluxpool_pool_job_duration_seconds",
			Help:    "Job run time on a worker",
			Buckets: prometheus.DefBuckets,
		}),
		PoolBusyWorkers: f.NewGauge(prometheus.GaugeOpts{
			Name: "fluxpool_pool_busy_workers",
			Help: "Workers currently running a job",
		}),
		PoolAliveWorkers: f.NewGauge(prometheus.GaugeOpts{
			Name: "fluxpool_pool_alive_workers",
			Help: "Workers that have started and not yet exited",
		}),
		PoolQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "fluxpool_pool_queue_depth",
			Help: "Jobs waiting in the queue",
		}),

		registerer: registerer,
	}
}

// RecordHTTPRequest records one HTTP response
func (m *Metrics) RecordHTTPRequest(method string, status int, duration time.Duration, responseSize int64) {
	method = normalizeMethod(method)
	code := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, code).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, code).Observe(float64(responseSize))
}

// normalizeMethod keeps label cardinality bounded: clients choose the method.
func normalizeMethod(method string) string {
	switch method {
	case "GET", "HEAD", "POST", "PUT", "DELETE", "PATCH", "OPTIONS", "CONNECT", "TRACE":
		return method
	case "":
		return "NONE"
	default:
		return "OTHER"
	}
}
