// Package otel wires the OpenTelemetry SDK: a global tracer provider with a
// stdout or Zipkin exporter, and a TCP middleware that opens one span per
// connection.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	ExporterStdout = "stdout"
	ExporterZipkin = "zipkin"
	ExporterNone   = "none"
)

// Config configures tracing
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Exporter is one of "stdout", "zipkin" or "none" (default).
	Exporter string
	// Endpoint is the Zipkin collector URL, e.g.
	// "http://localhost:9411/api/v2/spans". Ignored for stdout.
	Endpoint string
	// SampleRate is the fraction of root spans sampled, 0..1.
	SampleRate float64

	// Writer receives stdout exporter output. Default os.Stdout.
	Writer io.Writer
}

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
)

// Initialize installs a global tracer provider for cfg. With the "none"
// exporter it does nothing. Calling it again replaces the previous provider
// after shutting it down.
func Initialize(ctx context.Context, cfg Config) error {
	exporter, err := newExporter(cfg)
	if err != nil {
		return err
	}
	if exporter == nil {
		return nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "fluxpool"
	}
	rate := cfg.SampleRate
	if rate < 0 || rate > 1 {
		return fmt.Errorf("otel: sample rate %v out of range [0,1]", rate)
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)

	mu.Lock()
	prev := provider
	provider = tp
	mu.Unlock()

	otelapi.SetTracerProvider(tp)
	otelapi.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if prev != nil {
		return prev.Shutdown(ctx)
	}
	return nil
}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w))
	case ExporterZipkin:
		if cfg.Endpoint == "" {
			return nil, errors.New("otel: zipkin exporter needs an endpoint")
		}
		return zipkin.New(cfg.Endpoint)
	default:
		return nil, fmt.Errorf("otel: unknown exporter %q", cfg.Exporter)
	}
}

// IsInitialized reports whether Initialize installed a provider
func IsInitialized() bool {
	mu.Lock()
	defer mu.Unlock()
	return provider != nil
}

// Shutdown flushes and stops the installed provider
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	mu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// Tracer returns a tracer from the global provider
func Tracer(name string) trace.Tracer {
	return otelapi.Tracer(name)
}
