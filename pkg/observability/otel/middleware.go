package otel

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/fluxpool/pkg/tcp"
)

// ConnMiddleware opens a server span around each connection handler and
// makes it the parent for spans the handler starts from ctx.Context.
// A nil tracer uses the global provider.
func ConnMiddleware(tracer trace.Tracer) tcp.Middleware {
	if tracer == nil {
		tracer = Tracer("github.com/fluxorio/fluxpool/pkg/tcp")
	}
	return func(next tcp.ConnectionHandler) tcp.ConnectionHandler {
		return func(c *tcp.ConnContext) error {
			ctx, span := tracer.Start(c.Context, "tcp.conn",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("network.peer.address", c.RemoteAddr.String()),
					attribute.String("request.id", c.RequestID),
				),
			)
			defer span.End()

			parent := c.Context
			c.Context = ctx
			err := next(c)
			c.Context = parent

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}
