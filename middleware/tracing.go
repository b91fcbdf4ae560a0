package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for ledgerrun tracing.
const tracerName = "github.com/ledgerrun/ledgerrun"

// Tracing returns middleware that wraps each operation attempt in an
// OpenTelemetry span. With no TracerProvider configured globally the
// default noop tracer is used.
//
// Span attributes: ledgerrun.operation and ledgerrun.attempt. On error
// the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, call *Call, next Handler) error {
		ctx, span := tracer.Start(ctx, "ledgerrun.operation.invoke",
			trace.WithAttributes(
				attribute.String("ledgerrun.operation", call.Name),
				attribute.Int("ledgerrun.attempt", call.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
