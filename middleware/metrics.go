package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for ledgerrun metrics.
const meterName = "github.com/ledgerrun/ledgerrun"

// Metrics returns middleware that records per-operation execution
// metrics using the global OTel MeterProvider. With no MeterProvider
// configured, noop instruments are used.
//
// Instruments:
//   - ledgerrun.operation.duration (Float64Histogram): attempt time in
//     seconds, with attributes: operation, status ("ok" or "error")
//   - ledgerrun.operation.attempts (Int64Counter): total attempts,
//     with attributes: operation, status ("ok" or "error")
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the OTel API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"ledgerrun.operation.duration",
		metric.WithDescription("Duration of operation attempts in seconds"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(
		"ledgerrun.operation.attempts",
		metric.WithDescription("Total number of operation attempts"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, call *Call, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("operation", call.Name),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		attempts.Add(ctx, 1, attrs)

		return err
	}
}
