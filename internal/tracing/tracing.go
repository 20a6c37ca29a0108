// Package tracing wires OpenTelemetry span and metric instrumentation
// across the bus and container runtime boundaries, the same zero-config
// local provider shape as 99souls-ariadne's telemetry bridge
// (engine/telemetry/{tracing,metrics}): no external exporter, just a
// process-local TracerProvider plus a counter recording call outcomes.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/jondmarien/hemostat"

var (
	tracer        = otel.Tracer(instrumentationName)
	meter         = otel.Meter(instrumentationName)
	busOpsTotal   metric.Int64Counter
	runtimeOpsAll metric.Int64Counter
)

func init() {
	busOpsTotal, _ = meter.Int64Counter("hemostat.bus.operations",
		metric.WithDescription("bus publish/subscribe calls by op and outcome"))
	runtimeOpsAll, _ = meter.Int64Counter("hemostat.runtime.operations",
		metric.WithDescription("container runtime calls by op and outcome"))
}

// NewTracerProvider installs a process-local TracerProvider as the
// global default and returns it so callers can Shutdown it on exit.
// There is no OTLP exporter configured, mirroring the teacher's
// "no external exporter" local setup: spans are still created, sampled,
// and ended, they're simply not shipped anywhere by default.
func NewTracerProvider(serviceName string) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer(instrumentationName)
	return tp
}

// EndFunc ends a span started by StartBusSpan/StartRuntimeSpan,
// recording err (if any) on the span and in the paired call counter.
type EndFunc func(err error)

// StartBusSpan starts a span around a single bus publish/subscribe call.
func StartBusSpan(ctx context.Context, op, channel string) (context.Context, EndFunc) {
	spanCtx, span := tracer.Start(ctx, "bus."+op, trace.WithAttributes(
		attribute.String("bus.op", op),
		attribute.String("bus.channel", channel),
	))
	return spanCtx, func(err error) {
		recordOutcome(spanCtx, span, busOpsTotal, op, err)
	}
}

// StartRuntimeSpan starts a span around a single container runtime call.
func StartRuntimeSpan(ctx context.Context, op, containerID string) (context.Context, EndFunc) {
	spanCtx, span := tracer.Start(ctx, "runtime."+op, trace.WithAttributes(
		attribute.String("runtime.op", op),
		attribute.String("runtime.container_id", containerID),
	))
	return spanCtx, func(err error) {
		recordOutcome(spanCtx, span, runtimeOpsAll, op, err)
	}
}

func recordOutcome(ctx context.Context, span trace.Span, counter metric.Int64Counter, op string, err error) {
	status := "ok"
	if err != nil {
		span.RecordError(err)
		status = "error"
	}
	if counter != nil {
		counter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		))
	}
	span.End()
}
