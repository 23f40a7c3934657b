package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the package-wide span source, named after the service so every
// span is attributable back to this binary in a shared collector.
var Tracer trace.Tracer = otel.Tracer("acs-core")

// InitTracing installs a TracerProvider tagging every span with
// serviceName, and registers it as the global provider so otelzap and any
// other otel-aware library picks it up automatically.
func InitTracing(ctx context.Context, serviceName string, exporter sdktrace.SpanExporter) (func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	Tracer = tp.Tracer(serviceName)

	return tp.Shutdown, nil
}

// StartSpan is a thin convenience wrapper kept alongside Tracer so command
// handlers read naturally: `ctx, span := telemetry.StartSpan(ctx, "name")`.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, name)
}
