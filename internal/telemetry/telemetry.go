// Package telemetry provides OpenTelemetry tracing for the client and devserver.
package telemetry

import (
	"context"
	"os"
	"runtime"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	scope          = "codebound/"
	serviceVersion = "0.1.0"
)

var enabled atomic.Bool

// Setup installs a global provider exporting over OTLP HTTP, configured by
// the standard OTEL_EXPORTER_OTLP_* variables. extra is added to the resource,
// e.g. the game server a client talks to. Call the returned function on exit.
func Setup(ctx context.Context, serviceName string, extra ...attribute.KeyValue) (shutdown func(context.Context) error, err error) {
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	attrs := append([]attribute.KeyValue{
		attribute.String("service.name", serviceName),
		attribute.String("service.version", serviceVersion),
		attribute.String("host.name", hostname()),
		attribute.String("os.type", runtime.GOOS),
		attribute.String("process.runtime.version", runtime.Version()),
	}, extra...)
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	enabled.Store(true)

	return func(ctx context.Context) error {
		enabled.Store(false)
		return tp.Shutdown(ctx)
	}, nil
}

// Enabled reports whether Setup installed an exporting provider.
func Enabled() bool {
	return enabled.Load()
}

// Tracer returns the tracer for a component. Before Setup, and after
// shutdown, it is a no-op tracer.
func Tracer(name string) trace.Tracer {
	if !Enabled() {
		return NoopTracer()
	}
	return otel.GetTracerProvider().Tracer(scope + name)
}

// NoopTracer returns a tracer whose spans record nothing.
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer(scope + "noop")
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
