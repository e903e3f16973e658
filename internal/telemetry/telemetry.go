// Package telemetry provides OpenTelemetry integration for loom.
//
// Telemetry is disabled by default (zero runtime overhead when off).
//
// # Configuration
//
//	LOOM_OTEL_ENABLED=true            enable telemetry (config key otel.enabled)
//	LOOM_OTEL_ENDPOINT=host:4317      OTLP gRPC endpoint (config key otel.endpoint)
//	OTEL_EXPORTER_OTLP_ENDPOINT=...   standard endpoint var, used when otel.endpoint is empty
//	OTEL_SERVICE_NAME=loom            override service name
//
// # Supported exporters
//
//   - stderr: pretty-prints spans/metrics when no endpoint is configured.
//     stdout stays clean because it carries the MCP wire protocol.
//   - OTLP/gRPC: Jaeger, Grafana Tempo, Honeycomb, Datadog, etc.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/loomhq/loom"

// Options resolve from internal/config (otel.enabled, otel.endpoint) plus
// the build version stamped by cmd/loom.
type Options struct {
	Enabled     bool
	ServiceName string
	Version     string
	// Endpoint is an OTLP gRPC target (host:port). Empty falls back to
	// OTEL_EXPORTER_OTLP_ENDPOINT, then to stderr pretty-printing.
	Endpoint string
}

var (
	active      bool
	shutdownFns []func(context.Context) error
)

// Enabled reports whether Init installed real providers.
func Enabled() bool {
	return active
}

// Init configures OTel providers. When opts.Enabled is false this installs
// no-op providers and returns immediately (zero overhead path).
func Init(ctx context.Context, opts Options) error {
	if !opts.Enabled {
		active = false
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opts.ServiceName),
			semconv.ServiceVersionKey.String(opts.Version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	tp, err := buildTraceProvider(ctx, res, endpoint)
	if err != nil {
		return fmt.Errorf("telemetry: trace provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	shutdownFns = append(shutdownFns, tp.Shutdown)

	mp, err := buildMetricProvider(ctx, res, endpoint)
	if err != nil {
		return fmt.Errorf("telemetry: metric provider: %w", err)
	}
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)

	active = true
	return nil
}

func buildTraceProvider(ctx context.Context, res *resource.Resource, endpoint string) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	if endpoint != "" {
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
	} else {
		exporter, err = stdouttrace.New(
			stdouttrace.WithWriter(os.Stderr),
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return nil, err
		}
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
	), nil
}

func buildMetricProvider(ctx context.Context, res *resource.Resource, endpoint string) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if endpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second)),
		))
	} else {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second)),
		))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

// Tracer returns a tracer with the given instrumentation name (or the global scope).
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter with the given instrumentation name (or the global scope).
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes all spans/metrics and shuts down OTel providers.
// Should be deferred with a short-lived context once the command finishes.
func Shutdown(ctx context.Context) {
	for _, fn := range shutdownFns {
		_ = fn(ctx)
	}
	shutdownFns = nil
	active = false
}

var (
	toolOnce    sync.Once
	toolCounter metric.Int64Counter
)

// CountToolInvocation records one MCP tool call and its outcome.
// No-op while telemetry is disabled.
func CountToolInvocation(ctx context.Context, tool string, success bool) {
	if !Enabled() {
		return
	}
	toolOnce.Do(func() {
		toolCounter, _ = Meter(instrumentationScope).Int64Counter("loom.tool.invocations",
			metric.WithDescription("Total MCP tool calls"),
		)
	})
	toolCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("loom.tool", tool),
		attribute.Bool("loom.tool.success", success),
	))
}
