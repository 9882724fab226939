package otel

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

// ShutdownFn shuts down the OTEL providers.
type ShutdownFn func(context.Context) error

// Exporter names accepted in OTEL_TRACES_EXPORTER.
const (
	ExporterNone    = "none"
	ExporterConsole = "console"
	ExporterOTLP    = "otlp"
)

// TraceOptions tunes Init.
type TraceOptions struct {
	// DefaultExporter is used when OTEL_TRACES_EXPORTER is unset and no
	// OTLP endpoint is configured. Empty means ExporterConsole.
	DefaultExporter string

	// Console receives pretty-printed spans for ExporterConsole.
	// Defaults to stdout.
	Console io.Writer

	ExtraAttrs []attribute.KeyValue
}

// Init configures global OpenTelemetry tracing.
//
// Exporter selection:
//   - OTEL_TRACES_EXPORTER ("none", "console"/"stdout", "otlp") wins if set.
//   - Otherwise OTLP when OTEL_EXPORTER_OTLP_ENDPOINT is set.
//   - Otherwise opts.DefaultExporter.
//
// OTLP honours OTEL_EXPORTER_OTLP_PROTOCOL ("grpc" or "http/protobuf") and
// OTEL_EXPORTER_OTLP_INSECURE for grpc.
func Init(ctx context.Context, serviceName string, opts TraceOptions) (ShutdownFn, error) {
	kind := exporterKind(opts.DefaultExporter)
	if kind == ExporterNone {
		// Leave the global no-op provider in place but still propagate context.
		otel.SetTextMapPropagator(propagator())
		return func(context.Context) error { return nil }, nil
	}

	res, err := newResource(ctx, serviceName, opts.ExtraAttrs...)
	if err != nil {
		return nil, err
	}

	exp, err := newTraceExporter(ctx, kind, opts.Console)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithMaxExportBatchSize(512),
		),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagator())

	// tp.Shutdown also shuts the exporter down.
	return tp.Shutdown, nil
}

func propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func newResource(ctx context.Context, serviceName string, extraAttrs ...attribute.KeyValue) (*resource.Resource, error) {
	return resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithAttributes(extraAttrs...),
	)
}

func exporterKind(def string) string {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_TRACES_EXPORTER"))) {
	case "none":
		return ExporterNone
	case "console", "stdout":
		return ExporterConsole
	case "otlp":
		return ExporterOTLP
	}
	if strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")) != "" {
		return ExporterOTLP
	}
	if def == "" {
		return ExporterConsole
	}
	return def
}

func newTraceExporter(ctx context.Context, kind string, console io.Writer) (sdktrace.SpanExporter, error) {
	switch kind {
	case ExporterConsole:
		if console == nil {
			console = os.Stdout
		}
		return stdouttrace.New(
			stdouttrace.WithWriter(console),
			stdouttrace.WithPrettyPrint(),
		)
	case ExporterOTLP:
		return newOTLPExporter(ctx)
	default:
		return nil, errors.New("otel: unsupported trace exporter " + kind)
	}
}

func newOTLPExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	proto := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"))
	switch strings.ToLower(proto) {
	case "", "grpc":
		var opts []otlptracegrpc.Option
		if endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
		}
		if strings.EqualFold(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"), "true") {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	case "http/protobuf", "http":
		var opts []otlptracehttp.Option
		if endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	default:
		return nil, errors.New("otel: unsupported OTEL_EXPORTER_OTLP_PROTOCOL: " + proto)
	}
}
