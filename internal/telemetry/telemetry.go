// Package telemetry wires OpenTelemetry tracing for the updater.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const serviceName = "namecom-ddns"

// Exporter kinds accepted by Setup.
const (
	ExporterNone    = "none"
	ExporterConsole = "console"
	ExporterOTLP    = "otlp"
	ExporterBoth    = "both"
)

// Options selects where spans go.
type Options struct {
	Exporter string // one of the Exporter* constants, default ExporterNone
	Endpoint string // OTLP gRPC endpoint, default localhost:4317
	Version  string
}

// OptionsFromEnv reads OTEL_EXPORTER and OTEL_ENDPOINT.
func OptionsFromEnv(version string) Options {
	return Options{
		Exporter: os.Getenv("OTEL_EXPORTER"),
		Endpoint: os.Getenv("OTEL_ENDPOINT"),
		Version:  version,
	}
}

// Setup installs a global tracer provider and returns its shutdown function.
// With ExporterNone spans are still created but never exported.
func Setup(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if opts.Exporter == "" {
		opts.Exporter = ExporterNone
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "localhost:4317"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(opts.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	var exporters []sdktrace.SpanExporter
	switch opts.Exporter {
	case ExporterNone:
	case ExporterConsole, ExporterOTLP, ExporterBoth:
		if opts.Exporter != ExporterOTLP {
			console, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
			if err != nil {
				return nil, fmt.Errorf("telemetry: create console exporter: %w", err)
			}
			exporters = append(exporters, console)
		}
		if opts.Exporter != ExporterConsole {
			otlp, err := otlptracegrpc.New(ctx,
				otlptracegrpc.WithEndpoint(opts.Endpoint),
				otlptracegrpc.WithInsecure(),
			)
			if err != nil {
				return nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
			}
			exporters = append(exporters, otlp)
		}
	default:
		return nil, fmt.Errorf("telemetry: unknown exporter %q", opts.Exporter)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	for _, exporter := range exporters {
		tp.RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))
	}
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
