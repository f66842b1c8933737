package telemetry

import (
	"context"
	"testing"
)

func TestSetup(t *testing.T) {
	for _, exporter := range []string{"", ExporterNone, ExporterConsole} {
		t.Run("exporter="+exporter, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), Options{Exporter: exporter, Version: "test"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Fatalf("shutdown: %v", err)
			}
		})
	}
}

func TestSetup_UnknownExporter(t *testing.T) {
	if _, err := Setup(context.Background(), Options{Exporter: "zipkin"}); err == nil {
		t.Fatal("expected error for unknown exporter, got nil")
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER", "otlp")
	t.Setenv("OTEL_ENDPOINT", "collector:4317")

	opts := OptionsFromEnv("v1")
	if opts.Exporter != "otlp" || opts.Endpoint != "collector:4317" || opts.Version != "v1" {
		t.Errorf("unexpected options: %+v", opts)
	}
}
