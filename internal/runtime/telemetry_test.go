package runtime

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/mohammad-safakhou/deepdive/config"
)

func TestSetupTracingDisabled(t *testing.T) {
	prev := otel.GetTracerProvider()

	tracing, err := SetupTracing(context.Background(), config.TelemetryConfig{Enabled: false}, "deepdive-test")
	if err != nil {
		t.Fatalf("SetupTracing: %v", err)
	}
	if otel.GetTracerProvider() != prev {
		t.Fatalf("disabled setup must not replace the global tracer provider")
	}
	if err := tracing.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestSetupTracingInstallsProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	cfg := config.TelemetryConfig{Enabled: true, OTLPEndpoint: "localhost:4317"}
	tracing, err := SetupTracing(context.Background(), cfg, "deepdive-test")
	if err != nil {
		t.Fatalf("SetupTracing: %v", err)
	}
	if otel.GetTracerProvider() == prev {
		t.Fatalf("enabled setup must install a tracer provider")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	// no collector is listening here; only the bounded flush matters
	_ = tracing.Shutdown(ctx)
}
