package otelx

import (
	"context"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("METRICS_ENABLED", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "2")

	cfg := ConfigFromEnv("booking-service")
	if cfg.Enabled {
		t.Fatal("expected tracing disabled")
	}
	if !cfg.MetricsEnabled {
		t.Fatal("expected metrics enabled by default")
	}
	if cfg.SampleRatio != 1 {
		t.Fatalf("out-of-range ratio should fall back to 1, got %v", cfg.SampleRatio)
	}
}

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestTraceContextRoundTripWithoutSpan(t *testing.T) {
	tc := CaptureTraceContext(context.Background())
	if !tc.Empty() {
		t.Fatalf("expected empty trace context, got %+v", tc)
	}
	parent := context.Background()
	if got := tc.Into(parent); got != parent {
		t.Fatal("empty trace context should return the parent unchanged")
	}
}
