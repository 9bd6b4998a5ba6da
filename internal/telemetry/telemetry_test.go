package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetup_Disabled(t *testing.T) {
	t.Parallel()

	shutdown, err := Setup(context.Background(), Config{}, "dev", nil)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetup_Exporter(t *testing.T) {
	// Installs the global provider; not parallel.
	shutdown, err := Setup(context.Background(), Config{OTLPEndpoint: "127.0.0.1:1", Insecure: true}, "dev", nil)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

func TestNewTracerProvider_Resource(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := NewTracerProvider(Config{ServiceName: "taskd-test"}, "1.2.3", sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "job.execute")
	span.End()

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	attrs := spans[0].Resource().Attributes()
	want := map[attribute.Key]string{"service.name": "taskd-test", "service.version": "1.2.3"}
	for _, kv := range attrs {
		if v, ok := want[kv.Key]; ok && kv.Value.AsString() != v {
			t.Errorf("%s = %q, want %q", kv.Key, kv.Value.AsString(), v)
		}
		delete(want, kv.Key)
	}
	if len(want) != 0 {
		t.Errorf("missing resource attributes: %v", want)
	}
}

func TestNewTracerProvider_ZeroRatioDrops(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := NewTracerProvider(Config{SampleRatio: 1e-9}, "dev", sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	for range 10 {
		_, span := tp.Tracer("test").Start(context.Background(), "x")
		span.End()
	}
	if n := len(sr.Ended()); n > 1 {
		t.Errorf("recorded %d spans with near-zero sampling", n)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.Defaults()
	if cfg.ServiceName != "taskd" || cfg.SampleRatio != 1 {
		t.Errorf("defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := (&Config{SampleRatio: 1.5}).Validate(); err == nil {
		t.Error("expected error for ratio > 1")
	}
}
