// Package telemetry installs the OpenTelemetry tracer provider. Job runs are
// traced by the scheduler through the global provider; when no collector is
// configured the provider stays the no-op default.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const defaultServiceName = "taskd"

// Config is the telemetry section of the config file.
type Config struct {
	// OTLPEndpoint is the collector host:port. Empty disables tracing.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure sends spans over plain HTTP.
	Insecure bool `yaml:"insecure"`

	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of root spans kept. Defaults to 1.
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.SampleRatio == 0 {
		c.SampleRatio = 1
	}
}

// Validate checks the sampling ratio.
func (c *Config) Validate() error {
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0, 1], got %g", c.SampleRatio)
	}
	return nil
}

// ShutdownFunc flushes pending spans and releases the exporter.
type ShutdownFunc func(ctx context.Context) error

// Setup installs a global tracer provider exporting over OTLP/HTTP. With no
// endpoint configured it leaves the global provider untouched and returns a
// no-op shutdown.
func Setup(ctx context.Context, cfg Config, version string, logger *slog.Logger) (ShutdownFunc, error) {
	cfg.Defaults()
	if cfg.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating exporter: %w", err)
	}

	tp := NewTracerProvider(cfg, version, sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	if logger != nil {
		logger.Info("tracing enabled",
			"endpoint", cfg.OTLPEndpoint,
			"service", cfg.ServiceName,
			"sample_ratio", cfg.SampleRatio,
		)
	}
	return tp.Shutdown, nil
}

// NewTracerProvider builds a provider carrying the service resource and the
// configured sampler. Extra options add span processors or exporters.
func NewTracerProvider(cfg Config, version string, extra ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	cfg.Defaults()
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", version),
	)
	opts := append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}, extra...)
	return sdktrace.NewTracerProvider(opts...)
}
