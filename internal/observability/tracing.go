// Package observability wires OTLP trace export for the assistant.
//
// Traces are exported over OTLP HTTP to a local collector (default
// localhost:4318); the collector handles authentication, buffering and
// forwarding to whatever backend is configured.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/plantia/plantia/internal/config"
	"github.com/plantia/plantia/internal/log"
)

// shutdownTimeout bounds the final trace flush on shutdown.
const shutdownTimeout = 5 * time.Second

// Tracing owns the tracer provider lifecycle.
type Tracing struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	logger   log.Logger
}

// Setup configures OTLP trace export from the application config and
// installs the provider globally. When tracing is disabled it returns a
// no-op tracer so callers never branch on it.
func Setup(ctx context.Context, cfg config.OtelConfig, logger log.Logger) (*Tracing, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	if !cfg.Enabled {
		return &Tracing{
			tracer: noop.NewTracerProvider().Tracer("plantia"),
			logger: logger,
		}, nil
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "plantia"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(
			semconv.DeploymentEnvironmentName(cfg.Environment),
		))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("creating trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Info("trace export enabled", "endpoint", endpoint, "service", serviceName)

	return &Tracing{
		provider: provider,
		tracer:   provider.Tracer("plantia"),
		logger:   logger,
	}, nil
}

// Tracer returns the tracer for manual spans.
func (t *Tracing) Tracer() trace.Tracer {
	return t.tracer
}

// Shutdown flushes pending spans. Safe to call on a disabled Tracing.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}

	flushCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := t.provider.Shutdown(flushCtx); err != nil {
		return fmt.Errorf("shutting down tracer provider: %w", err)
	}
	return nil
}
