// Package observability wires OpenTelemetry tracing into the pipeline.
//
// Spans from Genkit generation calls are exported over OTLP HTTP to a local
// collector agent. The agent handles authentication and forwarding to the
// backend, buffers locally, and keeps credentials out of the application.
// Tracing is optional: without a configured endpoint the setup is a no-op
// and runs produce no spans.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/rajarajane97/mastt/internal/config"
)

// DefaultServiceName identifies the pipeline in the tracing backend when no
// name is configured.
const DefaultServiceName = "mastt"

// Setup registers an OTLP HTTP exporter with Genkit's TracerProvider. The
// returned shutdown function flushes pending spans and must be called when
// the run finishes.
//
// With an empty endpoint tracing stays disabled and the shutdown function is
// a no-op. Exporter creation failures degrade the same way: the run proceeds
// untraced rather than aborting.
func Setup(ctx context.Context, cfg config.TracingConfig, logger *slog.Logger) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if cfg.Endpoint == "" {
		return noop, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	// Genkit's TracerProvider reads the service identity from the standard
	// OTEL environment variables.
	_ = os.Setenv("OTEL_SERVICE_NAME", serviceName)
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // local agent endpoint, no TLS
	)
	if err != nil {
		logger.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return noop, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", serviceName,
		"environment", cfg.Environment,
	)

	return tracing.TracerProvider().Shutdown, nil
}
