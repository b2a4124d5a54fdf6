// Package tracing wires OpenTelemetry request tracing across the primary's
// two HTTP boundaries: the gin API server and the worker's outbound API
// client. Adapted from the teacher's internal/observability package, trimmed
// to the OTLP-HTTP-or-stdout fallback this module needs (no GCP exporter,
// no gRPC transport — this module has neither a GCP deployment target nor
// any gRPC service to match the teacher's).
package tracing

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/ansiblecluster/core/internal/pkg/envutil"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

var (
	initOnce sync.Once
	shutdown func(context.Context) error = func(context.Context) error { return nil }
)

// Init sets the global TracerProvider if OTEL_ENABLED is set, exporting to
// OTEL_EXPORTER_OTLP_ENDPOINT when configured or to stdout otherwise. It is
// a no-op (and returns a no-op shutdown) when tracing is disabled, which is
// the default — most deployments of this module have no collector running.
// Safe to call only once per process; subsequent calls are ignored.
func Init(ctx context.Context, log *logger.Logger) func(context.Context) error {
	initOnce.Do(func() {
		if !envutil.Bool("OTEL_ENABLED", false) {
			return
		}

		serviceName := envutil.String("OTEL_SERVICE_NAME", "ansiblecluster")
		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		))
		if err != nil && log != nil {
			log.Warn("otel resource init failed, continuing with default resource", "error", err)
		}

		exporter, err := buildExporter(ctx, log)
		if err != nil {
			if log != nil {
				log.Warn("otel exporter init failed, tracing disabled", "error", err)
			}
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio()))),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		shutdown = tp.Shutdown
		if log != nil {
			log.Info("otel tracing initialized", "service", serviceName)
		}
	})
	return shutdown
}

func sampleRatio() float64 {
	v := envutil.String("OTEL_SAMPLER_RATIO", "")
	if v == "" {
		return 0.1
	}
	ratio := parseFloatClamped(v, 0.1)
	return ratio
}

func parseFloatClamped(v string, def float64) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func buildExporter(ctx context.Context, log *logger.Logger) (sdktrace.SpanExporter, error) {
	endpoint := strings.TrimSpace(envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""))
	if endpoint != "" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false) {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	if log != nil {
		log.Warn("otel enabled with no OTLP endpoint configured, using stdout exporter")
	}
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}
