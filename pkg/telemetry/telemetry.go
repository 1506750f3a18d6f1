// Package telemetry installs the OpenTelemetry tracer provider that receives
// the portal request spans.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"

	"github.com/raterudder/telenet-exporter/pkg/common"
	"github.com/raterudder/telenet-exporter/pkg/log"
)

// Config selects where traces are exported to. Tracing is off without an
// endpoint.
type Config struct {
	Endpoint    string
	Protocol    string
	Headers     map[string]string
	ServiceName string
}

// Configured registers the tracing flags.
func Configured() *Config {
	cfg := &Config{}
	endpoint := lflag.String("otlp-traces-endpoint", "", "OTLP endpoint URL traces are exported to, tracing is off when empty")
	protocol := lflag.String("otlp-traces-protocol", "http", "OTLP transport (http or grpc)")
	headers := lflag.String("otlp-traces-headers", "", "Comma separated key=value headers sent to the OTLP endpoint")
	serviceName := lflag.String("otlp-service-name", "telenet-exporter", "Service name attached to every span")

	lflag.Do(func() {
		cfg.Endpoint = *endpoint
		cfg.Protocol = *protocol
		cfg.ServiceName = *serviceName
		h, err := parseHeaders(*headers)
		if err != nil {
			panic(err)
		}
		cfg.Headers = h
		if cfg.Protocol != "http" && cfg.Protocol != "grpc" {
			panic(fmt.Sprintf("unsupported otlp-traces-protocol: %q", cfg.Protocol))
		}
	})
	return cfg
}

func parseHeaders(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid otlp header %q", pair)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

// Setup installs the global tracer provider. The returned function flushes
// and stops it. Without an endpoint the global no-op provider stays in place.
func Setup(ctx context.Context, cfg *Config) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		log.Ctx(ctx).DebugContext(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(common.Version()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	log.Ctx(ctx).InfoContext(ctx, "trace exporter initialized",
		slog.String("type", cfg.Protocol),
		slog.String("endpoint", cfg.Endpoint),
		slog.Bool("headers", len(cfg.Headers) > 0),
	)
	if cfg.Protocol == "grpc" {
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpointURL(cfg.Endpoint),
			otlptracegrpc.WithHeaders(cfg.Headers),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent("telenet-exporter/"+common.Version())),
		)
	}
	return otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.Endpoint),
		otlptracehttp.WithHeaders(cfg.Headers),
	)
}
