package tracing

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/smallbiznis/pricebook/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewProvider installs a global tracer provider exporting over OTLP. It
// returns nil and leaves the no-op tracer in place when no endpoint is set.
func NewProvider(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*sdktrace.TracerProvider, error) {
	tcfg := cfg.Tracing
	if tcfg.Endpoint == "" {
		log.Info("otlp endpoint not set, tracing export disabled")
		return nil, nil
	}

	exporter, err := newExporter(context.Background(), tcfg)
	if err != nil {
		return nil, err
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(samplingRatio(tcfg.SamplingRatio)))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return provider.Shutdown(ctx)
		},
	})
	log.Info("tracing enabled",
		zap.String("endpoint", tcfg.Endpoint),
		zap.String("protocol", tcfg.Protocol),
	)
	return provider, nil
}

func newExporter(ctx context.Context, tcfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	endpoint, insecure := splitEndpoint(tcfg.Endpoint)
	switch tcfg.Protocol {
	case "http", "http/protobuf":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	case "", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", tcfg.Protocol)
	}
}

// splitEndpoint accepts host:port or a URL. Plain http URLs and bare
// host:port are exported without TLS.
func splitEndpoint(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		return raw, true
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw, true
	}
	return parsed.Host, parsed.Scheme != "https"
}

func samplingRatio(ratio float64) float64 {
	switch {
	case ratio <= 0:
		return 0.1
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}
