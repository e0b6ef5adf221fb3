package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/pricebook/internal/observability/metrics"
	"github.com/smallbiznis/pricebook/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(provideRegisterer),
	fx.Provide(metrics.New),
	fx.Provide(tracing.NewProvider),
	fx.Invoke(ensureTracingProvider),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

func provideRegisterer() prometheus.Registerer {
	return prometheus.DefaultRegisterer
}
