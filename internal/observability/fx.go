package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/retailsales/internal/config"
	"github.com/smallbiznis/retailsales/internal/observability/logger"
	"github.com/smallbiznis/retailsales/internal/observability/metrics"
	"github.com/smallbiznis/retailsales/internal/observability/push"
	"github.com/smallbiznis/retailsales/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability",
	fx.Provide(
		NewConfig,
		Config.LoggerConfig,
		logger.New,
		Config.TracingConfig,
		tracing.NewProvider,
		Config.MetricsConfig,
		provideRollupMetrics,
		provideHTTPMetrics,
		providePusher,
		func() prometheus.Gatherer { return prometheus.DefaultGatherer },
	),
	fx.Invoke(func(_ *sdktrace.TracerProvider) {}),
)

func provideRollupMetrics(cfg metrics.Config) *metrics.RollupMetrics {
	return metrics.RollupWithConfig(cfg)
}

func provideHTTPMetrics(cfg metrics.Config) *metrics.HTTPMetrics {
	return metrics.NewHTTPMetrics(prometheus.DefaultRegisterer, cfg)
}

func providePusher(cfg config.Config, log *zap.Logger) push.Pusher {
	return push.NewPusher(cfg, log)
}
