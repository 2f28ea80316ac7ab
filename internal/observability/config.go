package observability

import (
	"strings"

	"github.com/smallbiznis/retailsales/internal/config"
	"github.com/smallbiznis/retailsales/internal/observability/logger"
	"github.com/smallbiznis/retailsales/internal/observability/metrics"
	"github.com/smallbiznis/retailsales/internal/observability/tracing"
)

const defaultServiceName = "retailsales"

// Config is the slice of the application config that logging, tracing and
// metrics share. It never reads the environment itself.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Debug       bool

	Log     config.LogConfig
	Tracing config.TracingConfig
}

func NewConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = defaultServiceName
	}
	return Config{
		ServiceName: name,
		Environment: strings.TrimSpace(cfg.Environment),
		Version:     strings.TrimSpace(cfg.AppVersion),
		Debug:       cfg.Debug(),
		Log:         cfg.Log,
		Tracing:     cfg.Tracing,
	}
}

func (c Config) LoggerConfig() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.Log.Level,
		Format:              c.Log.Format,
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug,
	}
}

func (c Config) TracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:          c.Tracing.Enabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.Tracing.Endpoint,
		ExporterProtocol: c.Tracing.Protocol,
		SamplingRatio:    c.Tracing.SamplingRatio,
	}
}

func (c Config) MetricsConfig() metrics.Config {
	return metrics.Config{
		ServiceName: c.ServiceName,
		Environment: c.Environment,
	}
}
