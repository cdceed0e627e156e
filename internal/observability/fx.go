package observability

import (
	"github.com/smallbiznis/chatorder/internal/config"
	"github.com/smallbiznis/chatorder/internal/observability/logger"
	"github.com/smallbiznis/chatorder/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideLoggerConfig,
		logger.New,
		metrics.NewHTTPMetrics,
		metrics.NewWorkerMetrics,
	),
)

func provideLoggerConfig(cfg config.Config) logger.Config {
	return logger.Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
		Version:     cfg.AppVersion,
	}
}
