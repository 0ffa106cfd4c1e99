package retry

import (
	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/metrics"
	"github.com/tech-arch1tect/cloudtoken/services/storageerrors"
	"go.uber.org/fx"
)

func ProvideEngine(cfg *config.Config, registry *storageerrors.Registry, logger *logging.Service, recorder metrics.Recorder) *Engine {
	return NewEngine(registry,
		WithLogger(logger.Named("retry")),
		WithMetrics(recorder),
		WithJitter(cfg.Retry.Jitter, cfg.Retry.JitterFactor),
	)
}

var Module = fx.Options(
	fx.Provide(ProvideEngine),
)
