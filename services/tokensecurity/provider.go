package tokensecurity

import (
	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/audit"
	"github.com/tech-arch1tect/cloudtoken/services/counters"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/metrics"
	"go.uber.org/fx"
)

func ProvideGuard(cfg *config.Config, store counters.Store, recorder audit.Recorder, logger *logging.Service, m metrics.Recorder) *Guard {
	return NewGuard(store, recorder, logger.Named("security"), Limits{
		MaxAttemptsPerUser: cfg.Security.MaxAttemptsPerUser,
		MaxAttemptsPerIP:   cfg.Security.MaxAttemptsPerIP,
		Window:             cfg.Security.Window,
	}, WithMetrics(m))
}

var Module = fx.Options(
	fx.Provide(ProvideGuard),
)
