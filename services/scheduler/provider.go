package scheduler

import (
	"context"

	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/metrics"
	"github.com/tech-arch1tect/cloudtoken/services/queue"
	"github.com/tech-arch1tect/cloudtoken/services/tokens"
	"go.uber.org/fx"
)

func ProvideService(cfg *config.Config, repo tokens.Repository, dispatcher queue.Dispatcher, logger *logging.Service, m metrics.Recorder) *Service {
	return NewService(repo, dispatcher, Config{
		ExpiryBuffer:      cfg.Refresh.ExpiryBuffer,
		MaxScheduleAhead:  cfg.Refresh.MaxScheduleAhead,
		ScanInterval:      cfg.Refresh.ScanInterval,
		ScanWindowMinutes: cfg.Refresh.ScanWindowMinutes,
	}, logger.Named("scheduler"), m)
}

// RunScanLoop starts periodic scans with the application when enabled.
func RunScanLoop(lc fx.Lifecycle, cfg *config.Config, s *Service, logger *logging.Service) {
	if !cfg.Refresh.ScanEnabled {
		logger.Info("periodic expiring token scan disabled")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			s.Stop()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(ProvideService),
)

var LoopOptions = fx.Options(
	fx.Invoke(RunScanLoop),
)
