package refresh

import (
	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/locks"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/metrics"
	"github.com/tech-arch1tect/cloudtoken/services/notification"
	"github.com/tech-arch1tect/cloudtoken/services/providers"
	"github.com/tech-arch1tect/cloudtoken/services/queue"
	"github.com/tech-arch1tect/cloudtoken/services/retry"
	"github.com/tech-arch1tect/cloudtoken/services/tokens"
	"github.com/tech-arch1tect/cloudtoken/services/tokensecurity"
	"go.uber.org/fx"
)

func ProvideCoordinator(cfg *config.Config, repo tokens.Repository, locker locks.Locker, guard *tokensecurity.Guard, registry *providers.Registry, engine *retry.Engine, logger *logging.Service, m metrics.Recorder) *Coordinator {
	return NewCoordinator(repo, locker, guard, registry, engine, Config{
		ExpiryBuffer: cfg.Refresh.ExpiryBuffer,
		LockTTL:      cfg.Refresh.LockTTL,
		LockWait:     cfg.Refresh.LockWait,
		RetryBudget:  cfg.Refresh.RetryBudget,
	}, logger.Named("refresh"), WithMetrics(m))
}

func ProvideJobHandler(cfg *config.Config, c *Coordinator, repo tokens.Repository, notifier *notification.Service, logger *logging.Service) *JobHandler {
	return NewJobHandler(c, repo, notifier, cfg.Refresh.RequeueDelay, logger.Named("refresh.job"))
}

func RegisterJobHandler(w *queue.Worker, h *JobHandler) {
	w.Register(JobName, h.Handle)
}

var Module = fx.Options(
	fx.Provide(ProvideCoordinator, ProvideJobHandler),
)

// WorkerOptions registers the refresh job with the worker pool.
var WorkerOptions = fx.Options(
	fx.Invoke(RegisterJobHandler),
)
