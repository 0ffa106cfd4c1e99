package queue

import (
	"context"
	"fmt"

	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/metrics"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type QueueParams struct {
	fx.In

	Config *config.Config
	DB     *gorm.DB `optional:"true"`
	Logger *logging.Service
}

func ProvideQueue(p QueueParams) (Queue, error) {
	switch p.Config.Queue.Driver {
	case "memory":
		p.Logger.Warn("using in-memory job queue; jobs do not survive restarts")
		return NewMemoryQueue(p.Config.Queue.LeaseTimeout), nil
	case "database":
		if p.DB == nil {
			return nil, fmt.Errorf("database queue driver requires a database")
		}
		return NewDatabaseQueue(p.DB, p.Config.Queue.LeaseTimeout, p.Logger.Named("queue")), nil
	default:
		return nil, fmt.Errorf("unsupported queue driver: %s", p.Config.Queue.Driver)
	}
}

func ProvideDispatcher(q Queue) Dispatcher {
	return q
}

func ProvideWorker(cfg *config.Config, q Queue, logger *logging.Service, m metrics.Recorder) *Worker {
	return NewWorker(q, WorkerConfig{
		Concurrency:  cfg.Queue.Workers,
		PollInterval: cfg.Queue.PollInterval,
		MaxAttempts:  cfg.Queue.MaxAttempts,
	}, logger.Named("worker"), m)
}

// RunWorkers ties the worker pool to the application lifecycle.
func RunWorkers(lc fx.Lifecycle, w *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			w.Stop()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(ProvideQueue, ProvideDispatcher),
)

var WorkerModule = fx.Options(
	fx.Provide(ProvideWorker),
	fx.Invoke(RunWorkers),
)
