package revocation

import (
	"context"
	"time"

	"github.com/tech-arch1tect/cloudtoken/services/jwt"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const cleanupPeriod = time.Hour

func ProvideStore(db *gorm.DB, logger *logging.Service) *Store {
	return NewStore(db, logger)
}

// StartCleanupWorker purges expired entries hourly while the app runs.
func StartCleanupWorker(lc fx.Lifecycle, store *Store, logger *logging.Service) {
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go func() {
				ticker := time.NewTicker(cleanupPeriod)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if _, err := store.Cleanup(ctx); err != nil {
							logger.Error("revoked token cleanup failed", zap.Error(err))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(
		fx.Annotate(ProvideStore, fx.As(fx.Self()), fx.As(new(jwt.RevocationStore))),
	),
	fx.Invoke(StartCleanupWorker),
)
