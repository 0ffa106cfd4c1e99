package locks

import (
	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/fx"
)

type LockerParams struct {
	fx.In

	Config *config.Config
	Redis  *redis.Client `optional:"true"`
	Logger *logging.Service
}

func ProvideLocker(p LockerParams) Locker {
	if p.Redis != nil {
		return NewRedisLocker(p.Redis, p.Config.Redis.KeyPrefix+"lock:", p.Config.Refresh.LockRetryInterval)
	}

	p.Logger.Warn("redis disabled, refresh locks only coordinate this process")
	return NewMemoryLocker(p.Config.Refresh.LockRetryInterval)
}

var Module = fx.Options(
	fx.Provide(ProvideLocker),
)
