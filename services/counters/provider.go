package counters

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/cloudtoken/config"
	"go.uber.org/fx"
)

type StoreParams struct {
	fx.In

	Config    *config.Config
	Redis     *redis.Client `optional:"true"`
	Lifecycle fx.Lifecycle
}

// ProvideStore returns a Redis-backed store when a client is available and
// an in-process store otherwise.
func ProvideStore(p StoreParams) Store {
	if p.Redis != nil {
		return NewRedisStore(p.Redis, p.Config.Redis.KeyPrefix+"counter:")
	}

	store := NewMemoryStore(p.Config.RateLimit.CleanupInterval)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			store.Close()
			return nil
		},
	})
	return store
}

var Module = fx.Options(
	fx.Provide(ProvideStore),
)
