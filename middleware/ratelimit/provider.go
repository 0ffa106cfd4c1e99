package ratelimit

import (
	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/ulule/limiter/v3"
	"go.uber.org/fx"
)

type LimiterParams struct {
	fx.In

	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

// ProvideLimiter returns nil when rate limiting is disabled; the middleware
// then passes every request through.
func ProvideLimiter(p LimiterParams) (*limiter.Limiter, error) {
	if !p.Config.RateLimit.Enabled {
		return nil, nil
	}
	return NewLimiter(&p.Config.RateLimit, p.Redis)
}

var Module = fx.Options(
	fx.Provide(ProvideLimiter),
)
