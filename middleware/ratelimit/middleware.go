package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterRedis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	Limiter        *limiter.Limiter
	KeyGenerator   func(c echo.Context) string
	OnLimitReached func(c echo.Context) error
	// Skipper exempts requests from counting.
	Skipper func(c echo.Context) bool
}

// NewLimiter builds the limiter for the admin API. The redis store needs a
// client; without one it is an error rather than a silent memory fallback.
func NewLimiter(cfg *config.RateLimitConfig, client *redis.Client) (*limiter.Limiter, error) {
	rate := limiter.Rate{Period: cfg.Period, Limit: cfg.Rate}

	var store limiter.Store
	switch cfg.Store {
	case StoreRedis:
		if client == nil {
			return nil, fmt.Errorf("redis rate limit store requires REDIS_ENABLED")
		}
		s, err := limiterRedis.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix:          "cloudtoken:ratelimit",
			CleanUpInterval: cfg.CleanupInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
		}
		store = s
	case StoreMemory, "":
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          "cloudtoken:ratelimit",
			CleanUpInterval: cfg.CleanupInterval,
		})
	default:
		return nil, fmt.Errorf("unsupported rate limit store: %s", cfg.Store)
	}

	return limiter.New(store, rate), nil
}

func Middleware(cfg *Config) echo.MiddlewareFunc {
	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKeyGenerator
	}

	if cfg.OnLimitReached == nil {
		cfg.OnLimitReached = DefaultOnLimitReached
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Limiter == nil || (cfg.Skipper != nil && cfg.Skipper(c)) {
				return next(c)
			}

			lctx, err := cfg.Limiter.Get(c.Request().Context(), cfg.KeyGenerator(c))
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "rate limiter unavailable").SetInternal(err)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

			if lctx.Reached {
				return cfg.OnLimitReached(c)
			}

			return next(c)
		}
	}
}

func DefaultKeyGenerator(c echo.Context) string {
	realIP := c.RealIP()

	if realIP == "" || realIP == "unknown" {
		realIP = "fallback"
	}

	return "rate_limit:" + realIP
}

func DefaultOnLimitReached(c echo.Context) error {
	return echo.NewHTTPError(http.StatusTooManyRequests, "Too Many Requests")
}
