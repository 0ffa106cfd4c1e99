package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/zap"
)

// NewRedisClient connects the shared client used by refresh locks, attempt
// counters and the rate limiter. It returns nil when redis is disabled.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, log *logging.Service) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	if log != nil {
		log.Info("redis client initialised",
			zap.String("addr", cfg.Addr),
			zap.Int("db", cfg.DB))
	}

	return client, nil
}
