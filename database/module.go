package database

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Options(
	fx.Provide(ProvideDatabaseFx),
)

var RedisModule = fx.Options(
	fx.Provide(ProvideRedisFx),
)

func ProvideDatabaseFx(lc fx.Lifecycle, cfg *config.Config, modelsOpt *ModelsOption, logger *logging.Service) (*gorm.DB, error) {
	db, err := ProvideDatabase(*cfg, modelsOpt, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db, nil
}

func ProvideRedisFx(lc fx.Lifecycle, cfg *config.Config, logger *logging.Service) (*redis.Client, error) {
	client, err := NewRedisClient(context.Background(), cfg.Redis, logger)
	if err != nil || client == nil {
		return client, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}
