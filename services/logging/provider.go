package logging

import (
	"github.com/tech-arch1tect/cloudtoken/config"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(NewLoggingService),
)

func NewLoggingService(cfg *config.Config) (*Service, error) {
	return NewService(ConfigFrom(cfg))
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Level:      LogLevel(cfg.Log.Level),
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
	}
}
