package providers

import (
	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/fx"
)

func ProvideRegistry(cfg *config.Config, logger *logging.Service) (*Registry, error) {
	return NewRegistryFromConfig(cfg, logger.Named("providers"))
}

var Module = fx.Options(
	fx.Provide(ProvideRegistry),
)
