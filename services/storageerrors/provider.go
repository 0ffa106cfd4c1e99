package storageerrors

import (
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/fx"
)

func ProvideRegistry(logger *logging.Service) *Registry {
	return NewRegistry(logger)
}

var Module = fx.Options(
	fx.Provide(ProvideRegistry),
)
