package jwt

import (
	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/fx"
)

func NewJWTService(cfg *config.Config, logger *logging.Service) *Service {
	return NewService(&cfg.JWT, logger)
}

type OptionalRevocationStore struct {
	fx.In
	Store RevocationStore `optional:"true"`
}

func WireRevocationStore(jwtSvc *Service, opt OptionalRevocationStore) {
	if jwtSvc != nil && opt.Store != nil {
		jwtSvc.SetRevocationStore(opt.Store)
	}
}

var Options = fx.Options(
	fx.Provide(NewJWTService),
	fx.Invoke(WireRevocationStore),
)
