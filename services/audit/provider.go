package audit

import (
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideService(db *gorm.DB, logger *logging.Service) *Service {
	return NewService(db, logger.Named("audit"))
}

var Module = fx.Options(
	fx.Provide(
		ProvideService,
		func(s *Service) Recorder { return s },
	),
)
