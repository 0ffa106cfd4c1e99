package notification

import (
	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/counters"
	"github.com/tech-arch1tect/cloudtoken/services/jwt"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/mail"
	"github.com/tech-arch1tect/cloudtoken/services/metrics"
	"github.com/tech-arch1tect/cloudtoken/services/storageerrors"
	"go.uber.org/fx"
)

type ServiceParams struct {
	fx.In

	Config   *config.Config
	Mail     *mail.Service `optional:"true"`
	Registry *storageerrors.Registry
	JWT      *jwt.Service
	Counters counters.Store
	Logger   *logging.Service
	Metrics  metrics.Recorder
}

func ProvideService(p ServiceParams) *Service {
	var mailer Mailer
	if p.Mail != nil {
		mailer = p.Mail
	}

	return NewService(Config{
		Enabled:        p.Config.Notification.Enabled,
		AppName:        p.Config.App.Name,
		ThrottleWindow: p.Config.Notification.ThrottleWindow,
		ReconnectURL:   p.Config.Notification.ReconnectURL,
		Template:       p.Config.Notification.Template,
	}, mailer, p.Registry, p.JWT, p.Counters, p.Logger.Named("notification"), p.Metrics)
}

var Module = fx.Options(
	fx.Provide(ProvideService),
)
