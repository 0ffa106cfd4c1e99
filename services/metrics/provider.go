package metrics

import (
	"github.com/tech-arch1tect/cloudtoken/config"
	"go.uber.org/fx"
)

func ProvideRecorder(cfg *config.Config) Recorder {
	return Init(cfg.Metrics.Enabled)
}

var Module = fx.Options(
	fx.Provide(ProvideRecorder),
)
