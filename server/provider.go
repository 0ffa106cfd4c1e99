package server

import (
	"context"

	"github.com/tech-arch1tect/cloudtoken/config"
	jwtmw "github.com/tech-arch1tect/cloudtoken/middleware/jwt"
	"github.com/tech-arch1tect/cloudtoken/middleware/ratelimit"
	"github.com/tech-arch1tect/cloudtoken/services/audit"
	"github.com/tech-arch1tect/cloudtoken/services/jwt"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/refresh"
	"github.com/tech-arch1tect/cloudtoken/services/scheduler"
	"github.com/tech-arch1tect/cloudtoken/services/tokens"
	"github.com/tech-arch1tect/cloudtoken/services/tokensecurity"
	"github.com/ulule/limiter/v3"
	"go.uber.org/fx"
)

type RouteParams struct {
	fx.In

	Config      *config.Config
	Server      *Server
	Logger      *logging.Service
	Coordinator *refresh.Coordinator
	Tokens      tokens.Repository
	Scheduler   *scheduler.Service
	Guard       *tokensecurity.Guard
	Audit       *audit.Service
	JWT         *jwt.Service
	Limiter     *limiter.Limiter `optional:"true"`
}

func RegisterAPI(p RouteParams) {
	h := NewHandlers(HandlerDeps{
		Refresher:  p.Coordinator,
		Tokens:     p.Tokens,
		Scheduler:  p.Scheduler,
		Auditor:    p.Guard,
		AuditLog:   p.Audit,
		Links:      p.JWT,
		ScanWindow: p.Config.Refresh.ScanWindowMinutes,
		Logger:     p.Logger.Named("api"),
	})

	opts := RouteOptions{
		Admin:  jwtmw.RequireAdmin(p.JWT),
		Logger: p.Logger,
	}
	if p.Limiter != nil {
		opts.RateLimit = ratelimit.Middleware(&ratelimit.Config{Limiter: p.Limiter})
	}
	if p.Config.Metrics.Enabled {
		opts.MetricsPath = p.Config.Metrics.Path
	}
	if !p.JWT.Enabled() {
		p.Logger.Warn("JWT secret not configured, admin API is unauthenticated")
	}

	p.Server.RegisterRoutes(h, opts)
}

func NewProvider() fx.Option {
	return fx.Options(
		fx.Provide(New),
		fx.Invoke(RegisterAPI),
		fx.Invoke(func(lc fx.Lifecycle, srv *Server) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					go func() { _ = srv.Start() }()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					return srv.Shutdown(ctx)
				},
			})
		}),
	)
}
