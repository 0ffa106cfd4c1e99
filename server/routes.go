package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/metrics"
)

type RouteOptions struct {
	RateLimit echo.MiddlewareFunc
	Admin     echo.MiddlewareFunc
	// MetricsPath is left unrouted when empty.
	MetricsPath string
	Logger      *logging.Service
}

func (s *Server) RegisterRoutes(h *Handlers, opts RouteOptions) {
	e := s.echo

	if opts.Logger != nil {
		e.Use(logging.RequestLogger(opts.Logger, "/health", opts.MetricsPath))
	}
	e.Use(middleware.Recover())

	var limited, admin []echo.MiddlewareFunc
	if opts.RateLimit != nil {
		limited = append(limited, opts.RateLimit)
	}
	admin = append(admin, limited...)
	if opts.Admin != nil {
		admin = append(admin, opts.Admin)
	}

	e.GET("/health", h.Health)
	if opts.MetricsPath != "" {
		e.GET(opts.MetricsPath, echo.WrapHandler(metrics.Handler()), admin...)
	}

	e.GET("/tokens/:user/:provider/status", h.Status, admin...)
	e.POST("/tokens/:user/:provider/refresh", h.Refresh, admin...)
	e.DELETE("/tokens/:user/:provider", h.Disconnect, admin...)
	e.POST("/tokens/reconnect", h.Reconnect, limited...)
	e.POST("/scheduler/scan", h.Scan, admin...)
	e.GET("/audit/:user", h.AuditTrail, admin...)
}
