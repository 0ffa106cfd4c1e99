package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/server"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/refresh"
	"github.com/tech-arch1tect/cloudtoken/services/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	fx          *fx.App
	config      *config.Config
	logger      *logging.Service
	db          *gorm.DB
	coordinator *refresh.Coordinator
	scheduler   *scheduler.Service
	server      *server.Server
}

func (a *App) Start(ctx context.Context) error {
	return a.fx.Start(ctx)
}

// Run starts the app and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	if err := a.Start(context.Background()); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	if a.logger != nil {
		a.logger.Info("received shutdown signal, stopping gracefully", zap.String("signal", sig.String()))
	} else {
		log.Printf("Received signal %v, shutting down gracefully...", sig)
	}

	return a.Stop()
}

func (a *App) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.fx.Stop(ctx); err != nil {
		if a.logger != nil {
			a.logger.Error("failed to stop application gracefully", zap.Error(err))
		}
		return err
	}
	return nil
}

// Server is nil unless the app was built WithServer.
func (a *App) Server() *server.Server {
	return a.server
}

func (a *App) DB() *gorm.DB {
	return a.db
}

func (a *App) Logger() *logging.Service {
	return a.logger
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) Coordinator() *refresh.Coordinator {
	return a.coordinator
}

func (a *App) Scheduler() *scheduler.Service {
	return a.scheduler
}
