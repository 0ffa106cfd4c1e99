package app

import (
	"fmt"

	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/database"
	"github.com/tech-arch1tect/cloudtoken/middleware/ratelimit"
	"github.com/tech-arch1tect/cloudtoken/server"
	"github.com/tech-arch1tect/cloudtoken/services/audit"
	"github.com/tech-arch1tect/cloudtoken/services/counters"
	"github.com/tech-arch1tect/cloudtoken/services/jwt"
	"github.com/tech-arch1tect/cloudtoken/services/locks"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/mail"
	"github.com/tech-arch1tect/cloudtoken/services/metrics"
	"github.com/tech-arch1tect/cloudtoken/services/notification"
	"github.com/tech-arch1tect/cloudtoken/services/providers"
	"github.com/tech-arch1tect/cloudtoken/services/queue"
	"github.com/tech-arch1tect/cloudtoken/services/refresh"
	"github.com/tech-arch1tect/cloudtoken/services/retry"
	"github.com/tech-arch1tect/cloudtoken/services/revocation"
	"github.com/tech-arch1tect/cloudtoken/services/scheduler"
	"github.com/tech-arch1tect/cloudtoken/services/storageerrors"
	"github.com/tech-arch1tect/cloudtoken/services/tokens"
	"github.com/tech-arch1tect/cloudtoken/services/tokensecurity"
	"go.uber.org/fx"
)

type AppBuilder struct {
	config    *config.Config
	services  map[string]bool
	models    []any
	fxOptions []fx.Option
	errors    []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		services:  make(map[string]bool),
		models:    make([]any, 0),
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

// WithDatabase registers extra models for auto-migration. The refresh core
// always runs on the database; its own tables are migrated regardless.
func (b *AppBuilder) WithDatabase(models ...any) *AppBuilder {
	b.models = append(b.models, models...)
	return b
}

func (b *AppBuilder) WithRedis() *AppBuilder {
	b.services["redis"] = true
	return b
}

func (b *AppBuilder) WithMail() *AppBuilder {
	b.services["mail"] = true
	return b
}

func (b *AppBuilder) WithMetrics() *AppBuilder {
	b.services["metrics"] = true
	return b
}

// WithServer mounts the admin API.
func (b *AppBuilder) WithServer() *AppBuilder {
	b.services["server"] = true
	return b
}

// WithScheduler runs the periodic expiring token scan.
func (b *AppBuilder) WithScheduler() *AppBuilder {
	b.services["scheduler"] = true
	return b
}

// WithWorkers runs the queue worker pool with the refresh job registered.
func (b *AppBuilder) WithWorkers() *AppBuilder {
	b.services["workers"] = true
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if b.config == nil {
		b.WithAutoConfig()
	}

	if err := b.validate(); err != nil {
		return nil, err
	}

	logger, err := b.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{
		config: b.config,
		logger: logger,
	}

	fxOptions := b.buildFxOptions(logger)
	fxOptions = append(fxOptions, fx.Populate(&app.db, &app.coordinator, &app.scheduler))
	if b.services["server"] {
		fxOptions = append(fxOptions, fx.Populate(&app.server))
	}

	app.fx = fx.New(fxOptions...)
	if err := app.fx.Err(); err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}

	return app, nil
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, fmt.Errorf("%s", msg))
}

func (b *AppBuilder) validate() error {
	if len(b.errors) > 0 {
		return fmt.Errorf("configuration errors: %v", b.errors)
	}

	if b.config.Redis.Enabled && !b.services["redis"] {
		b.services["redis"] = true
	}

	if b.services["server"] && b.config.RateLimit.Enabled &&
		b.config.RateLimit.Store == ratelimit.StoreRedis && !b.services["redis"] {
		return fmt.Errorf("redis rate limit store requires redis support")
	}

	if b.services["redis"] && !b.config.Redis.Enabled {
		return fmt.Errorf("redis support requires REDIS_ENABLED")
	}

	if b.services["workers"] && b.config.Queue.Driver == "memory" && !b.services["scheduler"] && !b.services["server"] {
		return fmt.Errorf("memory queue workers need the scheduler or the API in the same process")
	}

	return nil
}

func (b *AppBuilder) createLogger() (*logging.Service, error) {
	if b.config == nil {
		return nil, fmt.Errorf("config required for logger creation")
	}

	return logging.NewService(logging.ConfigFrom(b.config))
}

func coreModels() []any {
	return []any{
		&tokens.Token{},
		&audit.Entry{},
		&queue.JobRecord{},
		&revocation.RevokedToken{},
	}
}

func (b *AppBuilder) buildFxOptions(logger *logging.Service) []fx.Option {
	var options []fx.Option

	options = append(options,
		config.NewProvider(b.config),
		fx.Supply(logger),
		fx.Supply(database.WithModels(append(coreModels(), b.models...)...)),
		fx.NopLogger,
		database.Module,
	)

	if b.services["redis"] {
		options = append(options, database.RedisModule)
	}

	if b.services["metrics"] {
		options = append(options, metrics.Module)
	} else {
		options = append(options, fx.Provide(metrics.NewNoop))
	}

	if b.services["mail"] {
		options = append(options, mail.Module)
	}

	options = append(options,
		storageerrors.Module,
		retry.Module,
		counters.Module,
		locks.Module,
		tokens.Module,
		audit.Module,
		tokensecurity.Module,
		providers.Module,
		jwt.Options,
		revocation.Module,
		notification.Module,
		queue.Module,
		refresh.Module,
		scheduler.Module,
	)

	if b.services["server"] {
		options = append(options, ratelimit.Module, server.NewProvider())
	}
	if b.services["workers"] {
		options = append(options, queue.WorkerModule, refresh.WorkerOptions)
	}
	if b.services["scheduler"] {
		options = append(options, scheduler.LoopOptions)
	}

	options = append(options, b.fxOptions...)

	return options
}
