package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig          `envPrefix:"APP_"`
	Server       ServerConfig       `envPrefix:"SERVER_"`
	Log          LogConfig          `envPrefix:"LOG_"`
	Database     DatabaseConfig     `envPrefix:"DATABASE_"`
	Redis        RedisConfig        `envPrefix:"REDIS_"`
	Refresh      RefreshConfig      `envPrefix:"REFRESH_"`
	Security     SecurityConfig     `envPrefix:"SECURITY_"`
	Retry        RetryConfig        `envPrefix:"RETRY_"`
	Queue        QueueConfig        `envPrefix:"QUEUE_"`
	Mail         MailConfig         `envPrefix:"MAIL_"`
	Notification NotificationConfig `envPrefix:"NOTIFICATION_"`
	JWT          JWTConfig          `envPrefix:"JWT_"`
	Metrics      MetricsConfig      `envPrefix:"METRICS_"`
	RateLimit    RateLimitConfig    `envPrefix:"RATE_LIMIT_"`
	Providers    ProvidersConfig    `envPrefix:"PROVIDERS_"`
}

type AppConfig struct {
	Name string `env:"NAME" envDefault:"cloudtoken"`
	URL  string `env:"URL" envDefault:"http://localhost:8080"`
}

type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	Host           string   `env:"HOST" envDefault:"localhost"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"cloudtoken.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

// RedisConfig backs the refresh locks and attempt counters. When disabled
// both fall back to in-process stores, which only coordinate a single worker.
type RedisConfig struct {
	Enabled     bool          `env:"ENABLED" envDefault:"false"`
	Addr        string        `env:"ADDR" envDefault:"localhost:6379"`
	Password    string        `env:"PASSWORD"`
	DB          int           `env:"DB" envDefault:"0"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	KeyPrefix   string        `env:"KEY_PREFIX" envDefault:"cloudtoken:"`
}

type RefreshConfig struct {
	ExpiryBuffer      time.Duration `env:"EXPIRY_BUFFER" envDefault:"15m"`
	LockTTL           time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	LockWait          time.Duration `env:"LOCK_WAIT" envDefault:"5s"`
	LockRetryInterval time.Duration `env:"LOCK_RETRY_INTERVAL" envDefault:"100ms"`
	MaxScheduleAhead  time.Duration `env:"MAX_SCHEDULE_AHEAD" envDefault:"24h"`
	ScanInterval      time.Duration `env:"SCAN_INTERVAL" envDefault:"5m"`
	ScanWindowMinutes int           `env:"SCAN_WINDOW_MINUTES" envDefault:"60"`
	ScanEnabled       bool          `env:"SCAN_ENABLED" envDefault:"true"`
	RequeueDelay      time.Duration `env:"REQUEUE_DELAY" envDefault:"30s"`
	// RetryBudget caps the total backoff slept inside one refresh; longer
	// waits are handed back to the queue.
	RetryBudget time.Duration `env:"RETRY_BUDGET" envDefault:"10s"`
}

type SecurityConfig struct {
	MaxAttemptsPerUser int           `env:"MAX_ATTEMPTS_PER_USER" envDefault:"5"`
	MaxAttemptsPerIP   int           `env:"MAX_ATTEMPTS_PER_IP" envDefault:"20"`
	Window             time.Duration `env:"WINDOW" envDefault:"1h"`
	EncryptionKey      string        `env:"ENCRYPTION_KEY"`
}

type RetryConfig struct {
	Jitter       bool    `env:"JITTER" envDefault:"true"`
	JitterFactor float64 `env:"JITTER_FACTOR" envDefault:"0.1"`
}

type QueueConfig struct {
	Driver       string        `env:"DRIVER" envDefault:"database"`
	Workers      int           `env:"WORKERS" envDefault:"2"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	LeaseTimeout time.Duration `env:"LEASE_TIMEOUT" envDefault:"2m"`
	MaxAttempts  int           `env:"MAX_ATTEMPTS" envDefault:"5"`
}

type MailConfig struct {
	Host         string `env:"HOST" envDefault:"localhost"`
	Port         int    `env:"PORT" envDefault:"587"`
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	Encryption   string `env:"ENCRYPTION" envDefault:"tls"`
	FromAddress  string `env:"FROM_ADDRESS"`
	FromName     string `env:"FROM_NAME" envDefault:"cloudtoken"`
	TemplatesDir string `env:"TEMPLATES_DIR"`
}

type NotificationConfig struct {
	Enabled        bool          `env:"ENABLED" envDefault:"true"`
	ThrottleWindow time.Duration `env:"THROTTLE_WINDOW" envDefault:"24h"`
	ReconnectURL   string        `env:"RECONNECT_URL" envDefault:"http://localhost:8080/reconnect"`
	Template       string        `env:"TEMPLATE"`
}

type JWTConfig struct {
	SecretKey       string        `env:"SECRET_KEY"`
	Issuer          string        `env:"ISSUER" envDefault:"cloudtoken"`
	Algorithm       string        `env:"ALGORITHM" envDefault:"HS256"`
	ReconnectExpiry time.Duration `env:"RECONNECT_EXPIRY" envDefault:"168h"`
	AdminExpiry     time.Duration `env:"ADMIN_EXPIRY" envDefault:"1h"`
}

type MetricsConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Path    string `env:"PATH" envDefault:"/metrics"`
}

type RateLimitConfig struct {
	Enabled         bool          `env:"ENABLED" envDefault:"true"`
	Store           string        `env:"STORE" envDefault:"memory"`
	Rate            int64         `env:"RATE" envDefault:"60"`
	Period          time.Duration `env:"PERIOD" envDefault:"1m"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m"`
}

type ProvidersConfig struct {
	File string `env:"FILE"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	DropboxClientID     string `env:"DROPBOX_CLIENT_ID"`
	DropboxClientSecret string `env:"DROPBOX_CLIENT_SECRET"`

	OneDriveClientID     string `env:"ONEDRIVE_CLIENT_ID"`
	OneDriveClientSecret string `env:"ONEDRIVE_CLIENT_SECRET"`
	OneDriveTenant       string `env:"ONEDRIVE_TENANT" envDefault:"common"`

	RequestsPerSecond float64 `env:"REQUESTS_PER_SECOND" envDefault:"5"`
	Burst             int     `env:"BURST" envDefault:"10"`
	// Timeout bounds a single token endpoint request.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	if c, ok := cfg.(*Config); ok {
		return c.Validate()
	}

	return nil
}

func (c *Config) Validate() error {
	if err := validateRefreshConfig(&c.Refresh); err != nil {
		return err
	}
	if err := validateRefreshTiming(&c.Refresh, &c.Providers); err != nil {
		return err
	}
	if err := validateSecurityConfig(&c.Security); err != nil {
		return err
	}
	if err := validateRetryConfig(&c.Retry); err != nil {
		return err
	}
	if err := validateQueueConfig(&c.Queue); err != nil {
		return err
	}
	if c.JWT.SecretKey != "" {
		if err := validateJWTConfig(&c.JWT); err != nil {
			return err
		}
	}
	return nil
}

func validateRefreshConfig(cfg *RefreshConfig) error {
	if cfg.ExpiryBuffer <= 0 {
		return fmt.Errorf("refresh expiry buffer must be positive")
	}
	if cfg.LockTTL <= 0 {
		return fmt.Errorf("refresh lock TTL must be positive")
	}
	if cfg.LockWait < 0 {
		return fmt.Errorf("refresh lock wait cannot be negative")
	}
	if cfg.LockWait >= cfg.LockTTL {
		return fmt.Errorf("refresh lock wait must be shorter than the lock TTL")
	}
	if cfg.MaxScheduleAhead < cfg.ExpiryBuffer {
		return fmt.Errorf("refresh max schedule ahead must be at least the expiry buffer")
	}
	if cfg.ScanWindowMinutes <= 0 {
		return fmt.Errorf("refresh scan window must be at least 1 minute")
	}
	return nil
}

// validateRefreshTiming keeps one provider call, including its in-process
// retries, inside the refresh lock.
func validateRefreshTiming(refresh *RefreshConfig, providers *ProvidersConfig) error {
	if refresh.RetryBudget < 0 {
		return fmt.Errorf("refresh retry budget cannot be negative")
	}
	if providers.Timeout <= 0 {
		return fmt.Errorf("providers timeout must be positive")
	}
	if refresh.RetryBudget+providers.Timeout >= refresh.LockTTL {
		return fmt.Errorf("refresh retry budget plus providers timeout must be shorter than the lock TTL")
	}
	return nil
}

func validateSecurityConfig(cfg *SecurityConfig) error {
	if cfg.MaxAttemptsPerUser <= 0 {
		return fmt.Errorf("security max attempts per user must be positive")
	}
	if cfg.MaxAttemptsPerIP < cfg.MaxAttemptsPerUser {
		return fmt.Errorf("security max attempts per IP cannot be lower than per user")
	}
	if cfg.Window <= 0 {
		return fmt.Errorf("security rate limit window must be positive")
	}
	if cfg.EncryptionKey != "" {
		if _, err := hex.DecodeString(cfg.EncryptionKey); err == nil && len(cfg.EncryptionKey) != 64 {
			return fmt.Errorf("security encryption key in hex must be 64 characters")
		}
		if len(cfg.EncryptionKey) < 32 {
			return fmt.Errorf("security encryption key must be at least 32 characters long")
		}
	}
	return nil
}

func validateRetryConfig(cfg *RetryConfig) error {
	if cfg.JitterFactor < 0 || cfg.JitterFactor >= 1 {
		return fmt.Errorf("retry jitter factor must be between 0 and 1")
	}
	return nil
}

func validateQueueConfig(cfg *QueueConfig) error {
	switch cfg.Driver {
	case "database", "memory":
	default:
		return fmt.Errorf("queue driver must be: database or memory")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("queue workers must be positive")
	}
	if cfg.MaxAttempts <= 0 {
		return fmt.Errorf("queue max attempts must be positive")
	}
	return nil
}

func validateJWTConfig(cfg *JWTConfig) error {
	if len(cfg.SecretKey) < 32 {
		return fmt.Errorf("JWT secret key must be at least 32 characters long")
	}

	lower := strings.ToLower(cfg.SecretKey)
	for _, weak := range []string{"password", "secret", "test", "example", "default", "change"} {
		if strings.Contains(lower, weak) {
			return fmt.Errorf("JWT secret key contains weak patterns")
		}
	}

	if cfg.Algorithm != "HS256" {
		return fmt.Errorf("JWT algorithm must be HS256")
	}

	return nil
}
