package testutils

import (
	"time"

	"github.com/tech-arch1tect/cloudtoken/config"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name: "Test App",
			URL:  "http://localhost:8080",
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
		Redis: config.RedisConfig{
			KeyPrefix: "test:",
		},
		Refresh: config.RefreshConfig{
			ExpiryBuffer:      15 * time.Minute,
			LockTTL:           30 * time.Second,
			LockWait:          200 * time.Millisecond,
			LockRetryInterval: 5 * time.Millisecond,
			MaxScheduleAhead:  24 * time.Hour,
			ScanInterval:      time.Minute,
			ScanWindowMinutes: 60,
			RequeueDelay:      30 * time.Second,
			RetryBudget:       10 * time.Second,
		},
		Security: config.SecurityConfig{
			MaxAttemptsPerUser: 5,
			MaxAttemptsPerIP:   20,
			Window:             time.Hour,
			EncryptionKey:      "test-encryption-key-32-chars-long",
		},
		Retry: config.RetryConfig{
			Jitter:       false,
			JitterFactor: 0.1,
		},
		Queue: config.QueueConfig{
			Driver:       "memory",
			Workers:      1,
			PollInterval: 10 * time.Millisecond,
			LeaseTimeout: time.Minute,
			MaxAttempts:  3,
		},
		Mail: config.MailConfig{
			Host:        "localhost",
			Port:        1025,
			FromAddress: "noreply@example.com",
			FromName:    "Test App",
		},
		Notification: config.NotificationConfig{
			Enabled:        true,
			ThrottleWindow: 24 * time.Hour,
			ReconnectURL:   "http://localhost:8080/reconnect",
		},
		JWT: config.JWTConfig{
			SecretKey:       "test-secret-key-32-chars-long!!",
			Algorithm:       "HS256",
			Issuer:          "test-issuer",
			ReconnectExpiry: 7 * 24 * time.Hour,
			AdminExpiry:     time.Hour,
		},
		RateLimit: config.RateLimitConfig{
			Enabled: true,
			Store:   "memory",
			Rate:    60,
			Period:  time.Minute,
		},
		Providers: config.ProvidersConfig{
			GoogleClientID:     "google-client",
			GoogleClientSecret: "google-secret",
			DropboxClientID:    "dropbox-client",
			OneDriveTenant:     "common",
			RequestsPerSecond:  100,
			Burst:              100,
			Timeout:            5 * time.Second,
		},
	}
}
