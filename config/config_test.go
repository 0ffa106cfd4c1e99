package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	var cfg Config
	err := LoadConfig(&cfg)

	require.NoError(t, err)

	assert.Equal(t, "cloudtoken", cfg.App.Name)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Refresh.ExpiryBuffer)
	assert.Equal(t, 30*time.Second, cfg.Refresh.LockTTL)
	assert.Equal(t, 5*time.Second, cfg.Refresh.LockWait)
	assert.Equal(t, 24*time.Hour, cfg.Refresh.MaxScheduleAhead)
	assert.Equal(t, 10*time.Second, cfg.Refresh.RetryBudget)
	assert.Equal(t, 10*time.Second, cfg.Providers.Timeout)
	assert.Equal(t, 5, cfg.Security.MaxAttemptsPerUser)
	assert.Equal(t, 20, cfg.Security.MaxAttemptsPerIP)
	assert.Equal(t, time.Hour, cfg.Security.Window)
	assert.True(t, cfg.Retry.Jitter)
	assert.InDelta(t, 0.1, cfg.Retry.JitterFactor, 0.0001)
	assert.Equal(t, "database", cfg.Queue.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Notification.ThrottleWindow)
	assert.Equal(t, 168*time.Hour, cfg.JWT.ReconnectExpiry)
}

func TestLoadConfig_EnvironmentVariables(t *testing.T) {
	clearEnvVars(t)

	os.Setenv("APP_NAME", "Token Worker")
	os.Setenv("REDIS_ENABLED", "true")
	os.Setenv("REDIS_ADDR", "redis:6379")
	os.Setenv("REFRESH_EXPIRY_BUFFER", "10m")
	os.Setenv("SECURITY_MAX_ATTEMPTS_PER_USER", "3")
	os.Setenv("QUEUE_DRIVER", "memory")
	os.Setenv("PROVIDERS_GOOGLE_CLIENT_ID", "google-client")
	defer clearEnvVars(t)

	var cfg Config
	err := LoadConfig(&cfg)

	require.NoError(t, err)

	assert.Equal(t, "Token Worker", cfg.App.Name)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Refresh.ExpiryBuffer)
	assert.Equal(t, 3, cfg.Security.MaxAttemptsPerUser)
	assert.Equal(t, "memory", cfg.Queue.Driver)
	assert.Equal(t, "google-client", cfg.Providers.GoogleClientID)
}

func TestLoadConfig_CommaSeparatedValues(t *testing.T) {
	clearEnvVars(t)

	os.Setenv("SERVER_TRUSTED_PROXIES", "192.168.1.1,10.0.0.1,172.16.0.1")
	defer clearEnvVars(t)

	var cfg Config
	err := LoadConfig(&cfg)

	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.1", "10.0.0.1", "172.16.0.1"}, cfg.Server.TrustedProxies)
}

func TestValidateRefreshConfig(t *testing.T) {
	valid := RefreshConfig{
		ExpiryBuffer:      15 * time.Minute,
		LockTTL:           30 * time.Second,
		LockWait:          5 * time.Second,
		MaxScheduleAhead:  24 * time.Hour,
		ScanWindowMinutes: 60,
	}

	tests := []struct {
		name    string
		mutate  func(*RefreshConfig)
		wantErr bool
		errMsg  string
	}{
		{name: "valid refresh config", mutate: func(*RefreshConfig) {}},
		{
			name:    "zero buffer",
			mutate:  func(c *RefreshConfig) { c.ExpiryBuffer = 0 },
			wantErr: true,
			errMsg:  "refresh expiry buffer must be positive",
		},
		{
			name:    "zero lock ttl",
			mutate:  func(c *RefreshConfig) { c.LockTTL = 0 },
			wantErr: true,
			errMsg:  "refresh lock TTL must be positive",
		},
		{
			name:    "wait longer than ttl",
			mutate:  func(c *RefreshConfig) { c.LockWait = time.Minute },
			wantErr: true,
			errMsg:  "refresh lock wait must be shorter than the lock TTL",
		},
		{
			name:    "schedule ahead below buffer",
			mutate:  func(c *RefreshConfig) { c.MaxScheduleAhead = time.Minute },
			wantErr: true,
			errMsg:  "refresh max schedule ahead must be at least the expiry buffer",
		},
		{
			name:    "empty scan window",
			mutate:  func(c *RefreshConfig) { c.ScanWindowMinutes = 0 },
			wantErr: true,
			errMsg:  "refresh scan window must be at least 1 minute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := validateRefreshConfig(&cfg)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateRefreshTiming(t *testing.T) {
	tests := []struct {
		name    string
		budget  time.Duration
		timeout time.Duration
		lockTTL time.Duration
		wantErr bool
		errMsg  string
	}{
		{name: "fits inside the lock", budget: 10 * time.Second, timeout: 10 * time.Second, lockTTL: 30 * time.Second},
		{name: "no in-process retries", budget: 0, timeout: 10 * time.Second, lockTTL: 30 * time.Second},
		{
			name:    "budget as long as the lock",
			budget:  30 * time.Second,
			timeout: 10 * time.Second,
			lockTTL: 30 * time.Second,
			wantErr: true,
			errMsg:  "refresh retry budget plus providers timeout must be shorter than the lock TTL",
		},
		{
			name:    "sum equals the lock",
			budget:  20 * time.Second,
			timeout: 10 * time.Second,
			lockTTL: 30 * time.Second,
			wantErr: true,
			errMsg:  "must be shorter than the lock TTL",
		},
		{
			name:    "no provider timeout",
			budget:  10 * time.Second,
			timeout: 0,
			lockTTL: 30 * time.Second,
			wantErr: true,
			errMsg:  "providers timeout must be positive",
		},
		{
			name:    "negative budget",
			budget:  -time.Second,
			timeout: 10 * time.Second,
			lockTTL: 30 * time.Second,
			wantErr: true,
			errMsg:  "refresh retry budget cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRefreshTiming(
				&RefreshConfig{RetryBudget: tt.budget, LockTTL: tt.lockTTL},
				&ProvidersConfig{Timeout: tt.timeout},
			)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_RejectsBudgetOutlivingLock(t *testing.T) {
	clearEnvVars(t)

	os.Setenv("REFRESH_RETRY_BUDGET", "25s")
	os.Setenv("PROVIDERS_TIMEOUT", "10s")

	var cfg Config
	err := LoadConfig(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "shorter than the lock TTL")
}

func TestValidateSecurityConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SecurityConfig
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid limits",
			cfg:  SecurityConfig{MaxAttemptsPerUser: 5, MaxAttemptsPerIP: 20, Window: time.Hour},
		},
		{
			name:    "zero user limit",
			cfg:     SecurityConfig{MaxAttemptsPerUser: 0, MaxAttemptsPerIP: 20, Window: time.Hour},
			wantErr: true,
			errMsg:  "security max attempts per user must be positive",
		},
		{
			name:    "ip limit below user limit",
			cfg:     SecurityConfig{MaxAttemptsPerUser: 5, MaxAttemptsPerIP: 2, Window: time.Hour},
			wantErr: true,
			errMsg:  "security max attempts per IP cannot be lower than per user",
		},
		{
			name: "short encryption key",
			cfg: SecurityConfig{
				MaxAttemptsPerUser: 5,
				MaxAttemptsPerIP:   20,
				Window:             time.Hour,
				EncryptionKey:      "too-short",
			},
			wantErr: true,
			errMsg:  "security encryption key must be at least 32 characters long",
		},
		{
			name: "hex key with wrong length",
			cfg: SecurityConfig{
				MaxAttemptsPerUser: 5,
				MaxAttemptsPerIP:   20,
				Window:             time.Hour,
				EncryptionKey:      "00112233445566778899aabbccddeeff0011",
			},
			wantErr: true,
			errMsg:  "security encryption key in hex must be 64 characters",
		},
		{
			name: "hex key",
			cfg: SecurityConfig{
				MaxAttemptsPerUser: 5,
				MaxAttemptsPerIP:   20,
				Window:             time.Hour,
				EncryptionKey:      "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSecurityConfig(&tt.cfg)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateJWTConfig(t *testing.T) {
	tests := []struct {
		name      string
		jwtConfig JWTConfig
		wantErr   bool
		errMsg    string
	}{
		{
			name:      "valid JWT config",
			jwtConfig: JWTConfig{SecretKey: "a1b2c3d4e5f6g7h8i9j0k1l2m3n4o5p6q7r8s9t0u1v2w3x4y5z6", Algorithm: "HS256"},
		},
		{
			name:      "secret key too short",
			jwtConfig: JWTConfig{SecretKey: "short", Algorithm: "HS256"},
			wantErr:   true,
			errMsg:    "JWT secret key must be at least 32 characters long",
		},
		{
			name:      "weak secret key - contains secret",
			jwtConfig: JWTConfig{SecretKey: "my-secret-key-for-jwt-tokens-in-production", Algorithm: "HS256"},
			wantErr:   true,
			errMsg:    "JWT secret key contains weak patterns",
		},
		{
			name:      "unsupported algorithm",
			jwtConfig: JWTConfig{SecretKey: "a1b2c3d4e5f6g7h8i9j0k1l2m3n4o5p6q7r8s9t0u1v2w3x4y5z6", Algorithm: "RS256"},
			wantErr:   true,
			errMsg:    "JWT algorithm must be HS256",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateJWTConfig(&tt.jwtConfig)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_ValidationIntegration(t *testing.T) {
	clearEnvVars(t)

	t.Run("invalid queue driver fails validation", func(t *testing.T) {
		os.Setenv("QUEUE_DRIVER", "sqs")
		defer clearEnvVars(t)

		var cfg Config
		err := LoadConfig(&cfg)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue driver must be: database or memory")
	})

	t.Run("invalid JWT secret fails validation", func(t *testing.T) {
		os.Setenv("JWT_SECRET_KEY", "short")
		defer clearEnvVars(t)

		var cfg Config
		err := LoadConfig(&cfg)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT secret key must be at least 32 characters long")
	})
}

func TestLoadConfig_NonConfigStruct(t *testing.T) {
	type CustomConfig struct {
		Name string `env:"NAME" envDefault:"default"`
	}

	var cfg CustomConfig
	err := LoadConfig(&cfg)

	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Name)
}

func clearEnvVars(t *testing.T) {
	t.Helper()

	envVars := []string{
		"APP_NAME", "APP_URL",
		"SERVER_PORT", "SERVER_HOST", "SERVER_TRUSTED_PROXIES",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT",
		"DATABASE_DRIVER", "DATABASE_DSN", "DATABASE_AUTO_MIGRATE",
		"REDIS_ENABLED", "REDIS_ADDR",
		"REFRESH_EXPIRY_BUFFER", "REFRESH_LOCK_TTL", "REFRESH_LOCK_WAIT", "REFRESH_RETRY_BUDGET",
		"SECURITY_MAX_ATTEMPTS_PER_USER", "SECURITY_MAX_ATTEMPTS_PER_IP", "SECURITY_ENCRYPTION_KEY",
		"QUEUE_DRIVER", "QUEUE_WORKERS",
		"JWT_SECRET_KEY", "JWT_ALGORITHM",
		"PROVIDERS_GOOGLE_CLIENT_ID", "PROVIDERS_FILE", "PROVIDERS_TIMEOUT",
	}

	for _, envVar := range envVars {
		os.Unsetenv(envVar)
	}

	t.Cleanup(func() {
		for _, envVar := range envVars {
			os.Unsetenv(envVar)
		}
	})
}
