package logging

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedService(level zapcore.Level) (*Service, *observer.ObservedLogs) {
	core, recorded := observer.New(level)
	return FromZap(zap.New(core)), recorded
}

func TestNewService(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		service, err := NewService(Config{Level: Info, Format: "json", OutputPath: "stdout"})

		require.NoError(t, err)
		assert.NotNil(t, service.logger)
		assert.NotNil(t, service.sugar)
	})

	t.Run("console format", func(t *testing.T) {
		service, err := NewService(Config{Level: Debug, Format: "console", OutputPath: "stdout"})

		require.NoError(t, err)
		assert.NotNil(t, service.logger)
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "worker.log")

		service, err := NewService(Config{Level: Warn, Format: "json", OutputPath: logFile})
		require.NoError(t, err)

		service.Warn("lock wait exceeded")
		_ = service.Sync()

		_, err = os.Stat(logFile)
		assert.NoError(t, err)
	})
}

func TestService_LoggingMethods(t *testing.T) {
	service, recorded := newObservedService(zapcore.DebugLevel)

	service.Debug("debug message")
	service.Info("info message")
	service.Warn("warn message")
	service.Error("error message")
	service.Infow("info kv", "key", "value")
	service.Warnw("warn kv", "key", "value")
	service.Errorw("error kv", "key", "value")

	logs := recorded.TakeAll()
	require.Len(t, logs, 7)
	assert.Equal(t, zapcore.DebugLevel, logs[0].Level)
	assert.Equal(t, zapcore.InfoLevel, logs[1].Level)
	assert.Equal(t, zapcore.WarnLevel, logs[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, logs[3].Level)
	assert.Equal(t, "info kv", logs[4].Message)
	assert.Equal(t, "value", logs[4].ContextMap()["key"])
}

func TestService_With(t *testing.T) {
	service, recorded := newObservedService(zapcore.InfoLevel)

	child := service.With(zap.String("provider", "google-drive")).Named("refresh")
	child.Info("refresh started")

	logs := recorded.TakeAll()
	require.Len(t, logs, 1)
	assert.Equal(t, "refresh", logs[0].LoggerName)
	assert.Equal(t, "google-drive", logs[0].ContextMap()["provider"])
}

func TestService_NilSafety(t *testing.T) {
	var service *Service

	assert.NotPanics(t, func() {
		service.Debug("test")
		service.Info("test")
		service.Warn("test")
		service.Error("test")
		service.Infow("test", "key", "value")
		service.Warnw("test", "key", "value")
		service.Errorw("test", "key", "value")
		assert.Nil(t, service.With(zap.String("k", "v")))
		assert.Nil(t, service.Named("x"))
		assert.Nil(t, service.Logger())
		assert.NoError(t, service.Sync())
	})

	empty := &Service{}
	assert.NotPanics(t, func() {
		empty.Info("test")
		empty.Errorw("test", "key", "value")
	})
}

func TestSecretPrefix(t *testing.T) {
	assert.Equal(t, "", SecretPrefix(""))
	assert.Equal(t, "...", SecretPrefix("short"))
	assert.Equal(t, "ya29.a0A...", SecretPrefix("ya29.a0AfB_byD-very-long-access-token"))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zapcore.Level
	}{
		{Debug, zapcore.DebugLevel},
		{Info, zapcore.InfoLevel},
		{Warn, zapcore.WarnLevel},
		{Error, zapcore.ErrorLevel},
		{LogLevel("unknown"), zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestRequestLogger(t *testing.T) {
	service, recorded := newObservedService(zapcore.InfoLevel)

	e := echo.New()
	e.Use(RequestLogger(service, "/health"))
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/tokens/:user/:provider/status", func(c echo.Context) error {
		return c.NoContent(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, recorded.TakeAll())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tokens/u1/dropbox/status", nil))

	logs := recorded.TakeAll()
	require.Len(t, logs, 1)
	assert.Equal(t, "client error", logs[0].Message)
	assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
}
