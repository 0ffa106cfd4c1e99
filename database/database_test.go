package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/cloudtoken/config"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"gorm.io/gorm"
)

func createTestConfig(driver, dsn string, autoMigrate bool) config.Config {
	return config.Config{
		Database: config.DatabaseConfig{
			Driver:      driver,
			DSN:         dsn,
			AutoMigrate: autoMigrate,
		},
	}
}

type TestModel struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:255"`
}

func TestWithModels(t *testing.T) {
	option := WithModels(TestModel{}, &TestModel{})
	assert.Len(t, option.models, 2)
	assert.Empty(t, WithModels().models)
}

func TestProvideDatabase(t *testing.T) {
	t.Run("in-memory sqlite", func(t *testing.T) {
		db, err := ProvideDatabase(createTestConfig("sqlite", ":memory:", false), nil, logging.NewNop())
		require.NoError(t, err)

		sqlDB, err := db.DB()
		require.NoError(t, err)
		defer sqlDB.Close()
		assert.NoError(t, sqlDB.Ping())
		assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	})

	t.Run("file sqlite with migration", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tokens.db")
		db, err := ProvideDatabase(createTestConfig("sqlite", path, true), WithModels(&TestModel{}), nil)
		require.NoError(t, err)

		sqlDB, err := db.DB()
		require.NoError(t, err)
		defer sqlDB.Close()
		assert.True(t, db.Migrator().HasTable(&TestModel{}))
	})

	t.Run("auto migrate disabled", func(t *testing.T) {
		db, err := ProvideDatabase(createTestConfig("sqlite", ":memory:", false), WithModels(&TestModel{}), nil)
		require.NoError(t, err)
		assert.False(t, db.Migrator().HasTable(&TestModel{}))
	})

	t.Run("unsupported driver", func(t *testing.T) {
		db, err := ProvideDatabase(createTestConfig("oracle", "dsn", false), nil, nil)
		assert.Nil(t, db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database driver")
	})
}

func TestModule(t *testing.T) {
	var db *gorm.DB
	app := fxtest.New(t,
		Module,
		fx.Provide(func() *config.Config {
			cfg := createTestConfig("sqlite", ":memory:", true)
			return &cfg
		}),
		fx.Provide(func() *logging.Service { return logging.NewNop() }),
		fx.Provide(func() *ModelsOption { return WithModels(&TestModel{}) }),
		fx.Populate(&db),
	)
	app.RequireStart()
	assert.True(t, db.Migrator().HasTable(&TestModel{}))
	app.RequireStop()
}

func TestNewRedisClient(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		client, err := NewRedisClient(context.Background(), config.RedisConfig{}, nil)
		assert.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("connects", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := NewRedisClient(context.Background(), config.RedisConfig{
			Enabled:     true,
			Addr:        mr.Addr(),
			DialTimeout: time.Second,
		}, logging.NewNop())
		require.NoError(t, err)
		defer client.Close()
		assert.NoError(t, client.Ping(context.Background()).Err())
	})

	t.Run("unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		client, err := NewRedisClient(context.Background(), config.RedisConfig{
			Enabled:     true,
			Addr:        addr,
			DialTimeout: 200 * time.Millisecond,
		}, nil)
		assert.Nil(t, client)
		assert.Error(t, err)
	})
}
