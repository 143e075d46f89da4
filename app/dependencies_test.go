package app

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bluewing/auth-core/config"
	"github.com/bluewing/auth-core/repositories/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Auth: config.AuthConfig{
			SigningKey:          "base64:c2VjcmV0LXNpZ25pbmcta2V5LWZvci10ZXN0cy0zMmI=",
			Audience:            "bluewing-api",
			JWTValidity:         15 * time.Minute,
			RefreshRetention:    7 * 24 * time.Hour,
			RefreshPrefix:       "refresh",
			RefreshLength:       64,
			RotateRefreshTokens: true,
			BcryptCost:          4,
			MemberCacheTTL:      time.Minute,
			MemberCacheSize:     100,
		},
		RateLimit: config.RateLimitConfig{
			Enabled:         true,
			PerSecond:       1,
			Burst:           5,
			IdleTTL:         time.Minute,
			CleanupInterval: time.Minute,
		},
		Audit: config.AuditConfig{
			BufferSize:  10,
			WorkerCount: 1,
			StopTimeout: time.Second,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:       "error",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

func newMockDB(t *testing.T) (*postgres.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return postgres.Wrap(sqlDB, zap.NewNop()), mock
}

func TestNewDependenciesFromDB(t *testing.T) {
	t.Run("wires every component", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectClose()

		deps, err := NewDependenciesFromDB(testConfig(), db, zap.NewNop())
		require.NoError(t, err)
		require.NotNil(t, deps)

		// Infrastructure
		assert.NotNil(t, deps.DB)
		assert.NotNil(t, deps.Metrics)
		assert.NotNil(t, deps.TxManager)

		// Repositories
		require.NotNil(t, deps.Repositories)
		assert.NotNil(t, deps.Repositories.Organizations)
		assert.NotNil(t, deps.Repositories.Users)
		assert.NotNil(t, deps.Repositories.Members)
		assert.NotNil(t, deps.Repositories.RefreshTokens)
		assert.NotNil(t, deps.Repositories.Locations)
		assert.NotNil(t, deps.Repositories.AuditLogs)

		// Services and HTTP
		assert.NotNil(t, deps.AuthService)
		assert.NotNil(t, deps.LocationService)
		assert.NotNil(t, deps.RateLimitService)
		assert.NotNil(t, deps.AuthHandler)
		assert.NotNil(t, deps.LocationHandler)
		assert.NotNil(t, deps.AuditLogHandler)
		assert.NotNil(t, deps.HealthHandler)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.RateLimitMiddleware)
		assert.True(t, deps.AuditService.GetStats().Started)

		require.NoError(t, deps.Close(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rate limiting and metrics disabled", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectClose()

		cfg := testConfig()
		cfg.RateLimit.Enabled = false
		cfg.Observability.MetricsEnabled = false

		deps, err := NewDependenciesFromDB(cfg, db, zap.NewNop())
		require.NoError(t, err)

		assert.Nil(t, deps.Metrics)
		assert.Nil(t, deps.RateLimitService)
		assert.Nil(t, deps.RateLimitMiddleware)

		require.NoError(t, deps.Close(context.Background()))
	})

	t.Run("invalid signing key", func(t *testing.T) {
		db, _ := newMockDB(t)

		cfg := testConfig()
		cfg.Auth.SigningKey = "base64:%%%"

		deps, err := NewDependenciesFromDB(cfg, db, zap.NewNop())
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize auth")
	})
}

func TestNewDependenciesDatabaseFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Database = config.DatabaseConfig{
		ConnectionString: "postgres://user@127.0.0.1:1/bluewing?sslmode=disable&connect_timeout=1",
	}

	deps, err := NewDependencies(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "failed to initialize database")
}

func TestDependenciesClose(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectClose()

	deps, err := NewDependenciesFromDB(testConfig(), db, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, deps.Close(ctx))

	// Audit workers are already stopped
	assert.Error(t, deps.Close(ctx))
}
