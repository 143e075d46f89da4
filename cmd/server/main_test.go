package main

import (
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/bluewing/auth-core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "error",
			LogFormat: "json",
		},
	}
}

func TestInitLogger(t *testing.T) {
	t.Run("json logger", func(t *testing.T) {
		logger, err := initLogger(testConfig())
		require.NoError(t, err)
		require.NotNil(t, logger)
		_ = logger.Sync()
	})

	t.Run("console logger", func(t *testing.T) {
		cfg := testConfig()
		cfg.Observability.LogFormat = "console"
		cfg.Observability.LogLevel = "debug"

		logger, err := initLogger(cfg)
		require.NoError(t, err)
		require.NotNil(t, logger)
		_ = logger.Sync()
	})

	t.Run("rotating file", func(t *testing.T) {
		cfg := testConfig()
		cfg.Observability.LogFile = filepath.Join(t.TempDir(), "auth.log")
		cfg.Observability.LogMaxAge = time.Hour

		logger, err := initLogger(cfg)
		require.NoError(t, err)
		logger.Error("written to file")
		_ = logger.Sync()
	})
}

func TestNewServer(t *testing.T) {
	handler := http.NotFoundHandler()
	srv := newServer(testConfig(), handler)

	assert.Equal(t, "127.0.0.1:8080", srv.Addr)
	assert.Equal(t, 30*time.Second, srv.ReadTimeout)
	assert.Equal(t, 15*time.Second, srv.WriteTimeout)
	assert.NotNil(t, srv.Handler)
}
