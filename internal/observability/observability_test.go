package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("stdout only", func(t *testing.T) {
		logger, err := NewLogger(DefaultLogConfig())
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("console debug", func(t *testing.T) {
		logger, err := NewLogger(LogConfig{Level: "debug", Format: "console"})
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("rotating file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth.log")
		logger, err := NewLogger(LogConfig{Level: "info", Format: "json", File: path})
		require.NoError(t, err)

		logger.Info("file sink check")
		_ = logger.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "file sink check")
	})
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JWTIssued()
		m.JWTVerified("ok")
		m.RefreshIssued()
		m.RefreshRedeemed("ok")
		m.RefreshRevoked(3)
		m.RefreshSwept(3)
		m.LoginAttempt("failed")
		m.RateLimited("/user/login")
	})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, m.Instrument(h))
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.JWTIssued()
	m.JWTIssued()
	m.JWTVerified("invalid")
	m.RefreshRedeemed("replay")
	m.RefreshRevoked(4)
	m.RefreshRevoked(0)
	m.RefreshSwept(-1)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.jwtIssued))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jwtVerifications.WithLabelValues("invalid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.refreshRedeemed.WithLabelValues("replay")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.refreshRevoked))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.refreshSwept))
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	m := NewMetrics()

	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/api/locations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/locations/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/locations/{id}", "404")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "http_requests_total"))
}
