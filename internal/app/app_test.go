package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockpool/internal/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://u:p@db:5432/stock")
	t.Setenv("INVENTORY_REJECT_OVERSELL", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "postgres://u:p@db:5432/stock", cfg.PGDSN)
	require.True(t, cfg.InventoryRejectOversell)
	require.Equal(t, 50, cfg.InventoryBatchSize)
	require.Equal(t, 100*time.Millisecond, cfg.InventoryBatchPause)
	require.Equal(t, 5*time.Minute, cfg.InventoryLoansCacheTTL)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadBatchSize(t *testing.T) {
	t.Setenv("INVENTORY_BATCH_SIZE", "0")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("INVENTORY_BATCH_SIZE", "many")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestLogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, logLevel(&Config{LogLevel: "debug"}))
	require.Equal(t, slog.LevelWarn, logLevel(&Config{LogLevel: "WARN"}))
	require.Equal(t, slog.LevelInfo, logLevel(&Config{LogLevel: "chatty"}))
	require.Equal(t, slog.LevelInfo, logLevel(nil))
}

func testConfig() *Config {
	return &Config{AppEnv: "test", AppRequestTimeout: time.Second, RateLimitPerMinute: 2}
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger:  slog.Default(),
		Config:  testConfig(),
		Metrics: observability.NewMetrics(),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rr.Header().Get("X-Frame-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), `stockpool_http_requests_total{code="200",route="/healthz"} 1`))
}

func TestRouterReadiness(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger: slog.Default(),
		Config: testConfig(),
		Ready: map[string]Pinger{
			"postgres": PingFunc(func(context.Context) error { return nil }),
			"redis":    PingFunc(func(context.Context) error { return errors.New("refused") }),
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.JSONEq(t, `{"postgres":"up","redis":"down"}`, rr.Body.String())
}

func TestRouterRateLimit(t *testing.T) {
	router := NewRouter(RouterParams{Logger: slog.Default(), Config: testConfig()})

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRouterUnknownRouteIsProblem(t *testing.T) {
	router := NewRouter(RouterParams{Logger: slog.Default(), Config: testConfig()})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestInTestModeFollowsEnvironment(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	require.True(t, InTestMode())
	t.Setenv(testModeEnv, "true")
	require.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	require.False(t, InTestMode())
	t.Setenv(testModeEnv, "yes please")
	require.False(t, InTestMode())
}
