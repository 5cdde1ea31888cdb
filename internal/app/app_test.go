package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bulog/serapan/internal/observability"
	"github.com/bulog/serapan/jobs"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, cfg.CacheTTL)

	rc := cfg.Reconcile()
	require.Equal(t, 1000, rc.BatchSize)
	require.Equal(t, 1000, rc.PageSize)
	require.Equal(t, 200*time.Millisecond, rc.PageDelay)
	require.Equal(t, 3, rc.MaxRetries)
	require.Equal(t, 2*time.Second, rc.RetryBase)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsNonPositiveTuning(t *testing.T) {
	t.Setenv("RECONCILE_BATCH_SIZE", "0")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "RECONCILE_BATCH_SIZE")
}

func TestLoadConfigRejectsNegativeRetries(t *testing.T) {
	t.Setenv("RECONCILE_MAX_RETRIES", "-1")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "RECONCILE_MAX_RETRIES")
}

func TestLoadConfigRejectsMalformedDuration(t *testing.T) {
	t.Setenv("RECONCILE_PAGE_DELAY", "soon")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestNewLoggerJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLoggerTo(&Config{LogFormat: "JSON", AppEnv: "production"}, buf)
	logger.Debug("hidden")
	logger.Info("import done", "rows", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "import done", entry["msg"])
	require.Equal(t, "serapan", entry["service"])
}

func TestRouterHealthAndHeaders(t *testing.T) {
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{
		Config:     &Config{RateLimitPerMinute: 100},
		JobHandler: jobs.NewHandler(nil, nil),
		Metrics:    metrics,
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), `serapan_http_requests_total{code="200",route="/healthz"} 1`), rr.Body.String())
}

func TestRouterReadiness(t *testing.T) {
	ready := errors.New("postgres down")
	router := NewRouter(RouterParams{
		Config: &Config{RateLimitPerMinute: 100},
		Ready:  func(context.Context) error { return ready },
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	ready = nil
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterRateLimit(t *testing.T) {
	router := NewRouter(RouterParams{Config: &Config{RateLimitPerMinute: 2}})
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
}
