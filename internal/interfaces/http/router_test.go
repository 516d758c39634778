package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/metrics"
	"github.com/dosewise/rxlens/internal/interfaces/http/handlers"
)

func TestRouterHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.ObserveScan(metrics.ScanCacheHit, 0)

	r := NewRouter(RouterConfig{
		HealthHandler: handlers.NewHealthHandler("test"),
		MetricsReg:    reg,
		Mode:          gin.TestMode,
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rxlens_scans_total")
}

func TestRouterCORS(t *testing.T) {
	r := NewRouter(RouterConfig{
		HealthHandler:  handlers.NewHealthHandler("test"),
		Mode:           gin.TestMode,
		AllowedOrigins: []string{"https://app.example.com"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/prescriptions/analyze", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterUnregisteredRoutes(t *testing.T) {
	r := NewRouter(RouterConfig{Mode: gin.TestMode})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/prescriptions/analyze", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
