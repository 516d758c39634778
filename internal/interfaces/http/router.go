// Package http wires the gin route tree and the HTTP server.
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/logging"
	"github.com/dosewise/rxlens/internal/interfaces/http/handlers"
	"github.com/dosewise/rxlens/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and infrastructure the route tree
// needs.  PrescriptionHandler and Logger are required; nil optional handlers
// leave their routes unregistered.
type RouterConfig struct {
	PrescriptionHandler *handlers.PrescriptionHandler
	RecordsHandler      *handlers.RecordsHandler
	HealthHandler       *handlers.HealthHandler

	Logger         logging.Logger
	MetricsReg     *prometheus.Registry
	MetricsPath    string
	Mode           string // gin mode: "debug" | "release" | "test"
	MaxBodySize    int64
	AllowedOrigins []string
}

// NewRouter builds the complete route tree.
func NewRouter(cfg RouterConfig) *gin.Engine {
	mode := cfg.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger))
	}
	if cfg.MaxBodySize > 0 {
		r.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsReg != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.HandlerFor(cfg.MetricsReg, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")
	if cfg.PrescriptionHandler != nil {
		api.POST("/prescriptions/analyze", cfg.PrescriptionHandler.Analyze)
		api.POST("/prescriptions/confirm", cfg.PrescriptionHandler.Confirm)
		api.DELETE("/prescriptions/:hash/cache", cfg.PrescriptionHandler.InvalidateCache)
	}
	if cfg.RecordsHandler != nil {
		api.GET("/prescriptions/:hash/records", cfg.RecordsHandler.ListByImageHash)
	}
	return r
}
