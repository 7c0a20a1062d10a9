// Package server exposes the analysis coordinator over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/rcliao/remote-engine/internal/coordinator"
	"github.com/rcliao/remote-engine/internal/model"
	"github.com/rcliao/remote-engine/internal/store"
)

// Analyzer is the coordinator surface the handlers use.
type Analyzer interface {
	Analyse(ctx context.Context, req coordinator.Request) (*coordinator.Analysis, error)
	Configure(ctx context.Context, values map[string]any) (map[string]any, error)
	Config(ctx context.Context) map[string]any
	Generation() uint64
}

// History is the part of the history store the handlers use.
type History interface {
	Record(ctx context.Context, p store.RecordParams) (*model.Analysis, error)
	Get(ctx context.Context, id string) (*model.Analysis, error)
	List(ctx context.Context, p store.ListParams) ([]model.Analysis, error)
}

// Config wires the server's collaborators. Analyzer is required; History and
// Gatherer enable the history and metrics routes.
type Config struct {
	Analyzer   Analyzer
	History    History
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
	EngineName string
}

// Headers set on every /analyse response.
const (
	HeaderGeneration = "X-Analysis-Generation"
	HeaderSuperseded = "X-Analysis-Superseded"
)

// New builds the router.
func New(cfg Config) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("remote-engine"))
	router.Use(requestLogger(cfg.Logger))
	router.Use(cors())

	h := &handlers{
		analyzer: cfg.Analyzer,
		history:  cfg.History,
		log:      cfg.Logger,
		engine:   cfg.EngineName,
	}
	router.POST("/analyse", h.handleAnalyse)
	router.POST("/configure", h.handleConfigure)
	router.GET("/config", h.handleConfig)
	router.GET("/health", h.handleHealth)

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	if cfg.History != nil {
		router.GET("/history", h.handleHistoryList)
		router.GET("/history/:id", h.handleHistoryGet)
	}
	return router
}

// cors allows any origin; the main client is a browser extension.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Header("Access-Control-Expose-Headers", HeaderGeneration+", "+HeaderSuperseded)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}
