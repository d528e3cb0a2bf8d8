// Package server provides the operational HTTP endpoint of nfvacct: health,
// readiness and Prometheus metrics. It serves no business API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/piwi3910/nfvacct/internal/config"
	"github.com/piwi3910/nfvacct/internal/observability"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nfvacct",
			Subsystem: "ops",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests to the ops server",
		},
		[]string{"method", "path", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nfvacct",
			Subsystem: "ops",
			Name:      "http_request_duration_seconds",
			Help:      "Ops server request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Server is the ops HTTP server.
//
// Routes:
//   - /healthz and /health: local dependencies (database, redis)
//   - /readyz and /ready: local dependencies plus OSM and the billing backend
//   - the configured metrics path (default /metrics)
type Server struct {
	config       *config.Config
	logger       *zap.Logger
	router       *gin.Engine
	httpServer   *http.Server
	healthCheck  *observability.HealthChecker
	version      string
	shutdownOnce sync.Once
}

// New creates a Server. It panics if cfg, logger or healthCheck is nil.
func New(cfg *config.Config, logger *zap.Logger, healthCheck *observability.HealthChecker, version string) *Server {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if healthCheck == nil {
		panic("health checker cannot be nil")
	}

	gin.SetMode(cfg.Server.GinMode)

	s := &Server{
		config:      cfg,
		logger:      logger.Named("ops"),
		router:      gin.New(),
		healthCheck: healthCheck,
		version:     version,
	}

	s.router.Use(s.recoveryMiddleware(), s.loggingMiddleware(), s.metricsMiddleware())
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           s.router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	return s
}

// Router returns the underlying Gin router.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting ops server",
		zap.String("address", s.httpServer.Addr),
		zap.String("mode", s.config.Server.GinMode))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops server error: %w", err)
	}
	return nil
}

// Shutdown stops the server, waiting up to the configured shutdown timeout
// for in-flight requests. Only the first call has an effect.
func (s *Server) Shutdown() error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		timeout := s.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("ops server shutdown failed: %w", err)
			return
		}
		s.logger.Info("ops server stopped")
	})

	return shutdownErr
}

// recoveryMiddleware recovers from panics and logs the error.
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path))

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests at debug; probes hit these routes constantly.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug("HTTP request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		requestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
