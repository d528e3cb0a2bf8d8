package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/piwi3910/nfvacct/internal/observability"
)

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/ready", s.handleReadiness)
	s.router.GET("/readyz", s.handleReadiness)

	if s.config.Observability.Metrics.Enabled {
		s.router.GET(s.metricsPath(), gin.WrapH(promhttp.Handler()))
	}

	s.router.GET("/", s.handleRoot)
}

func (s *Server) metricsPath() string {
	if p := s.config.Observability.Metrics.Path; p != "" {
		return p
	}
	return "/metrics"
}

func (s *Server) handleHealth(c *gin.Context) {
	health := s.healthCheck.CheckHealth(c.Request.Context())

	statusCode := http.StatusOK
	if health.Status == observability.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

func (s *Server) handleReadiness(c *gin.Context) {
	readiness := s.healthCheck.CheckReadiness(c.Request.Context())

	statusCode := http.StatusOK
	if !readiness.Ready {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, readiness)
}

func (s *Server) handleRoot(c *gin.Context) {
	endpoints := gin.H{
		"health": "/healthz",
		"ready":  "/readyz",
	}
	if s.config.Observability.Metrics.Enabled {
		endpoints["metrics"] = s.metricsPath()
	}

	c.JSON(http.StatusOK, gin.H{
		"name":        "nfvacct",
		"version":     s.version,
		"description": "OSM accounting reconciler",
		"endpoints":   endpoints,
	})
}
