package observability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy HealthStatus = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) error

// ComponentHealth represents the health status of a single component.
type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Error   string       `json:"error,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// HealthResponse represents the overall health check response.
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ReadinessResponse represents the readiness check response.
type ReadinessResponse struct {
	Ready      bool                       `json:"ready"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthChecker manages health and readiness checks.
// Health covers local dependencies (database, redis); readiness additionally
// covers the remote services a reconciliation needs.
type HealthChecker struct {
	mu              sync.RWMutex
	healthChecks    map[string]HealthCheck
	readinessChecks map[string]HealthCheck
	version         string
	timeout         time.Duration
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		healthChecks:    make(map[string]HealthCheck),
		readinessChecks: make(map[string]HealthCheck),
		version:         version,
		timeout:         5 * time.Second,
	}
}

// RegisterHealthCheck registers a health check for a component.
func (hc *HealthChecker) RegisterHealthCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.healthChecks[name] = check
}

// RegisterReadinessCheck registers a readiness check for a component.
func (hc *HealthChecker) RegisterReadinessCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.readinessChecks[name] = check
}

// SetTimeout sets the timeout for a round of checks.
func (hc *HealthChecker) SetTimeout(timeout time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.timeout = timeout
}

// CheckHealth performs all health checks and returns the health status.
func (hc *HealthChecker) CheckHealth(ctx context.Context) *HealthResponse {
	checks, timeout := hc.snapshot(hc.healthChecks)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components := executeChecks(ctx, checks)

	overall := StatusHealthy
	for _, component := range components {
		if component.Status == StatusUnhealthy {
			overall = StatusUnhealthy
			break
		}
	}

	return &HealthResponse{
		Status:     overall,
		Timestamp:  time.Now(),
		Version:    hc.version,
		Components: components,
	}
}

// CheckReadiness runs health and readiness checks; all must pass.
func (hc *HealthChecker) CheckReadiness(ctx context.Context) *ReadinessResponse {
	checks, timeout := hc.snapshot(hc.healthChecks, hc.readinessChecks)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components := executeChecks(ctx, checks)

	ready := true
	for _, component := range components {
		if component.Status != StatusHealthy {
			ready = false
			break
		}
	}

	return &ReadinessResponse{
		Ready:      ready,
		Timestamp:  time.Now(),
		Components: components,
	}
}

func (hc *HealthChecker) snapshot(sets ...map[string]HealthCheck) (map[string]HealthCheck, time.Duration) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	checks := make(map[string]HealthCheck)
	for _, set := range sets {
		for name, check := range set {
			checks[name] = check
		}
	}
	return checks, hc.timeout
}

// executeChecks runs checks concurrently and collects their results.
func executeChecks(ctx context.Context, checks map[string]HealthCheck) map[string]ComponentHealth {
	components := make(map[string]ComponentHealth, len(checks))
	if len(checks) == 0 {
		return components
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()

			start := time.Now()
			err := check(ctx)

			health := ComponentHealth{
				Status:  StatusHealthy,
				Latency: time.Since(start).String(),
			}
			if err != nil {
				health.Status = StatusUnhealthy
				health.Error = err.Error()
				if ctx.Err() != nil {
					health.Error = "check timed out"
				}
			}

			mu.Lock()
			components[name] = health
			mu.Unlock()
		}(name, check)
	}

	wg.Wait()
	return components
}

// PingCheck wraps a ping function, failing when it was not provided.
func PingCheck(name string, ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) error {
		if ping == nil {
			return fmt.Errorf("%s ping function not provided", name)
		}
		return ping(ctx)
	}
}
