// health.go - Health monitoring for the controller
package main

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a specific component
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message"`
	LastCheck time.Time     `json:"last_check"`
	Latency   time.Duration `json:"latency,omitempty"`
}

// SystemHealth represents the overall system health
type SystemHealth struct {
	OverallStatus HealthStatus      `json:"overall_status"`
	Timestamp     time.Time         `json:"timestamp"`
	Components    []ComponentHealth `json:"components"`
	Uptime        time.Duration     `json:"uptime"`
	Version       string            `json:"version"`
}

// Checker tests one dependency. A nil error means healthy.
type Checker func(ctx context.Context) error

type component struct {
	check    Checker
	critical bool
}

// HealthChecker runs the registered component checks on demand.
type HealthChecker struct {
	mu         sync.Mutex
	components map[string]component
	startTime  time.Time
	version    string
	timeout    time.Duration
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(version string, timeout time.Duration) *HealthChecker {
	return &HealthChecker{
		components: make(map[string]component),
		startTime:  time.Now(),
		version:    version,
		timeout:    timeout,
	}
}

// RegisterComponent registers a check. A failing critical component makes the
// whole system unhealthy; any other failure only degrades it.
func (hc *HealthChecker) RegisterComponent(name string, critical bool, check Checker) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.components[name] = component{check: check, critical: critical}
}

// CheckHealth performs health checks for all registered components
func (hc *HealthChecker) CheckHealth(ctx context.Context) *SystemHealth {
	hc.mu.Lock()
	names := make([]string, 0, len(hc.components))
	for name := range hc.components {
		names = append(names, name)
	}
	comps := make(map[string]component, len(hc.components))
	for k, v := range hc.components {
		comps[k] = v
	}
	hc.mu.Unlock()
	sort.Strings(names)

	overall := Healthy
	results := make([]ComponentHealth, 0, len(names))
	for _, name := range names {
		comp := comps[name]
		cctx, cancel := context.WithTimeout(ctx, hc.timeout)
		start := time.Now()
		err := comp.check(cctx)
		cancel()

		res := ComponentHealth{
			Name:      name,
			Status:    Healthy,
			Message:   "OK",
			LastCheck: time.Now(),
			Latency:   time.Since(start),
		}
		if err != nil {
			res.Message = err.Error()
			res.Status = Degraded
			if comp.critical {
				res.Status = Unhealthy
			}
		}

		if res.Status == Unhealthy {
			overall = Unhealthy
		} else if res.Status == Degraded && overall == Healthy {
			overall = Degraded
		}
		results = append(results, res)
	}

	return &SystemHealth{
		OverallStatus: overall,
		Timestamp:     time.Now(),
		Components:    results,
		Uptime:        time.Since(hc.startTime),
		Version:       hc.version,
	}
}

// HealthCheckResponse represents the response format for health check endpoints
type HealthCheckResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// CreateHealthResponse creates a standardized health check response
func CreateHealthResponse(health *SystemHealth) *HealthCheckResponse {
	status := "success"
	message := "System is healthy"

	if health.OverallStatus == Unhealthy {
		status = "error"
		message = "System is unhealthy"
	} else if health.OverallStatus == Degraded {
		status = "warning"
		message = "System is degraded"
	}

	return &HealthCheckResponse{
		Status:  status,
		Message: message,
		Data:    health,
	}
}

// Handler serves GET /health. Unhealthy answers 503 so load balancers drop the node.
func (hc *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.CheckHealth(c.Request.Context())
		code := http.StatusOK
		if health.OverallStatus == Unhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, CreateHealthResponse(health))
	}
}
