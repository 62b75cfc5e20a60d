// Package health aggregates component health checks of the guidance service
// and serves them as HTTP liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// HealthCheck defines the interface for individual health checks.
// Each component can implement this interface to provide its health status.
type HealthCheck interface {
	// Name returns the unique name of this health check
	Name() string
	// Check performs the health check and returns an error if unhealthy
	Check(ctx context.Context) error
}

// HealthStatus represents the overall health status of the application.
type HealthStatus struct {
	Status string                     `json:"status"`
	Checks map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth represents the health status of an individual component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

const readinessTimeout = 2 * time.Second

// HealthChecker manages and executes health checks for the application.
type HealthChecker struct {
	checks map[string]HealthCheck
	mu     sync.RWMutex
}

// NewHealthChecker creates a new health checker instance.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheck),
	}
}

// AddCheck registers a new health check with the health checker.
// If a check with the same name already exists, it will be replaced.
func (hc *HealthChecker) AddCheck(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name()] = check
}

// RemoveCheck removes a health check by name.
func (hc *HealthChecker) RemoveCheck(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	delete(hc.checks, name)
}

// CheckHealth executes all registered health checks and returns the aggregated status.
// The overall status is "healthy" only if all individual checks pass.
func (hc *HealthChecker) CheckHealth(ctx context.Context) HealthStatus {
	hc.mu.RLock()
	checks := make([]HealthCheck, 0, len(hc.checks))
	for _, check := range hc.checks {
		checks = append(checks, check)
	}
	hc.mu.RUnlock()

	status := HealthStatus{
		Status: "healthy",
		Checks: make(map[string]ComponentHealth, len(checks)),
	}

	for _, check := range checks {
		if err := check.Check(ctx); err != nil {
			status.Status = "unhealthy"
			status.Checks[check.Name()] = ComponentHealth{
				Status:  "unhealthy",
				Message: err.Error(),
			}
			continue
		}
		status.Checks[check.Name()] = ComponentHealth{Status: "healthy"}
	}

	return status
}

// LivenessHandler answers 200 OK while the process can serve requests.
func (hc *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := map[string]string{"status": "alive"}
	json.NewEncoder(w).Encode(response)
}

// ReadinessHandler runs every check and answers 200 OK when all pass or
// 503 Service Unavailable otherwise.
func (hc *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	health := hc.CheckHealth(ctx)

	w.Header().Set("Content-Type", "application/json")

	if health.Status == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(health)
}

// Mux returns a handler serving /health (liveness) and /ready (readiness).
func (hc *HealthChecker) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hc.LivenessHandler)
	mux.HandleFunc("/ready", hc.ReadinessHandler)
	return mux
}

// ControlLoopHealthCheck implements HealthCheck for the guidance control loop.
type ControlLoopHealthCheck struct {
	running func() bool
}

// NewControlLoopHealthCheck creates a health check for the control loop.
func NewControlLoopHealthCheck(running func() bool) *ControlLoopHealthCheck {
	return &ControlLoopHealthCheck{
		running: running,
	}
}

// Name returns the name of this health check.
func (c *ControlLoopHealthCheck) Name() string {
	return "control_loop"
}

// Check verifies that the control loop is running.
func (c *ControlLoopHealthCheck) Check(ctx context.Context) error {
	if !c.running() {
		return fmt.Errorf("control loop is not running")
	}
	return nil
}

// BreakerSource exposes the state of a circuit breaker.
type BreakerSource interface {
	BreakerState() gobreaker.State
}

// AllocationHealthCheck implements HealthCheck for thrust allocation. It
// fails while the allocation circuit breaker is open.
type AllocationHealthCheck struct {
	source BreakerSource
}

// NewAllocationHealthCheck creates a health check for thrust allocation.
func NewAllocationHealthCheck(source BreakerSource) *AllocationHealthCheck {
	return &AllocationHealthCheck{source: source}
}

// Name returns the name of this health check.
func (a *AllocationHealthCheck) Name() string {
	return "allocation"
}

// Check verifies that allocation failures have not opened the breaker.
func (a *AllocationHealthCheck) Check(ctx context.Context) error {
	if state := a.source.BreakerState(); state == gobreaker.StateOpen {
		return fmt.Errorf("allocation circuit breaker is %s", state)
	}
	return nil
}

// MemoryHealthCheck implements HealthCheck for memory usage monitoring.
type MemoryHealthCheck struct {
	maxMemoryMB    int64
	getMemoryUsage func() int64
}

// NewMemoryHealthCheck creates a health check for memory usage. A nil
// getter reads the Go heap.
func NewMemoryHealthCheck(maxMemoryMB int64, getMemoryUsage func() int64) *MemoryHealthCheck {
	if getMemoryUsage == nil {
		getMemoryUsage = HeapAllocMB
	}
	return &MemoryHealthCheck{
		maxMemoryMB:    maxMemoryMB,
		getMemoryUsage: getMemoryUsage,
	}
}

// HeapAllocMB returns the allocated heap in MB.
func HeapAllocMB() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Alloc / 1024 / 1024)
}

// Name returns the name of this health check.
func (m *MemoryHealthCheck) Name() string {
	return "memory"
}

// Check verifies that memory usage is within acceptable limits.
func (m *MemoryHealthCheck) Check(ctx context.Context) error {
	currentMB := m.getMemoryUsage()
	if currentMB > m.maxMemoryMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB", currentMB, m.maxMemoryMB)
	}
	return nil
}
