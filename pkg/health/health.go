// Package health implements liveness and readiness probes for the chat
// server.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the result of probing one dependency.
type Check struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// CheckFunc probes one dependency. It must respect ctx.
type CheckFunc func(ctx context.Context) *Check

// Response is the probe endpoint payload.
type Response struct {
	Status    Status            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	UptimeSec int64             `json:"uptime_seconds"`
	Checks    map[string]*Check `json:"checks,omitempty"`
}

// HealthChecker aggregates dependency probes behind /healthz and /readyz.
// Liveness reports only process health; readiness additionally requires every
// registered dependency to pass and the ready flag to be set after startup.
type HealthChecker struct {
	serviceName    string
	serviceVersion string
	startTime      time.Time
	timeout        time.Duration
	logger         *slog.Logger

	mu           sync.RWMutex
	dependencies map[string]CheckFunc
	ready        bool
}

// NewHealthChecker creates a checker for the named service.
func NewHealthChecker(serviceName, serviceVersion string) *HealthChecker {
	return &HealthChecker{
		serviceName:    serviceName,
		serviceVersion: serviceVersion,
		startTime:      time.Now(),
		timeout:        5 * time.Second,
		logger:         slog.Default().With("component", "health-checker"),
		dependencies:   make(map[string]CheckFunc),
	}
}

// RegisterDependency adds a readiness probe under name, replacing any
// previous probe with the same name.
func (hc *HealthChecker) RegisterDependency(name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.dependencies[name] = check
}

// SetReady flips the readiness gate, typically once startup wiring is
// complete.
func (hc *HealthChecker) SetReady(ready bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.ready = ready
}

// IsReady reports the readiness gate without running dependency probes.
func (hc *HealthChecker) IsReady() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.ready
}

// HealthzHandler serves liveness: 200 whenever the process can respond.
func (hc *HealthChecker) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	hc.writeResponse(w, http.StatusOK, &Response{
		Status:    StatusHealthy,
		Service:   hc.serviceName,
		Version:   hc.serviceVersion,
		UptimeSec: int64(time.Since(hc.startTime).Seconds()),
	})
}

// ReadyzHandler serves readiness: 200 only when startup completed and every
// dependency probe passes, 503 otherwise.
func (hc *HealthChecker) ReadyzHandler(w http.ResponseWriter, r *http.Request) {
	response := &Response{
		Status:    StatusHealthy,
		Service:   hc.serviceName,
		Version:   hc.serviceVersion,
		UptimeSec: int64(time.Since(hc.startTime).Seconds()),
		Checks:    make(map[string]*Check),
	}

	if !hc.IsReady() {
		response.Status = StatusUnhealthy
		hc.writeResponse(w, http.StatusServiceUnavailable, response)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), hc.timeout)
	defer cancel()

	hc.mu.RLock()
	dependencies := make(map[string]CheckFunc, len(hc.dependencies))
	for name, check := range hc.dependencies {
		dependencies[name] = check
	}
	hc.mu.RUnlock()

	status := http.StatusOK
	for name, check := range dependencies {
		result := check(ctx)
		response.Checks[name] = result
		if result.Status != StatusHealthy {
			hc.logger.Warn("Dependency check failed", "dependency", name, "message", result.Message)
			response.Status = StatusUnhealthy
			status = http.StatusServiceUnavailable
		}
	}

	hc.writeResponse(w, status, response)
}

func (hc *HealthChecker) writeResponse(w http.ResponseWriter, status int, response *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		hc.logger.Error("Failed to encode health response", "error", err)
	}
}
