package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const defaultCheckTimeout = 5 * time.Second

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

type dependency struct {
	name     string
	check    CheckFunc
	optional bool
}

// HealthChecker reports liveness and the readiness of the dependencies the
// server needs. A failing required dependency makes the server unhealthy; a
// failing optional one only degrades it.
type HealthChecker struct {
	version string
	timeout time.Duration

	mu   sync.RWMutex
	deps []dependency
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHealthChecker creates a checker reporting version
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{version: version, timeout: defaultCheckTimeout}
}

// AddCheck registers a dependency probe
func (h *HealthChecker) AddCheck(name string, check CheckFunc, optional bool) *HealthChecker {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deps = append(h.deps, dependency{name: name, check: check, optional: optional})
	return h
}

// AddRedis registers an optional PING probe against client
func (h *HealthChecker) AddRedis(client redis.UniversalClient) *HealthChecker {
	return h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, true)
}

// Check runs every probe and folds the results into one status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	deps := append([]dependency(nil), h.deps...)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(deps)),
	}
	for _, dep := range deps {
		ds := probe(ctx, dep.check)
		status.Dependencies[dep.name] = ds
		if ds.Status == StatusHealthy {
			continue
		}
		if !dep.optional {
			status.Status = StatusUnhealthy
		} else if status.Status == StatusHealthy {
			status.Status = StatusDegraded
		}
	}
	return status
}

func probe(ctx context.Context, check CheckFunc) DependencyStatus {
	start := time.Now()
	err := check(ctx)
	ds := DependencyStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: start,
	}
	if err != nil {
		ds.Status = StatusUnhealthy
		ds.Message = err.Error()
	}
	return ds
}

// Liveness answers 200 while the process serves requests
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness answers 503 when a required dependency is down and 200 otherwise
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
