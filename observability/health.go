package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// HealthStatus is the outcome of a health check.
type HealthStatus string

const (
	// HealthStatusHealthy means the component works.
	HealthStatusHealthy HealthStatus = "healthy"
	// HealthStatusDegraded means the component works with problems.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusUnhealthy means the component does not work.
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is a named probe. When TTL is non-zero the result is reused
// until it expires.
type HealthCheck struct {
	Name  string
	Check func(context.Context) HealthCheckResult
	TTL   time.Duration
}

// HealthCheckResult is the outcome of one probe.
type HealthCheckResult struct {
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// NamedResult pairs a probe name with its result.
type NamedResult struct {
	Name string
	HealthCheckResult
}

// HealthChecker runs registered probes concurrently.
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]HealthCheck
	cache  map[string]cachedHealthResult
}

type cachedHealthResult struct {
	result    HealthCheckResult
	timestamp time.Time
}

// NewHealthChecker creates an empty health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheck),
		cache:  make(map[string]cachedHealthResult),
	}
}

// Register adds a probe, replacing any probe with the same name.
func (hc *HealthChecker) Register(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name] = check
	delete(hc.cache, check.Name)
}

// Check runs every probe and returns results sorted by name.
func (hc *HealthChecker) Check(ctx context.Context) []NamedResult {
	hc.mu.RLock()
	checks := make([]HealthCheck, 0, len(hc.checks))
	for _, check := range hc.checks {
		checks = append(checks, check)
	}
	hc.mu.RUnlock()

	results := make([]NamedResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, c HealthCheck) {
			defer wg.Done()
			results[i] = NamedResult{Name: c.Name, HealthCheckResult: hc.run(ctx, c)}
		}(i, check)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

func (hc *HealthChecker) run(ctx context.Context, check HealthCheck) HealthCheckResult {
	if check.TTL > 0 {
		hc.mu.RLock()
		cached, ok := hc.cache[check.Name]
		hc.mu.RUnlock()
		if ok && time.Since(cached.timestamp) < check.TTL {
			return cached.result
		}
	}

	result := check.Check(ctx)

	if check.TTL > 0 {
		hc.mu.Lock()
		hc.cache[check.Name] = cachedHealthResult{result: result, timestamp: time.Now()}
		hc.mu.Unlock()
	}
	return result
}

// Overall folds results into one status: any unhealthy wins, then degraded.
func Overall(results []NamedResult) HealthStatus {
	status := HealthStatusHealthy
	for _, r := range results {
		switch r.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}

// Handler serves the aggregate health as JSON. Unhealthy maps to 503.
func (hc *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := hc.Check(r.Context())
		overall := Overall(results)

		checks := make(map[string]HealthCheckResult, len(results))
		for _, res := range results {
			checks[res.Name] = res.HealthCheckResult
		}

		w.Header().Set("Content-Type", "application/json")
		if overall == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": overall,
			"checks": checks,
		})
	}
}

// RegistryHealthCheck pings {registry}/-/ping. Server errors degrade,
// transport failures are unhealthy.
func RegistryHealthCheck(registry string, client *http.Client, timeout time.Duration) HealthCheck {
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimRight(registry, "/") + "/-/ping"

	return HealthCheck{
		Name: "registry",
		TTL:  30 * time.Second,
		Check: func(ctx context.Context) HealthCheckResult {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return HealthCheckResult{Status: HealthStatusUnhealthy, Message: "invalid registry URL: " + err.Error()}
			}

			start := time.Now()
			resp, err := client.Do(req)
			if err != nil {
				return HealthCheckResult{Status: HealthStatusUnhealthy, Message: "request failed: " + err.Error()}
			}
			_ = resp.Body.Close()

			details := map[string]string{
				"url":     url,
				"status":  resp.Status,
				"latency": time.Since(start).Round(time.Millisecond).String(),
			}
			if resp.StatusCode >= 500 {
				return HealthCheckResult{Status: HealthStatusDegraded, Message: "registry error", Details: details}
			}
			return HealthCheckResult{Status: HealthStatusHealthy, Message: "registry reachable", Details: details}
		},
	}
}

// DirectoryWritableCheck verifies dir exists (or can be created) and accepts
// a new file.
func DirectoryWritableCheck(name, dir string) HealthCheck {
	return HealthCheck{
		Name: name,
		Check: func(ctx context.Context) HealthCheckResult {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return HealthCheckResult{Status: HealthStatusUnhealthy, Message: err.Error()}
			}

			f, err := os.CreateTemp(dir, ".gonpm-probe-*")
			if err != nil {
				return HealthCheckResult{Status: HealthStatusUnhealthy, Message: fmt.Sprintf("not writable: %v", err)}
			}
			probe := f.Name()
			_ = f.Close()
			_ = os.Remove(probe)

			abs, _ := filepath.Abs(dir)
			return HealthCheckResult{
				Status:  HealthStatusHealthy,
				Message: "writable",
				Details: map[string]string{"path": abs},
			}
		},
	}
}
