package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// HealthResponse is the JSON response for the liveness endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// ReadinessResponse is the JSON response for the readiness endpoint.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckResult is the result of a single readiness check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadinessChecks holds the dependency checkers for the readiness endpoint.
type ReadinessChecks struct {
	// DefinitionsLoaded is always consulted.
	DefinitionsLoaded func() bool

	// Optional checks, run only if non-nil.
	RecordStore   HealthChecker
	NotifierQueue HealthChecker
}

const checkTimeout = 2 * time.Second

// HandleHealth returns an HTTP handler for the liveness endpoint.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(HealthResponse{
			Status:  "ok",
			Version: Version,
			Commit:  Commit,
		})
	}
}

// HandleReady returns an HTTP handler for the readiness endpoint. Dependency
// checks run concurrently with a bounded timeout; any failure flips the
// response to 503.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := make(map[string]CheckResult)
		var mu sync.Mutex
		var wg sync.WaitGroup

		record := func(name string, result CheckResult) {
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}

		if checks.DefinitionsLoaded != nil {
			if checks.DefinitionsLoaded() {
				record("definitions", CheckResult{Status: "ok"})
			} else {
				record("definitions", CheckResult{Status: "failed", Error: "no definitions loaded"})
			}
		}

		runCheck := func(name string, hc HealthChecker) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()

			start := time.Now()
			err := hc.HealthCheck(ctx)
			latency := time.Since(start).Milliseconds()
			if err != nil {
				record(name, CheckResult{Status: "failed", LatencyMs: latency, Error: err.Error()})
				return
			}
			record(name, CheckResult{Status: "ok", LatencyMs: latency})
		}

		if checks.RecordStore != nil {
			wg.Add(1)
			go runCheck("record_store", checks.RecordStore)
		}
		if checks.NotifierQueue != nil {
			wg.Add(1)
			go runCheck("notifier_queue", checks.NotifierQueue)
		}
		wg.Wait()

		status := "ready"
		httpStatus := http.StatusOK
		for _, res := range results {
			if res.Status != "ok" {
				status = "not_ready"
				httpStatus = http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(httpStatus)
		json.NewEncoder(w).Encode(ReadinessResponse{Status: status, Checks: results})
	}
}
