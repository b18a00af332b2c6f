package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// healthCheckTimeout is the maximum time allowed for all health checks to complete.
// If any check exceeds this deadline, the health check returns 503 Service Unavailable.
const healthCheckTimeout = 2 * time.Second

// HealthCheck defines the interface for a subsystem health check.
// Each check represents an upstream the service needs to answer chats.
type HealthCheck interface {
	// Name returns a human-readable identifier for the check (e.g., "llm").
	Name() string

	// Check performs the health check against the subsystem.
	// It should respect the context deadline and return an error if the subsystem
	// is unhealthy or unreachable.
	Check(ctx context.Context) error
}

// componentStatus represents the health state of a single subsystem.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the JSON response body for the health check endpoint.
type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth executes all registered health checks concurrently with a short timeout.
// Returns 200 OK if all checks report healthy, 503 Service Unavailable if any
// critical subsystem fails or if the global timeout is exceeded.
//
// The handler creates a context with a 2-second deadline derived from the request
// context. Each check executes independently in its own goroutine to minimize
// total health check latency.
//
// This endpoint is public and is mounted at GET /health, outside the session
// middleware so load balancer checks never create sessions.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := s.HealthChecks
	if len(checks) == 0 {
		// No checks registered: report healthy with no component details.
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	type checkResult struct {
		name string
		err  error
	}

	var (
		mu      sync.Mutex
		results = make([]checkResult, 0, len(checks))
		wg      sync.WaitGroup
	)

	for _, check := range checks {
		wg.Add(1)
		go func(p HealthCheck) {
			defer wg.Done()

			var err error
			func() {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("check panicked: %v", r)
					}
				}()
				err = p.Check(ctx)
			}()

			mu.Lock()
			results = append(results, checkResult{name: p.Name(), err: err})
			mu.Unlock()
		}(check)
	}

	// Wait for all checks to complete or context to expire.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// All checks completed within the timeout.
	case <-ctx.Done():
		// Timeout expired before all checks completed. Build a partial response
		// with whatever results we have. Missing checks are marked as timed out.
	}

	// Build the response from collected results.
	mu.Lock()
	collectedResults := make([]checkResult, len(results))
	copy(collectedResults, results)
	mu.Unlock()

	// Create a lookup of completed checks.
	completed := make(map[string]checkResult, len(collectedResults))
	for _, r := range collectedResults {
		completed[r.name] = r
	}

	components := make(map[string]componentStatus, len(checks))
	allHealthy := true

	for _, check := range checks {
		name := check.Name()
		if result, ok := completed[name]; ok {
			if result.err != nil {
				allHealthy = false
				components[name] = componentStatus{
					Status:  "unhealthy",
					Message: result.err.Error(),
				}
			} else {
				components[name] = componentStatus{
					Status: "healthy",
				}
			}
		} else {
			// Check did not complete before timeout.
			allHealthy = false
			components[name] = componentStatus{
				Status:  "unhealthy",
				Message: "health check timed out",
			}
		}
	}

	resp := healthResponse{
		Components: components,
	}

	if allHealthy {
		resp.Status = "healthy"
		JSON(w, r, http.StatusOK, resp)
	} else {
		resp.Status = "unhealthy"
		JSON(w, r, http.StatusServiceUnavailable, resp)
	}
}

// BreakerSource is any outbound client guarded by a circuit breaker.
type BreakerSource interface {
	Name() string
	State() gobreaker.State
}

// BreakerCheck reports a dependency unhealthy while its circuit is open. It
// never calls the upstream.
type BreakerCheck struct {
	Source BreakerSource
}

// Name returns the breaker name.
func (p BreakerCheck) Name() string { return p.Source.Name() }

// Check fails while the breaker is open.
func (p BreakerCheck) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st := p.Source.State(); st == gobreaker.StateOpen {
		return fmt.Errorf("circuit %s", st)
	}
	return nil
}
