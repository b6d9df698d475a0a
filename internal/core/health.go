package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// readinessTimeout is the maximum time allowed for all readiness probes to
// complete. A probe exceeding the deadline marks the service not ready.
const readinessTimeout = 2 * time.Second

// HealthProbe is one subsystem readiness check. Each probe represents a
// dependency (database, collaborator) the sweeps cannot run without.
type HealthProbe interface {
	// Name returns a human-readable identifier for the probe
	// (e.g., "database", "agent").
	Name() string

	// Check performs the health check against the subsystem. It should
	// respect the context deadline and return an error if the subsystem
	// is unhealthy or unreachable.
	Check(ctx context.Context) error
}

// funcProbe adapts a plain function to the HealthProbe interface.
type funcProbe struct {
	name  string
	check func(ctx context.Context) error
}

func (p funcProbe) Name() string                    { return p.name }
func (p funcProbe) Check(ctx context.Context) error { return p.check(ctx) }

// NewProbe wraps a check function as a named HealthProbe, so main can
// register pool.Ping and client readiness functions without adapter types.
func NewProbe(name string, check func(ctx context.Context) error) HealthProbe {
	return funcProbe{name: name, check: check}
}

// componentStatus represents the health state of a single subsystem.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the JSON body for both health endpoints.
type healthResponse struct {
	Status     string                     `json:"status"`
	Service    string                     `json:"service,omitempty"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleLiveness reports that the process is up. It makes no dependency
// calls; a live process with a dead database is still live, and restarting
// it would not help. Mounted unauthenticated at GET /healthz.
func (s *Server) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, healthResponse{
		Status:  "ok",
		Service: s.Config.Service,
		Version: s.Config.Build.Version,
	})
}

// HandleReadiness executes all registered probes concurrently under a short
// timeout. Returns 200 if every probe reports healthy, 503 if any fails or
// the deadline expires first. Mounted unauthenticated at GET /readyz.
//
// Each probe runs in its own goroutine so one slow dependency does not
// serialize the rest; a probe that panics is reported unhealthy rather
// than taking the handler down.
func (s *Server) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "ready"})
		return
	}

	type probeResult struct {
		name string
		err  error
	}

	var (
		mu      sync.Mutex
		results = make([]probeResult, 0, len(probes))
		wg      sync.WaitGroup
	)

	for _, probe := range probes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()

			var err error
			func() {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("probe panicked: %v", r)
					}
				}()
				err = p.Check(ctx)
			}()

			mu.Lock()
			results = append(results, probeResult{name: p.Name(), err: err})
			mu.Unlock()
		}(probe)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// All probes completed within the timeout.
	case <-ctx.Done():
		// Deadline expired; report with whatever results arrived and mark
		// the missing probes timed out.
	}

	mu.Lock()
	completed := make(map[string]probeResult, len(results))
	for _, res := range results {
		completed[res.name] = res
	}
	mu.Unlock()

	components := make(map[string]componentStatus, len(probes))
	allReady := true

	for _, probe := range probes {
		name := probe.Name()
		result, ok := completed[name]
		switch {
		case !ok:
			allReady = false
			components[name] = componentStatus{
				Status:  "unhealthy",
				Message: "readiness check timed out",
			}
		case result.err != nil:
			allReady = false
			components[name] = componentStatus{
				Status:  "unhealthy",
				Message: result.err.Error(),
			}
		default:
			components[name] = componentStatus{Status: "healthy"}
		}
	}

	resp := healthResponse{Components: components}
	if allReady {
		resp.Status = "ready"
		JSON(w, r, http.StatusOK, resp)
		return
	}
	resp.Status = "not_ready"
	JSON(w, r, http.StatusServiceUnavailable, resp)
}
