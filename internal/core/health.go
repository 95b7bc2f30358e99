package core

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// healthCheckTimeout bounds all health checks together.
const healthCheckTimeout = 2 * time.Second

// HealthCheck checks one dependency the service cannot work without.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// PingCheck adapts a ping function, such as a pgx pool's Ping or a Redis
// client's Ping(ctx).Err, to HealthCheck.
type PingCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingCheck creates a PingCheck.
func NewPingCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{name: name, ping: ping}
}

// Name returns the component name reported by /health.
func (p *PingCheck) Name() string { return p.name }

// Check pings the dependency.
func (p *PingCheck) Check(ctx context.Context) error { return p.ping(ctx) }

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

type checkResult struct {
	name string
	err  error
}

func runCheck(ctx context.Context, p HealthCheck) (res checkResult) {
	res.name = p.Name()
	defer func() {
		if rvr := recover(); rvr != nil {
			res.err = fmt.Errorf("check panicked: %v", rvr)
		}
	}()
	res.err = p.Check(ctx)
	return res
}

// HandleHealth runs every check concurrently under a 2 second deadline. It
// answers 200 when all are healthy and 503 otherwise; a check that has not
// answered by the deadline counts as unhealthy.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}
	if len(s.HealthChecks) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	// Buffered so stragglers can finish after the handler returns.
	results := make(chan checkResult, len(s.HealthChecks))
	resp.Components = make(map[string]componentStatus, len(s.HealthChecks))
	for _, p := range s.HealthChecks {
		resp.Components[p.Name()] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		go func() { results <- runCheck(ctx, p) }()
	}

	for pending := len(s.HealthChecks); pending > 0; pending-- {
		select {
		case res := <-results:
			if res.err != nil {
				resp.Components[res.name] = componentStatus{Status: "unhealthy", Message: res.err.Error()}
			} else {
				resp.Components[res.name] = componentStatus{Status: "healthy"}
			}
		case <-ctx.Done():
			pending = 0
		}
	}

	status := http.StatusOK
	for _, c := range resp.Components {
		if c.Status != "healthy" {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			break
		}
	}
	JSON(w, r, status, resp)
}
