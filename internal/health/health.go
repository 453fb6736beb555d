// Package health performs active liveness checks against the upstream
// provider, independent of request traffic.
package health

import (
	"context"
	"errors"
	"time"

	"modelgate/internal/core"
	"modelgate/internal/upstream"
)

// Dependency states
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Status is the overall health report.
type Status struct {
	Status    string                   `json:"status"`
	Services  map[string]ServiceStatus `json:"services"`
	Timestamp time.Time                `json:"timestamp"`
}

// ServiceStatus reports one probed dependency.
type ServiceStatus struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Probe checks the upstream provider with a short bounded request.
type Probe struct {
	client  *upstream.Client
	timeout time.Duration
}

// New creates a probe using the model catalog as the lightweight check.
func New(client *upstream.Client, timeout time.Duration) *Probe {
	return &Probe{client: client, timeout: timeout}
}

// Check runs one probe. Overall health is a pure function of the probed
// dependencies; in-flight request state is never consulted.
func (p *Probe) Check(ctx context.Context) *Status {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	_, err := p.client.ListModels(ctx)
	latency := time.Since(start)

	svc := ServiceStatus{
		Status:    StatusHealthy,
		LatencyMS: latency.Milliseconds(),
	}
	if err != nil {
		svc.Status = StatusUnhealthy
		svc.Error = causeString(err)
	}

	status := &Status{
		Status:    StatusHealthy,
		Services:  map[string]ServiceStatus{"upstream": svc},
		Timestamp: time.Now().UTC(),
	}
	for _, s := range status.Services {
		if s.Status != StatusHealthy {
			status.Status = StatusUnhealthy
		}
	}
	return status
}

// Healthy reports whether every probed dependency is healthy.
func (s *Status) Healthy() bool {
	return s.Status == StatusHealthy
}

// causeString normalizes a probe failure into a short cause.
func causeString(err error) string {
	var gwErr *core.GatewayError
	if errors.As(err, &gwErr) {
		if gwErr.Code != "" {
			return gwErr.Code
		}
		return string(gwErr.Type)
	}
	return err.Error()
}
