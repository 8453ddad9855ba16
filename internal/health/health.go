// Package health provides liveness and readiness endpoints for the
// exporter process. Readiness checks database connectivity; liveness
// only proves the HTTP server is serving.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency"`
}

// Report is the overall health report.
type Report struct {
	Status     Status            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components []ComponentHealth `json:"components"`
}

// Pinger is the connectivity probe the checker runs against the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker performs health checks against the exporter's one backend.
type Checker struct {
	pinger Pinger
}

// NewChecker creates a health checker over the database client.
func NewChecker(p Pinger) *Checker {
	return &Checker{pinger: p}
}

// Check probes the database and returns a report.
func (c *Checker) Check(ctx context.Context) *Report {
	report := &Report{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := c.pinger.Ping(ctx)
	latency := time.Since(start)

	comp := ComponentHealth{
		Name:    "postgres",
		Status:  StatusHealthy,
		Message: "connected",
		Latency: latency.String(),
	}
	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Message = err.Error()
		report.Status = StatusUnhealthy
	}
	report.Components = []ComponentHealth{comp}

	return report
}

// Register mounts the health endpoints on the given mux.
func (c *Checker) Register(mux *http.ServeMux) {
	report := func(w http.ResponseWriter, r *http.Request) {
		rep := c.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if rep.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(rep)
	}

	mux.HandleFunc("/health", report)
	mux.HandleFunc("/health/ready", report)

	mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
}
