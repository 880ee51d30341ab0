// Package health provides the HTTP ops surface for a running squad net:
// liveness and readiness probes plus a status endpoint summarising the tool
// federation.
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz: readiness probe; returns 200 only when all registered
//     [Checker] functions pass.
//   - /statusz: JSON summary of channel depth and per-server breaker state.
//
// Probe responses are JSON objects with a top-level "status" field ("ok" or
// "fail") and a "checks" map containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/squadnet-ai/squadnet/internal/mcp"
	"github.com/squadnet-ai/squadnet/internal/resilience"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short, human-readable label for this check (e.g. "store",
	// "tools"). It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// CheckStore probes session persistence. pinger is typically the snapshot
// store's Ping method.
func CheckStore(pinger func(ctx context.Context) error) Checker {
	return Checker{
		Name: "store",
		Check: func(ctx context.Context) error {
			if pinger == nil {
				return nil // persistence disabled, nothing to fail
			}
			return pinger(ctx)
		},
	}
}

// CheckTools reports the tool federation unhealthy when every server's
// breaker is open. Partial degradation still counts as ready; agents can
// operate on the remaining capabilities.
func CheckTools(host mcp.Host) Checker {
	return Checker{
		Name: "tools",
		Check: func(context.Context) error {
			stats := host.BreakerStats()
			if len(stats) == 0 {
				return nil // no servers configured
			}
			open := 0
			for _, st := range stats {
				if st.State == resilience.StateOpen {
					open++
				}
			}
			if open == len(stats) {
				return fmt.Errorf("all %d tool servers isolated", open)
			}
			return nil
		},
	}
}

// probeResult is the JSON response body for the probe endpoints.
type probeResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// statusResult is the JSON response body for /statusz.
type statusResult struct {
	SessionID string         `json:"session_id"`
	Messages  int            `json:"messages"`
	Servers   []serverStatus `json:"servers"`
}

type serverStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"consecutive_failures"`
}

// Handler serves the ops endpoints. It is safe for concurrent use; the
// checker list is fixed at construction time.
type Handler struct {
	sessionID string
	depth     func() int
	host      mcp.Host
	checkers  []Checker
}

// New creates a [Handler]. depth reports the current channel length; host
// supplies breaker state for /statusz.
func New(sessionID string, depth func() int, host mcp.Host, checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{sessionID: sessionID, depth: depth, host: host, checkers: c}
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probeResult{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes. Each checker is given a context with a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := probeResult{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Statusz summarises the running net: session, channel depth, and the state
// of each tool server's breaker.
func (h *Handler) Statusz(w http.ResponseWriter, _ *http.Request) {
	res := statusResult{
		SessionID: h.sessionID,
		Messages:  h.depth(),
		Servers:   []serverStatus{},
	}
	for _, st := range h.host.BreakerStats() {
		res.Servers = append(res.Servers, serverStatus{
			Name:     st.Name,
			State:    string(st.State),
			Failures: st.ConsecutiveFailures,
		})
	}
	writeJSON(w, http.StatusOK, res)
}

// Register adds the ops routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /statusz", h.Statusz)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
