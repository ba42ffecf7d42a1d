// Package health serves the liveness and readiness probes.
//
//   - /healthz — liveness; a process that can answer HTTP is alive.
//   - /readyz  — readiness; 200 only while every registered [Checker]
//     passes. The app registers the database ping and a session store
//     probe here.
//
// Bodies are JSON with a top-level "status" ("ok" or "fail") and, on
// /readyz, a "checks" map with one entry per named probe.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness probe.
const probeTimeout = 5 * time.Second

// Checker is one named readiness probe. Check returns nil while the
// dependency can serve calls and must respect context cancellation.
type Checker struct {
	// Name keys the probe's entry in the /readyz body ("database",
	// "sessions").
	Name string

	Check func(ctx context.Context) error
}

// report is the JSON body both probes answer with.
type report struct {
	Status  string            `json:"status"`
	Service string            `json:"service,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction, so Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New builds a Handler that runs the given checkers, in order, on each
// /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok", Service: "applicall"})
}

// Readyz runs every checker under a [probeTimeout] deadline derived from the
// request context and answers 503 as soon as any of them reports a failure.
// Failed probes carry the error text in their checks entry.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	body := report{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		body.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

// Register adds both probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
