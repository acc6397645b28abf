// Package handlers implements the HTTP handlers for the tailorbatch
// server: batch submission and polling, health, and version.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthChecker reports the health of one subsystem.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// healthManager tracks registered checkers and process start time.
type healthManager struct {
	mu       sync.RWMutex
	version  string
	started  time.Time
	checkers map[string]HealthChecker
}

var (
	healthMu sync.RWMutex
	health   *healthManager
)

// InitHealthManager initializes the process health manager. Must be
// called before the health endpoints are served.
func InitHealthManager(version string) {
	healthMu.Lock()
	defer healthMu.Unlock()
	health = &healthManager{
		version:  version,
		started:  time.Now(),
		checkers: make(map[string]HealthChecker),
	}
}

// RegisterHealthChecker adds a named subsystem checker. Readiness
// fails when any registered checker reports an error.
func RegisterHealthChecker(name string, c HealthChecker) {
	healthMu.RLock()
	defer healthMu.RUnlock()
	if health == nil {
		return
	}
	health.mu.Lock()
	defer health.mu.Unlock()
	health.checkers[name] = c
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Uptime  string            `json:"uptime,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Health reports overall health including all registered checkers.
func Health(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, r, true)
}

// HealthLive reports process liveness. It never runs checkers; a live
// but unready process must not be restarted.
func HealthLive(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, r, false)
}

// HealthReady reports readiness, running all registered checkers.
func HealthReady(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, r, true)
}

// HealthStartup reports startup completion. Same semantics as
// readiness for this server.
func HealthStartup(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, r, true)
}

func writeHealth(w http.ResponseWriter, r *http.Request, runCheckers bool) {
	healthMu.RLock()
	hm := health
	healthMu.RUnlock()

	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	if hm != nil {
		resp.Version = hm.version
		resp.Uptime = time.Since(hm.started).Round(time.Second).String()

		if runCheckers {
			hm.mu.RLock()
			checkers := make(map[string]HealthChecker, len(hm.checkers))
			for name, c := range hm.checkers {
				checkers[name] = c
			}
			hm.mu.RUnlock()

			if len(checkers) > 0 {
				resp.Checks = make(map[string]string, len(checkers))
				for name, c := range checkers {
					if err := c.CheckHealth(r.Context()); err != nil {
						resp.Checks[name] = err.Error()
						resp.Status = "degraded"
						status = http.StatusServiceUnavailable
					} else {
						resp.Checks[name] = "ok"
					}
				}
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
