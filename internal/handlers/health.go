package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"thumbnail-gallery/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Ready    bool   `json:"ready"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Database string `json:"database"`
	DBError  string `json:"databaseError,omitempty"`

	Sessions      int   `json:"sessions"`
	JobsProcessed int64 `json:"jobsProcessed"`
	JobsFailed    int64 `json:"jobsFailed"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports readiness, database reachability and pipeline counters.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ready := h.ready.Load()
	response := HealthResponse{
		Ready:        ready,
		Version:      startup.Version,
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if h.db != nil {
		response.Database = h.db.Driver()
	}
	if h.sessions != nil {
		response.Sessions = h.sessions.Len()
	}
	if h.pipe != nil {
		response.JobsProcessed, response.JobsFailed = h.pipe.Stats()
	}

	response.Status = statusHealthy
	if !ready {
		response.Status = statusStarting
	}
	if err := h.pingDatabase(r.Context()); err != nil {
		response.DBError = err.Error()
		response.Status = statusDegraded
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status == statusHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, response)
}

// LivenessCheck always returns 200 while the process serves requests.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 only when startup finished and the database
// answers.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() || h.pingDatabase(r.Context()) != nil {
		writeJSONStatus(w, http.StatusServiceUnavailable, "not_ready")
		return
	}
	writeJSONStatus(w, http.StatusOK, "ready")
}

func (h *Handlers) pingDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.db.Ping(ctx)
}
