package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	Derivation    string                 `json:"derivation"`
	GitCommit     string                 `json:"git_commit,omitempty"`
	BuildTime     string                 `json:"build_time,omitempty"`
	Uptime        string                 `json:"uptime"`
	Checks        map[string]HealthCheck `json:"checks"`
	System        SystemInfo             `json:"system"`
	RequestID     string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	GOMAXPROCS    int    `json:"gomaxprocs"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	MemorySys     uint64 `json:"memory_sys_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// handleHealthCheck provides comprehensive health check endpoint
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	version := GetVersionInfo()
	dbCheck := s.checkDatabaseHealth(r.Context())

	response := HealthCheckResponse{
		Status:        dbCheck.Status,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: version.EngineVersion,
		Derivation:    version.Derivation,
		GitCommit:     version.GitCommit,
		BuildTime:     version.BuildTime,
		Uptime:        time.Since(s.startTime).String(),
		Checks:        map[string]HealthCheck{"database": dbCheck},
		System:        getSystemInfo(),
		RequestID:     middleware.GetReqID(r.Context()),
	}

	statusCode := http.StatusOK
	if response.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}

// handleReadiness reports whether the store answers.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	dbCheck := s.checkDatabaseHealth(r.Context())
	ready := dbCheck.Status == HealthStatusHealthy

	response := map[string]interface{}{
		"ready":          ready,
		"message":        dbCheck.Message,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"request_id":     middleware.GetReqID(r.Context()),
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}

// handleLiveness provides liveness probe endpoint
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"alive":          true,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"uptime":         time.Since(s.startTime).String(),
		"request_id":     middleware.GetReqID(r.Context()),
	}
	writeJSON(w, http.StatusOK, response)
}

// checkDatabaseHealth pings the store with a short deadline.
func (s *Server) checkDatabaseHealth(ctx context.Context) HealthCheck {
	start := time.Now()

	status := HealthStatusHealthy
	message := "Database connection healthy"

	if s.db == nil {
		status = HealthStatusUnhealthy
		message = "Database not initialized"
	} else {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			status = HealthStatusUnhealthy
			message = "Database ping failed: " + err.Error()
		}
	}

	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

// getSystemInfo collects system information
func getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
		MemoryAlloc:   m.Alloc,
		MemorySys:     m.Sys,
		GCCycles:      m.NumGC,
	}
}
