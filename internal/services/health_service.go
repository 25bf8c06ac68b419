package services

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// RunTracker reports the outcome of the latest run
type RunTracker interface {
	LastRun() *RunStatus
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	outputDir string
	runs      RunTracker
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	LastRun   *RunStatus             `json:"last_run,omitempty"`
	Checks    map[string]string      `json:"checks,omitempty"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
}

// NewHealthService creates a health service. runs may be nil.
func NewHealthService(version, outputDir string, runs RunTracker, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("HealthService initialized",
		slog.String("version", version),
		slog.String("output_dir", outputDir))

	return &HealthService{
		version:   version,
		outputDir: outputDir,
		runs:      runs,
		startTime: time.Now(),
		logger:    logger,
	}
}

// HealthCheck reports "ok", or "degraded" when the output directory is missing or the last run failed
func (s *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Checks:    map[string]string{},
		Runtime: map[string]interface{}{
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}

	if info, err := os.Stat(s.outputDir); err != nil || !info.IsDir() {
		status.Status = "degraded"
		status.Checks["output_dir"] = "missing"
	} else {
		status.Checks["output_dir"] = "ok"
	}

	if s.runs != nil {
		status.LastRun = s.runs.LastRun()
		switch {
		case status.LastRun == nil:
			status.Checks["last_run"] = "none"
		case status.LastRun.Success:
			status.Checks["last_run"] = "ok"
		default:
			status.Status = "degraded"
			status.Checks["last_run"] = "failed"
		}
	}

	if status.Status != "ok" {
		s.logger.WarnContext(ctx, "health check degraded", "checks", status.Checks)
	}
	return status
}

// Version returns the service version
func (s *HealthService) Version() map[string]string {
	return map[string]string{
		"version":    s.version,
		"go_version": runtime.Version(),
	}
}
