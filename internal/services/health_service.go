package services

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/ernyzasxash/clientt/internal/infrastructure"
	"github.com/ernyzasxash/clientt/pkg/contracts"
)

// Probe reports whether a dependency can serve requests
type Probe func(ctx context.Context) error

// HealthService provides health check functionality
type HealthService struct {
	probes    map[string]Probe
	feedStats func() map[string]int64
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a health service. feedStats may be nil.
func NewHealthService(probes map[string]Probe, feedStats func() map[string]int64, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if probes == nil {
		probes = map[string]Probe{}
	}
	return &HealthService{
		probes:    probes,
		feedStats: feedStats,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := hs.ReadinessCheck(ctx)
	if status.Status == "ready" {
		status.Status = "healthy"
	} else {
		status.Status = "degraded"
	}

	status.Runtime = hs.runtime()
	if hs.feedStats != nil {
		for k, v := range hs.feedStats() {
			status.Runtime["feed_"+k] = v
		}
	}
	return status
}

// ReadinessCheck runs every probe
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Services:  make(map[string]ServiceHealth, len(hs.probes)),
	}

	names := make([]string, 0, len(hs.probes))
	for name := range hs.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := hs.probes[name](ctx); err != nil {
			status.Status = "not_ready"
			status.Services[name] = ServiceHealth{Status: "unhealthy", Message: err.Error()}
			hs.logger.WarnContext(ctx, "Readiness probe failed",
				slog.String("service", name),
				slog.String("error", err.Error()))
			continue
		}
		status.Services[name] = ServiceHealth{Status: "healthy"}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Runtime:   hs.runtime(),
	}
}

// Version returns version information
func (hs *HealthService) Version() contracts.VersionInfo {
	return contracts.GetVersionInfo()
}

func (hs *HealthService) runtime() map[string]interface{} {
	return map[string]interface{}{
		"uptime":     time.Since(hs.startTime).Seconds(),
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
	}
}
