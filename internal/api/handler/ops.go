// Package handler provides HTTP handlers for the tripboard API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/tripboard/tripboard/internal/api/models"
	"github.com/tripboard/tripboard/internal/api/response"
	"github.com/tripboard/tripboard/internal/provider/resilience"
	"github.com/tripboard/tripboard/internal/timeline"
)

const pingTimeout = 2 * time.Second

// Pinger checks that a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsHandlerConfig holds configuration for the OpsHandler.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string

	// Registry, Store and Timelines are optional.
	Registry  *resilience.Registry
	Store     Pinger
	StoreName string
	Timelines *timeline.Service
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	store     Pinger
	storeName string
	timelines *timeline.Service
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	storeName := cfg.StoreName
	if storeName == "" {
		storeName = "stop-store"
	}
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		registry:  cfg.Registry,
		store:     cfg.Store,
		storeName: storeName,
		timelines: cfg.Timelines,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. The service
// is ready once the stop store answers.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.pingStore(r.Context()); err != nil {
		response.ServiceUnavailable(w, r, h.storeName+" unavailable")
		return
	}
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:          models.HealthStatusOK,
		Time:            models.Timestamp(time.Now()),
		Subsystems:      []models.SubsystemStatus{},
		Providers:       []models.ProviderStatus{},
		CachedTimelines: []string{},
	}

	store := models.SubsystemStatus{Name: h.storeName, Status: models.HealthStatusOK}
	if err := h.pingStore(r.Context()); err != nil {
		detail := err.Error()
		store.Status = models.HealthStatusFail
		store.Detail = &detail
	}
	status.Subsystems = append(status.Subsystems, store)
	status.Status = worst(status.Status, store.Status)

	if h.registry != nil {
		for _, ph := range h.registry.Providers() {
			ps := providerStatus(ph)
			status.Providers = append(status.Providers, ps)
			status.Status = worst(status.Status, ps.Status)
		}
	}

	if h.timelines != nil {
		status.CachedTimelines = h.timelines.Keys()
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) pingStore(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return h.store.Ping(ctx)
}

func providerStatus(ph *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:      ph.Name,
		Status:        models.HealthStatusOK,
		CircuitState:  ph.CircuitState.String(),
		Failures:      ph.Counts.ConsecutiveFailures,
		LastSuccessAt: optionalTime(ph.LastSuccessAt),
		LastFailureAt: optionalTime(ph.LastFailureAt),
	}
	switch ph.State() {
	case resilience.HealthFailing:
		ps.Status = models.HealthStatusFail
	case resilience.HealthDegraded:
		ps.Status = models.HealthStatusDegraded
	}
	if ph.LastError != "" {
		msg := ph.LastError
		ps.Message = &msg
	}
	return ps
}

func optionalTime(t *time.Time) *models.Timestamp {
	if t == nil {
		return nil
	}
	return models.OptionalTimestamp(*t)
}

var healthRank = map[models.HealthStatus]int{
	models.HealthStatusOK:       0,
	models.HealthStatusDegraded: 1,
	models.HealthStatusFail:     2,
}

func worst(a, b models.HealthStatus) models.HealthStatus {
	if healthRank[b] > healthRank[a] {
		return b
	}
	return a
}
