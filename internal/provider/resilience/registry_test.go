package resilience_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripboard/tripboard/internal/provider/resilience"
)

func registered(t *testing.T, registry *resilience.Registry, names ...string) {
	t.Helper()
	for _, name := range names {
		cfg := resilience.SingleAttemptClientConfig(name)
		cfg.Registry = registry
		_ = resilience.NewClient(cfg)
	}
}

func TestRegistry_RegisterOnConstruction(t *testing.T) {
	registry := resilience.NewRegistry()
	registered(t, registry, "tfnsw")

	health := registry.Health("tfnsw")
	require.NotNil(t, health)
	assert.Equal(t, "tfnsw", health.Name)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.Equal(t, resilience.HealthOK, health.State())
	assert.Nil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
	assert.Empty(t, health.LastError)
}

func TestRegistry_RecordOutcomes(t *testing.T) {
	registry := resilience.NewRegistry()
	registered(t, registry, "tfnsw")

	registry.RecordSuccess("tfnsw")
	health := registry.Health("tfnsw")
	require.NotNil(t, health.LastSuccessAt)
	assert.WithinDuration(t, time.Now(), *health.LastSuccessAt, time.Second)
	assert.Nil(t, health.LastFailureAt)

	registry.RecordFailure("tfnsw", assert.AnError)
	health = registry.Health("tfnsw")
	require.NotNil(t, health.LastFailureAt)
	assert.WithinDuration(t, time.Now(), *health.LastFailureAt, time.Second)
	assert.Equal(t, assert.AnError.Error(), health.LastError)
	assert.NotNil(t, health.LastSuccessAt, "earlier success is kept")
}

func TestRegistry_UnknownProvider(t *testing.T) {
	registry := resilience.NewRegistry()

	registry.RecordSuccess("missing")
	registry.RecordFailure("missing", assert.AnError)

	assert.Nil(t, registry.Health("missing"))
	assert.Empty(t, registry.Providers())
}

func TestRegistry_ProvidersOrderedByName(t *testing.T) {
	registry := resilience.NewRegistry()
	assert.True(t, registry.Healthy(), "empty registry is healthy")

	registered(t, registry, "tfnsw-c", "tfnsw-a", "tfnsw-b")

	providers := registry.Providers()
	require.Len(t, providers, 3)
	assert.Equal(t, "tfnsw-a", providers[0].Name)
	assert.Equal(t, "tfnsw-b", providers[1].Name)
	assert.Equal(t, "tfnsw-c", providers[2].Name)
	assert.True(t, registry.Healthy())
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	registry := resilience.NewRegistry()
	registered(t, registry, "tfnsw")
	registry.RecordFailure("tfnsw", assert.AnError)

	registered(t, registry, "tfnsw")

	require.Len(t, registry.Providers(), 1)
	assert.Empty(t, registry.Health("tfnsw").LastError)
}

func TestRegistry_HealthyFollowsFailureStreak(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	cfg := resilience.SingleAttemptClientConfig("tfnsw")
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	call := func() {
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	for i := 0; i < resilience.FailingAfter-1; i++ {
		call()
	}
	assert.Equal(t, resilience.HealthDegraded, registry.Health("tfnsw").State())
	assert.True(t, registry.Healthy(), "degraded provider still counts as healthy")

	call()
	assert.Equal(t, resilience.HealthFailing, registry.Health("tfnsw").State())
	assert.False(t, registry.Healthy())

	failing.Store(false)
	call()
	assert.Equal(t, resilience.HealthOK, registry.Health("tfnsw").State())
	assert.True(t, registry.Healthy())
}

func TestProviderHealth_State(t *testing.T) {
	tests := []struct {
		name     string
		circuit  gobreaker.State
		failures uint32
		want     resilience.HealthState
	}{
		{"closed", gobreaker.StateClosed, 0, resilience.HealthOK},
		{"half-open", gobreaker.StateHalfOpen, 0, resilience.HealthDegraded},
		{"open", gobreaker.StateOpen, 0, resilience.HealthFailing},
		{"closed after a failure", gobreaker.StateClosed, 1, resilience.HealthDegraded},
		{"closed and failing", gobreaker.StateClosed, resilience.FailingAfter, resilience.HealthFailing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &resilience.ProviderHealth{
				CircuitState: tt.circuit,
				Counts:       gobreaker.Counts{ConsecutiveFailures: tt.failures},
			}
			assert.Equal(t, tt.want, h.State())
			assert.Equal(t, tt.want == resilience.HealthOK, h.IsHealthy())
			assert.Equal(t, tt.want == resilience.HealthDegraded, h.IsDegraded())
			assert.Equal(t, tt.want == resilience.HealthFailing, h.IsUnhealthy())
		})
	}
}

func TestHealthState_String(t *testing.T) {
	assert.Equal(t, "ok", resilience.HealthOK.String())
	assert.Equal(t, "degraded", resilience.HealthDegraded.String())
	assert.Equal(t, "failing", resilience.HealthFailing.String())
	assert.Equal(t, "unknown", resilience.HealthState(9).String())
}
