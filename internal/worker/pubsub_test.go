package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripboard/tripboard/internal/provider/resilience"
	"github.com/tripboard/tripboard/internal/transit"
	"github.com/tripboard/tripboard/internal/worker"
)

type reloaderFunc func(ctx context.Context) error

func (f reloaderFunc) Reload(ctx context.Context) error { return f(ctx) }

func newJobHandler(t *testing.T, provider *fakeProvider, stops worker.Reloader, registry *resilience.Registry) (*worker.JobHandler, *worker.Collector) {
	t.Helper()
	clk := &clock{t: now}
	svc := newService(provider)
	collector := worker.NewCollector()
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:  worker.RefreshConfig{Targets: targets(2)},
		Service: svc,
		Clock:   clk.Now,
		Logger:  zerolog.Nop(),
	})
	return worker.NewJobHandler(worker.JobHandlerConfig{
		RefreshJob: job,
		Service:    svc,
		Stops:      stops,
		Registry:   registry,
		Collector:  collector,
		Logger:     zerolog.Nop(),
	}), collector
}

func TestJobHandler_UnknownJob(t *testing.T) {
	h, collector := newJobHandler(t, &fakeProvider{}, nil, nil)

	err := h.HandleJob(context.Background(), worker.RefreshMessage{JobType: "provider_refresh"})
	assert.ErrorIs(t, err, worker.ErrUnknownJob)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.PubSubMessages.WithLabelValues("provider_refresh", "error")))
}

func TestJobHandler_TimelineRefresh(t *testing.T) {
	provider := &fakeProvider{}
	h, _ := newJobHandler(t, provider, nil, nil)
	ctx := context.Background()

	require.NoError(t, h.HandleJob(ctx, worker.RefreshMessage{JobType: worker.JobTimelineRefresh}))
	assert.Equal(t, int32(2), provider.calls.Load())

	// Nothing is due yet.
	require.NoError(t, h.HandleJob(ctx, worker.RefreshMessage{JobType: worker.JobTimelineRefresh}))
	assert.Equal(t, int32(2), provider.calls.Load())

	require.NoError(t, h.HandleJob(ctx, worker.RefreshMessage{JobType: worker.JobTimelineRefresh, Timeline: "widget-01"}))
	assert.Equal(t, int32(3), provider.calls.Load())

	require.NoError(t, h.HandleJob(ctx, worker.RefreshMessage{JobType: worker.JobTimelineRefresh, RefreshAll: true}))
	assert.Equal(t, int32(5), provider.calls.Load())
}

func TestJobHandler_TimelineRefreshAllFailed(t *testing.T) {
	provider := &fakeProvider{err: &transit.FetchError{Kind: transit.ErrHTTP, StatusCode: 500}}
	h, _ := newJobHandler(t, provider, nil, nil)

	err := h.HandleJob(context.Background(), worker.RefreshMessage{JobType: worker.JobTimelineRefresh, RefreshAll: true})
	assert.Error(t, err)
}

func TestJobHandler_StopsChanged(t *testing.T) {
	provider := &fakeProvider{}
	reloads := 0
	h, _ := newJobHandler(t, provider, reloaderFunc(func(context.Context) error {
		reloads++
		return nil
	}), nil)
	ctx := context.Background()

	require.NoError(t, h.HandleJob(ctx, worker.RefreshMessage{JobType: worker.JobTimelineRefresh}))
	require.NoError(t, h.HandleJob(ctx, worker.RefreshMessage{JobType: worker.JobStopsChanged}))

	assert.Equal(t, 1, reloads)
	assert.Equal(t, int32(4), provider.calls.Load(), "every timeline rebuilt after a stop change")
}

func TestJobHandler_StopsChangedReloadFails(t *testing.T) {
	h, _ := newJobHandler(t, &fakeProvider{}, reloaderFunc(func(context.Context) error {
		return errors.New("redis down")
	}), nil)

	err := h.HandleJob(context.Background(), worker.RefreshMessage{JobType: worker.JobStopsChanged})
	assert.ErrorContains(t, err, "reloading stops")
}

func TestJobHandler_HealthCheck(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.SingleAttemptClientConfig("tfnsw")
	cfg.Registry = registry
	_ = resilience.NewClient(cfg)

	h, _ := newJobHandler(t, &fakeProvider{}, nil, registry)
	assert.NoError(t, h.HandleJob(context.Background(), worker.RefreshMessage{JobType: worker.JobHealthCheck}))
}
