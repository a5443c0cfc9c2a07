package worker

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Collector exposes refresh job metrics on a private Prometheus registry.
type Collector struct {
	reg *prometheus.Registry

	Refreshes       *prometheus.CounterVec // result label: departure|empty|error
	RefreshDuration prometheus.Histogram
	PassDuration    prometheus.Histogram
	Targets         prometheus.Gauge
	NextRefresh     prometheus.Gauge // seconds until the earliest RefreshAt
	PubSubMessages  *prometheus.CounterVec
}

// NewCollector creates a collector and registers its metrics.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripboard_timeline_refreshes_total",
			Help: "Timelines built, by resulting state.",
		}, []string{"result"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripboard_timeline_build_duration_seconds",
			Help:    "Duration of a single timeline build including the upstream fetch.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripboard_refresh_pass_duration_seconds",
			Help:    "Duration of a full refresh pass over all targets.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		Targets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tripboard_refresh_targets",
			Help: "Number of configured timelines.",
		}),
		NextRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tripboard_next_refresh_seconds",
			Help: "Seconds until the next timeline expires.",
		}),
		PubSubMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripboard_pubsub_messages_total",
			Help: "Pub/Sub messages handled, by job type and outcome.",
		}, []string{"job_type", "outcome"}),
	}

	reg.MustRegister(
		c.Refreshes, c.RefreshDuration, c.PassDuration,
		c.Targets, c.NextRefresh, c.PubSubMessages,
	)

	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}
