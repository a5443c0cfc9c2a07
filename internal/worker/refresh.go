package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/tripboard/tripboard/internal/timeline"
)

// minWait keeps the loop from spinning when a timeline is already due.
const minWait = time.Second

// RefreshJob rebuilds configured timelines when they reach their RefreshAt.
type RefreshJob struct {
	config    RefreshConfig
	service   *timeline.Service
	collector *Collector
	clock     func() time.Time
	logger    zerolog.Logger

	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalPasses     int64
	Builds          int64
	FailedBuilds    int64
	EmptyTimelines  int64
	CachedTimelines int64

	// Timings
	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	TotalDuration       time.Duration
	NextRefreshAt       time.Time
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config  RefreshConfig
	Service *timeline.Service

	// Collector is optional.
	Collector *Collector

	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger zerolog.Logger
}

// NewRefreshJob creates a new refresh job.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	job := &RefreshJob{
		config:    cfg.Config.withDefaults(),
		service:   cfg.Service,
		collector: cfg.Collector,
		clock:     clock,
		logger:    cfg.Logger,
		metrics:   &RefreshMetrics{},
	}
	if job.collector != nil {
		job.collector.Targets.Set(float64(len(job.config.Targets)))
	}
	return job
}

// RefreshResult contains the result of one pass over the targets.
type RefreshResult struct {
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	TotalTargets int

	// Built counts timelines rebuilt in this pass; Cached counts those
	// still valid and left alone.
	Built  int
	Cached int
	Empty  int
	Failed int
	Errors []RefreshError

	// NextRefreshAt is the earliest RefreshAt across all targets.
	NextRefreshAt time.Time
}

// RefreshError records a timeline that collapsed to an error snapshot.
type RefreshError struct {
	Target string
	Error  string
}

type targetResult struct {
	key      string
	timeline *timeline.Timeline
	built    bool
}

// Run rebuilds every target regardless of the cache.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	return j.run(ctx, true)
}

// RunDue rebuilds only targets with no cached timeline or one that has
// reached its RefreshAt.
func (j *RefreshJob) RunDue(ctx context.Context) *RefreshResult {
	return j.run(ctx, false)
}

func (j *RefreshJob) run(ctx context.Context, force bool) *RefreshResult {
	startTime := j.clock()
	result := &RefreshResult{
		StartTime:    startTime,
		TotalTargets: len(j.config.Targets),
	}

	p := pool.NewWithResults[targetResult]().WithMaxGoroutines(j.config.Concurrency)
	for _, target := range j.config.Targets {
		p.Go(func() targetResult {
			return j.refreshTarget(ctx, target, startTime, force)
		})
	}
	results := p.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].key < results[b].key })

	for _, tr := range results {
		if !tr.built {
			result.Cached++
		} else {
			result.Built++
		}

		tl := tr.timeline
		switch {
		case tl.Failed():
			if tr.built {
				result.Failed++
			}
			result.Errors = append(result.Errors, RefreshError{Target: tr.key, Error: tl.Snapshots[0].Err().Error()})
		case tl.At(startTime).State() == timeline.StateEmpty:
			result.Empty++
		}

		if result.NextRefreshAt.IsZero() || tl.RefreshAt.Before(result.NextRefreshAt) {
			result.NextRefreshAt = tl.RefreshAt
		}

		j.logCurrent(tr.key, tl, startTime)
	}

	result.EndTime = j.clock()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("built", result.Built).
		Int("cached", result.Cached).
		Int("failed", result.Failed).
		Time("next_refresh_at", result.NextRefreshAt).
		Msg("timeline refresh pass completed")

	return result
}

func (j *RefreshJob) refreshTarget(ctx context.Context, target timeline.Config, now time.Time, force bool) targetResult {
	key := target.CacheKey()

	if !force {
		if tl, ok := j.service.Cached(key); ok && !tl.Expired(now) {
			return targetResult{key: key, timeline: tl}
		}
	}

	buildCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	started := time.Now()
	tl := j.service.Refresh(buildCtx, target, now)

	if j.collector != nil {
		j.collector.RefreshDuration.Observe(time.Since(started).Seconds())
		j.collector.Refreshes.WithLabelValues(string(tl.At(now).State())).Inc()
	}

	return targetResult{key: key, timeline: tl, built: true}
}

func (j *RefreshJob) logCurrent(key string, tl *timeline.Timeline, now time.Time) {
	snap := tl.At(now)
	event := j.logger.Info().
		Str("timeline", key).
		Str("state", string(snap.State())).
		Str("stop_id", tl.Resolution.StopID)

	if name := snap.StopName(); name != "" {
		event = event.Str("stop_name", name)
	}

	switch snap.State() {
	case timeline.StateDeparture:
		ev, _ := snap.Departure()
		display := snap.Display()
		event.
			Str("line", ev.Line).
			Str("destination", ev.Destination).
			Str("countdown", display.Countdown).
			Str("delay", display.Delay).
			Msg("next departure")
	case timeline.StateError:
		event.Err(snap.Err()).Msg("departures unavailable")
	default:
		event.Msg("no departures")
	}
}

// Start runs refresh passes until ctx is cancelled. Each pass sleeps until
// the earliest RefreshAt, capped at MaxIdle.
func (j *RefreshJob) Start(ctx context.Context) error {
	j.logger.Info().
		Int("targets", len(j.config.Targets)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting timeline refresh loop")

	for {
		result := j.RunDue(ctx)
		wait := j.nextWait(result)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (j *RefreshJob) nextWait(result *RefreshResult) time.Duration {
	wait := j.config.MaxIdle
	if !result.NextRefreshAt.IsZero() {
		if until := result.NextRefreshAt.Sub(j.clock()); until < wait {
			wait = until
		}
	}
	if wait < minWait {
		wait = minWait
	}
	if j.collector != nil {
		j.collector.NextRefresh.Set(wait.Seconds())
	}
	return wait
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalPasses++
	j.metrics.Builds += int64(result.Built)
	j.metrics.FailedBuilds += int64(result.Failed)
	j.metrics.EmptyTimelines += int64(result.Empty)
	j.metrics.CachedTimelines += int64(result.Cached)
	j.metrics.LastRefreshAt = result.EndTime
	j.metrics.LastRefreshDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
	j.metrics.NextRefreshAt = result.NextRefreshAt

	if j.collector != nil {
		j.collector.PassDuration.Observe(result.Duration.Seconds())
	}
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalPasses:         j.metrics.TotalPasses,
		Builds:              j.metrics.Builds,
		FailedBuilds:        j.metrics.FailedBuilds,
		EmptyTimelines:      j.metrics.EmptyTimelines,
		CachedTimelines:     j.metrics.CachedTimelines,
		LastRefreshAt:       j.metrics.LastRefreshAt,
		LastRefreshDuration: j.metrics.LastRefreshDuration,
		TotalDuration:       j.metrics.TotalDuration,
		NextRefreshAt:       j.metrics.NextRefreshAt,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_passes":          m.TotalPasses,
		"builds":                m.Builds,
		"failed_builds":         m.FailedBuilds,
		"empty_timelines":       m.EmptyTimelines,
		"cached_timelines":      m.CachedTimelines,
		"last_refresh_at":       m.LastRefreshAt,
		"last_refresh_duration": m.LastRefreshDuration.String(),
		"total_duration":        m.TotalDuration.String(),
		"next_refresh_at":       m.NextRefreshAt,
	}
}

// Targets returns the configured targets.
func (j *RefreshJob) Targets() []timeline.Config {
	return append([]timeline.Config(nil), j.config.Targets...)
}
