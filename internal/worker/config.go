// Package worker keeps configured departure timelines fresh in the background.
package worker

import (
	"time"

	"github.com/tripboard/tripboard/internal/config"
	"github.com/tripboard/tripboard/internal/timeline"
)

// RefreshConfig holds configuration for the timeline refresh job.
type RefreshConfig struct {
	// Targets are the timelines to keep fresh.
	// If empty, uses DefaultRefreshTargets.
	Targets []timeline.Config

	// Concurrency is the number of timelines built at once.
	// Default: 3
	Concurrency int

	// Timeout bounds each build.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxIdle caps the wait between passes when no timeline is cached.
	// Default: 2 minutes
	MaxIdle time.Duration
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Targets:     DefaultRefreshTargets(),
		Concurrency: 3,
		Timeout:     30 * time.Second,
		MaxIdle:     timeline.DefaultStep,
	}
}

// DefaultRefreshTargets returns one timeline per mode at its default stop.
func DefaultRefreshTargets() []timeline.Config {
	return TargetsFromWidgets(config.DefaultWidgets(), timeline.DefaultHorizon, timeline.DefaultStep)
}

// TargetsFromWidgets converts widget definitions into refresh targets.
func TargetsFromWidgets(widgets []config.Widget, horizon, step time.Duration) []timeline.Config {
	targets := make([]timeline.Config, 0, len(widgets))
	for _, w := range widgets {
		targets = append(targets, w.TimelineConfig(horizon, step))
	}
	return targets
}

// TotalTargets returns the number of timelines to refresh.
func (c RefreshConfig) TotalTargets() int {
	return len(c.Targets)
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	def := DefaultRefreshConfig()
	if len(c.Targets) == 0 {
		c.Targets = def.Targets
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = def.MaxIdle
	}
	return c
}
