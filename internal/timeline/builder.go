package timeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tripboard/tripboard/internal/stop"
	"github.com/tripboard/tripboard/internal/transit"
)

// StopResolver picks the stop for a request.
type StopResolver interface {
	Resolve(ctx context.Context, req stop.Request) stop.Resolution
}

// BuilderConfig holds configuration for the timeline builder.
type BuilderConfig struct {
	Resolver StopResolver
	Provider transit.Provider
	Logger   zerolog.Logger
}

// Builder runs one resolve, fetch and derive cycle per Build.
type Builder struct {
	resolver StopResolver
	provider transit.Provider
	logger   zerolog.Logger
}

// NewBuilder creates a timeline builder. A nil resolver resolves against an
// empty directory.
func NewBuilder(cfg BuilderConfig) *Builder {
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = stop.NewResolver(nil, nil)
	}
	return &Builder{
		resolver: resolver,
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// Build fetches departures once and spreads the soonest one across
// ceil(horizon/step) snapshots starting at now. Labels are computed once at
// now. A failed fetch yields a single error snapshot at now.
func (b *Builder) Build(ctx context.Context, cfg Config, now time.Time) *Timeline {
	cfg = cfg.withDefaults()

	res := b.resolver.Resolve(ctx, cfg.Request)
	mode := cfg.Request.Mode

	tl := &Timeline{
		Key:         cfg.CacheKey(),
		Mode:        mode,
		Resolution:  res,
		Step:        cfg.Step,
		GeneratedAt: now,
	}

	logger := b.logger.With().
		Str("timeline", tl.Key).
		Str("stop_id", res.StopID).
		Str("resolved_by", string(res.Source)).
		Logger()

	events, err := b.provider.Departures(ctx, res.StopID, mode, now)
	if err != nil {
		logger.Warn().Err(err).Msg("timeline collapsed to error")
		tl.Snapshots = []Snapshot{NewErrorSnapshot(now, err)}
		tl.RefreshAt = now.Add(cfg.Step)
		return tl
	}

	count := snapshotCount(cfg.Horizon, cfg.Step)
	tl.Snapshots = make([]Snapshot, 0, count)

	if len(events) == 0 {
		for i := 0; i < count; i++ {
			tl.Snapshots = append(tl.Snapshots, NewEmptySnapshot(now.Add(time.Duration(i)*cfg.Step), res.StopName))
		}
	} else {
		next := events[0]
		display := Derive(next, mode, now)
		for i := 0; i < count; i++ {
			tl.Snapshots = append(tl.Snapshots, NewDepartureSnapshot(now.Add(time.Duration(i)*cfg.Step), next, display, res.StopName))
		}
	}

	tl.RefreshAt = tl.Snapshots[len(tl.Snapshots)-1].asOf.Add(cfg.Step)

	logger.Debug().
		Int("events", len(events)).
		Int("snapshots", len(tl.Snapshots)).
		Time("refresh_at", tl.RefreshAt).
		Msg("timeline built")

	return tl
}

// Derive computes the display labels for ev at now.
func Derive(ev transit.Event, mode transit.Mode, now time.Time) Display {
	delay, hasDelay := transit.DelayStatus(&ev)
	return Display{
		Countdown: transit.TimeUntilDeparture(&ev, now),
		Delay:     delay,
		HasDelay:  hasDelay,
		ModeLabel: mode.Label(),
		ModeIcon:  mode.Icon(),
	}
}

func snapshotCount(horizon, step time.Duration) int {
	n := int((horizon + step - 1) / step)
	if n < 1 {
		n = 1
	}
	return n
}
