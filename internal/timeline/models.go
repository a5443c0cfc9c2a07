// Package timeline materializes departure snapshots for periodic display
// from a single upstream fetch.
package timeline

import (
	"fmt"
	"time"

	"github.com/tripboard/tripboard/internal/stop"
	"github.com/tripboard/tripboard/internal/transit"
)

// Defaults for Build.
const (
	DefaultHorizon = 30 * time.Minute
	DefaultStep    = 2 * time.Minute
)

// Config identifies what a timeline shows.
type Config struct {
	// Key names the configuration for caching. Empty means derive one from
	// the request.
	Key string

	Request stop.Request

	// Horizon and Step default to DefaultHorizon and DefaultStep.
	Horizon time.Duration
	Step    time.Duration
}

// CacheKey returns Key, or a key derived from the request when Key is empty.
func (c Config) CacheKey() string {
	if c.Key != "" {
		return c.Key
	}

	r := c.Request
	if !r.Automatic {
		return fmt.Sprintf("manual:%s:%s", r.Mode, r.StopID)
	}
	if r.Position != nil {
		return fmt.Sprintf("auto:%s:%.5f,%.5f", r.Mode, r.Position.Latitude, r.Position.Longitude)
	}
	return fmt.Sprintf("auto:%s", r.Mode)
}

func (c Config) withDefaults() Config {
	if c.Horizon <= 0 {
		c.Horizon = DefaultHorizon
	}
	if c.Step <= 0 {
		c.Step = DefaultStep
	}
	return c
}

// State is the kind of a snapshot.
type State string

const (
	StateDeparture State = "departure"
	StateError     State = "error"
	StateEmpty     State = "empty"
)

// Display holds the labels derived for a departure.
type Display struct {
	Countdown string
	Delay     string
	HasDelay  bool
	ModeLabel string
	ModeIcon  string
}

// Snapshot is one timestamped display state. Exactly one of departure,
// error or empty holds; build snapshots with the New*Snapshot constructors.
type Snapshot struct {
	asOf      time.Time
	stopName  string
	departure *transit.Event
	display   Display
	err       error
}

// NewDepartureSnapshot creates a snapshot showing ev.
func NewDepartureSnapshot(asOf time.Time, ev transit.Event, display Display, stopName string) Snapshot {
	return Snapshot{asOf: asOf, stopName: stopName, departure: &ev, display: display}
}

// NewErrorSnapshot creates a snapshot carrying err. A nil err is replaced so
// the snapshot stays in the error state.
func NewErrorSnapshot(asOf time.Time, err error) Snapshot {
	if err == nil {
		err = errUnknown
	}
	return Snapshot{asOf: asOf, err: err}
}

// NewEmptySnapshot creates a snapshot with nothing to show.
func NewEmptySnapshot(asOf time.Time, stopName string) Snapshot {
	return Snapshot{asOf: asOf, stopName: stopName}
}

var errUnknown = fmt.Errorf("%w: unknown failure", transit.ErrHTTP)

// AsOf is the instant the snapshot is meant to be shown at.
func (s Snapshot) AsOf() time.Time { return s.asOf }

// StopName is the resolved stop name; set only for automatic resolution.
func (s Snapshot) StopName() string { return s.stopName }

// Departure returns the next departure, if this is a departure snapshot.
func (s Snapshot) Departure() (transit.Event, bool) {
	if s.departure == nil {
		return transit.Event{}, false
	}
	return *s.departure, true
}

// Display returns the derived labels of a departure snapshot.
func (s Snapshot) Display() Display { return s.display }

// Err returns the failure of an error snapshot.
func (s Snapshot) Err() error { return s.err }

// State reports which of the three states the snapshot is in.
func (s Snapshot) State() State {
	switch {
	case s.err != nil:
		return StateError
	case s.departure != nil:
		return StateDeparture
	default:
		return StateEmpty
	}
}

// Timeline is an ordered run of snapshots with strictly increasing AsOf.
type Timeline struct {
	Key         string
	Mode        transit.Mode
	Resolution  stop.Resolution
	Snapshots   []Snapshot
	Step        time.Duration
	GeneratedAt time.Time

	// RefreshAt is when the next build is due: one step past the last snapshot.
	RefreshAt time.Time
}

// At returns the snapshot whose AsOf is closest to t. Equal distances pick
// the earlier snapshot.
func (tl *Timeline) At(t time.Time) Snapshot {
	if tl == nil || len(tl.Snapshots) == 0 {
		return NewEmptySnapshot(t, "")
	}

	best := 0
	bestDist := absDuration(t.Sub(tl.Snapshots[0].asOf))
	for i := 1; i < len(tl.Snapshots); i++ {
		if d := absDuration(t.Sub(tl.Snapshots[i].asOf)); d < bestDist {
			best, bestDist = i, d
		}
	}
	return tl.Snapshots[best]
}

// Expired reports whether the timeline is due for a rebuild at now.
func (tl *Timeline) Expired(now time.Time) bool {
	return tl == nil || !now.Before(tl.RefreshAt)
}

// Failed reports whether the timeline collapsed to an error.
func (tl *Timeline) Failed() bool {
	return tl != nil && len(tl.Snapshots) == 1 && tl.Snapshots[0].State() == StateError
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
