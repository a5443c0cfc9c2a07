package tfnsw

import (
	"sort"
	"time"

	"github.com/tripboard/tripboard/internal/transit"
)

// timestampLayouts are tried in order. Upstream usually sends fractional
// seconds with a UTC offset; some responses drop the fraction.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
}

// parseTimestamp returns the zero time when s is empty or unparsable.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Normalize converts a payload into canonical events. Cancelled services are
// dropped and the rest are ordered by departure time; events with no usable
// departure time keep their upstream order after all timed events.
func Normalize(p *Payload) []transit.Event {
	if p == nil {
		return nil
	}

	events := make([]transit.Event, 0, len(p.StopEvents))
	for i := range p.StopEvents {
		raw := &p.StopEvents[i]
		if flag(raw.IsCancelled) {
			continue
		}
		events = append(events, toEvent(raw))
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].DepartureTime, events[j].DepartureTime
		switch {
		case a.IsZero():
			return false
		case b.IsZero():
			return true
		default:
			return a.Before(b)
		}
	})

	return events
}

func toEvent(raw *StopEvent) transit.Event {
	ev := transit.Event{
		ID:              str(raw.ID),
		Status:          str(raw.DepartureStatus),
		IsCancelled:     flag(raw.IsCancelled),
		IsAccessible:    flag(raw.IsAccessible),
		IsHighFrequency: raw.IsHighFrequency,
		ArrivalStatus:   str(raw.ArrivalStatus),
	}

	if loc := raw.Location; loc != nil {
		ev.StopName = str(loc.Name)
		ev.Occupancy = str(loc.Occupancy)
	}

	planned := parseTimestamp(str(raw.DepartureTimePlanned))
	estimated := parseTimestamp(str(raw.DepartureTimeEstimated))

	// departureTime already carries estimate-else-planned; rebuild it when absent
	if raw.DepartureTime != nil {
		ev.DepartureTime = parseTimestamp(*raw.DepartureTime)
	} else {
		ev.DepartureTime = firstNonZero(estimated, planned)
	}

	ev.ScheduledDeparture = firstNonZero(planned, ev.DepartureTime)
	ev.EstimatedDeparture = firstNonZero(estimated, ev.DepartureTime, ev.ScheduledDeparture)

	ev.ArrivalPlanned = parseTimestamp(str(raw.ArrivalTimePlanned))
	ev.ArrivalEstimated = parseTimestamp(str(raw.ArrivalTimeEstimated))

	if tr := raw.Transportation; tr != nil {
		ev.Line = str(tr.DisassembledName)
		if tr.Number != nil {
			ev.Line = *tr.Number
		}
		ev.Description = str(tr.Description)
		if tr.Destination != nil {
			ev.Destination = str(tr.Destination.Name)
		}
		if c := tr.Colour; c != nil {
			ev.BackgroundColour = str(c.Background)
			ev.ForegroundColour = str(c.Foreground)
			ev.TextColour = str(c.Text)
		}
	}

	return ev
}

func firstNonZero(ts ...time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
