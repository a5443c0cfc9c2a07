package handler

import (
	"time"

	"github.com/tripboard/tripboard/internal/api/models"
	"github.com/tripboard/tripboard/internal/stop"
	"github.com/tripboard/tripboard/internal/timeline"
	"github.com/tripboard/tripboard/internal/transit"
)

func toStop(rec stop.Record) models.Stop {
	return models.Stop{
		ID:        rec.ID,
		Name:      rec.Name,
		StopID:    rec.UpstreamID(),
		StopType:  string(rec.Mode),
		Icon:      rec.Mode.Icon(),
		Latitude:  rec.Latitude,
		Longitude: rec.Longitude,
		CreatedAt: models.Timestamp(rec.CreatedAt),
	}
}

func toDeparture(ev transit.Event, display timeline.Display) models.Departure {
	return models.Departure{
		ID:                 ev.ID,
		Line:               ev.Line,
		Description:        ev.Description,
		Destination:        ev.Destination,
		StopName:           ev.StopName,
		Occupancy:          ev.Occupancy,
		Status:             ev.Status,
		DepartureTime:      models.OptionalTimestamp(ev.DepartureTime),
		ScheduledDeparture: models.OptionalTimestamp(ev.ScheduledDeparture),
		EstimatedDeparture: models.OptionalTimestamp(ev.EstimatedDeparture),
		Countdown:          display.Countdown,
		Delay:              display.Delay,
		ModeLabel:          display.ModeLabel,
		ModeIcon:           display.ModeIcon,
		ForegroundColour:   ev.ForegroundColour,
		BackgroundColour:   ev.BackgroundColour,
		TextColour:         ev.TextColour,
		IsCancelled:        ev.IsCancelled,
		IsAccessible:       ev.IsAccessible,
		IsHighFrequency:    ev.IsHighFrequency,
		ArrivalPlanned:     models.OptionalTimestamp(ev.ArrivalPlanned),
		ArrivalEstimated:   models.OptionalTimestamp(ev.ArrivalEstimated),
		ArrivalStatus:      ev.ArrivalStatus,
	}
}

func toDepartureList(stopID string, mode transit.Mode, events []transit.Event, now time.Time) models.DepartureList {
	out := make([]models.Departure, 0, len(events))
	for _, ev := range events {
		out = append(out, toDeparture(ev, timeline.Derive(ev, mode, now)))
	}
	return models.DepartureList{
		StopID:     stopID,
		StopType:   string(mode),
		FetchedAt:  models.Timestamp(now),
		Count:      len(out),
		Departures: out,
	}
}

func toEntry(s timeline.Snapshot) models.TimelineEntry {
	entry := models.TimelineEntry{
		AsOf:     models.Timestamp(s.AsOf()),
		State:    string(s.State()),
		StopName: s.StopName(),
	}
	if ev, ok := s.Departure(); ok {
		dep := toDeparture(ev, s.Display())
		entry.Departure = &dep
	}
	if err := s.Err(); err != nil {
		entry.Error = transit.UserMessage(err)
	}
	return entry
}

func toTimeline(tl *timeline.Timeline) models.Timeline {
	entries := make([]models.TimelineEntry, 0, len(tl.Snapshots))
	for _, s := range tl.Snapshots {
		entries = append(entries, toEntry(s))
	}
	return models.Timeline{
		Key:         tl.Key,
		StopType:    string(tl.Mode),
		StopID:      tl.Resolution.StopID,
		StopName:    tl.Resolution.StopName,
		Source:      string(tl.Resolution.Source),
		StepSeconds: int(tl.Step / time.Second),
		GeneratedAt: models.Timestamp(tl.GeneratedAt),
		RefreshAt:   models.Timestamp(tl.RefreshAt),
		Entries:     entries,
	}
}
