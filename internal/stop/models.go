// Package stop manages the saved stop directory and picks which stop to
// query for a departure request.
package stop

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tripboard/tripboard/internal/transit"
)

// Domain errors.
var (
	// ErrStopNotFound is returned when no record has the requested ID.
	ErrStopNotFound = errors.New("stop not found")

	// ErrStopIDInUse is returned when another record already saves the
	// same upstream stop id.
	ErrStopIDInUse = errors.New("stop id already saved")
)

// Record is a saved stop. Records are equal when their IDs match.
// Coordinates are expected in [-90,90] and [-180,180]; the directory does
// not check them.
type Record struct {
	ID        string
	Name      string
	StopID    string
	Mode      transit.Mode
	Latitude  float64
	Longitude float64
	CreatedAt time.Time
}

// NewRecord creates a record with a fresh ID.
func NewRecord(name, stopID string, mode transit.Mode, lat, lon float64) Record {
	return Record{
		ID:        uuid.NewString(),
		Name:      name,
		StopID:    stopID,
		Mode:      mode,
		Latitude:  lat,
		Longitude: lon,
		CreatedAt: time.Now().UTC(),
	}
}

// UpstreamID is the identifier sent to the departures API. Records saved
// without a separate stop id use their own ID.
func (r Record) UpstreamID() string {
	if r.StopID != "" {
		return r.StopID
	}
	return r.ID
}

// Position returns the record's coordinates.
func (r Record) Position() Position {
	return Position{Latitude: r.Latitude, Longitude: r.Longitude}
}

// Position is a WGS84 coordinate.
type Position struct {
	Latitude  float64 `json:"latitude" yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" yaml:"longitude" validate:"gte=-180,lte=180"`
}

// PersistError reports that a mutation was applied in memory but the
// write-through save failed.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persisting stops after %s: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// SampleRecords returns the built-in demo stops.
func SampleRecords() []Record {
	return []Record{
		NewRecord("Town Hall Station, George St", "G203519", transit.ModeBus, -33.8735, 151.2066),
		NewRecord("Central Station, Eddy Ave", "203294", transit.ModeLightRail, -33.8830, 151.2065),
		NewRecord("Circular Quay", "G200066", transit.ModeBus, -33.8615, 151.2111),
	}
}

func normalizeStopID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
