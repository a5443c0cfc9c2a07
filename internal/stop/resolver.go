package stop

import (
	"context"

	"github.com/tripboard/tripboard/internal/transit"
)

// Request describes which stop a caller wants departures for.
type Request struct {
	Mode transit.Mode

	// StopID is used verbatim when Automatic is false.
	StopID string

	// Automatic selects the saved stop nearest to the position.
	Automatic bool

	// Position overrides the resolver's PositionSource when set.
	Position *Position
}

// Source records which fallback stage produced a Resolution.
type Source string

const (
	SourceManual      Source = "manual"
	SourceNearest     Source = "nearest"
	SourceFirstOfMode Source = "first_of_mode"
	SourceModeDefault Source = "mode_default"
)

// Resolution is the stop chosen for a request. StopName is only set when a
// saved record was chosen.
type Resolution struct {
	StopID   string
	StopName string
	Source   Source
}

// Resolve picks the stop to query. It never fails: automatic requests fall
// back from the nearest saved stop, to the first saved stop of the mode, to
// the mode's default stop.
func Resolve(req Request, records []Record, pos *Position) Resolution {
	if !req.Automatic {
		return Resolution{StopID: req.StopID, Source: SourceManual}
	}

	if pos != nil {
		if r, ok := Nearest(records, req.Mode, *pos); ok {
			return Resolution{StopID: r.UpstreamID(), StopName: r.Name, Source: SourceNearest}
		}
	}

	for _, r := range records {
		if r.Mode == req.Mode {
			return Resolution{StopID: r.UpstreamID(), StopName: r.Name, Source: SourceFirstOfMode}
		}
	}

	return Resolution{StopID: req.Mode.DefaultStopID(), Source: SourceModeDefault}
}

// PositionSource supplies the current position. Having none is not an error.
type PositionSource interface {
	Position(ctx context.Context) (Position, bool)
}

// StaticPosition always reports the same position.
type StaticPosition Position

// Position implements PositionSource.
func (p StaticPosition) Position(context.Context) (Position, bool) {
	return Position(p), true
}

// NoPosition never reports a position.
type NoPosition struct{}

// Position implements PositionSource.
func (NoPosition) Position(context.Context) (Position, bool) {
	return Position{}, false
}

// Resolver resolves requests against a Directory snapshot.
type Resolver struct {
	directory *Directory
	positions PositionSource
}

// NewResolver creates a resolver. A nil PositionSource means no position.
func NewResolver(directory *Directory, positions PositionSource) *Resolver {
	if positions == nil {
		positions = NoPosition{}
	}
	return &Resolver{directory: directory, positions: positions}
}

// Resolve picks the stop for req.
func (r *Resolver) Resolve(ctx context.Context, req Request) Resolution {
	if !req.Automatic {
		return Resolve(req, nil, nil)
	}

	var records []Record
	if r.directory != nil {
		records = r.directory.List()
	}

	pos := req.Position
	if pos == nil {
		if p, ok := r.positions.Position(ctx); ok {
			pos = &p
		}
	}

	return Resolve(req, records, pos)
}
