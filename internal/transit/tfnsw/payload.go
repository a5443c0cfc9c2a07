package tfnsw

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tripboard/tripboard/internal/transit"
)

// Payload is a decoded departure-list response.
type Payload struct {
	StopEvents []StopEvent

	// Skipped counts stopEvents elements that could not be decoded.
	Skipped int
}

// StopEvent is one upstream departure. Bus and light rail responses share
// this shape; fields one of them omits are pointers.
type StopEvent struct {
	ID                     *string         `json:"id"`
	Location               *Location       `json:"location"`
	DepartureTime          *string         `json:"departureTime"`
	DepartureTimePlanned   *string         `json:"departureTimePlanned"`
	DepartureTimeEstimated *string         `json:"departureTimeEstimated"`
	DepartureStatus        *string         `json:"departureStatus"`
	Transportation         *Transportation `json:"transportation"`
	IsCancelled            *bool           `json:"isCancelled"`
	IsAccessible           *bool           `json:"isAccessible"`

	// Light rail only.
	ArrivalTimePlanned   *string `json:"arrivalTimePlanned"`
	ArrivalTimeEstimated *string `json:"arrivalTimeEstimated"`
	ArrivalStatus        *string `json:"arrivalStatus"`
	IsHighFrequency      *bool   `json:"isHighFrequency"`
}

// Location is the boarding location of a stop event.
type Location struct {
	Name      *string `json:"name"`
	Occupancy *string `json:"occupancy"`
}

// Transportation describes the service of a stop event.
type Transportation struct {
	DisassembledName *string      `json:"disassembledName"`
	Number           *string      `json:"number"`
	Description      *string      `json:"description"`
	Destination      *Destination `json:"destination"`
	Colour           *Colour      `json:"colour"`
}

// Destination is the terminus of a service.
type Destination struct {
	Name *string `json:"name"`
}

// Colour holds the line colours. Text is only sent for light rail.
type Colour struct {
	Background *string `json:"background"`
	Foreground *string `json:"foreground"`
	Text       *string `json:"text"`
}

type envelope struct {
	StopEvents []json.RawMessage `json:"stopEvents"`
}

var errMissingEnvelope = errors.New("missing stopEvents")

// Decode parses a departure-list response body. Only a body that is not JSON
// or lacks the stopEvents list fails; malformed elements are counted in
// Payload.Skipped and left out.
func Decode(body []byte) (*Payload, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &transit.FetchError{Kind: transit.ErrDecode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if env.StopEvents == nil {
		return nil, &transit.FetchError{Kind: transit.ErrDecode, Err: errMissingEnvelope}
	}

	payload := &Payload{StopEvents: make([]StopEvent, 0, len(env.StopEvents))}
	for _, raw := range env.StopEvents {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			payload.Skipped++
			continue
		}

		var ev StopEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			payload.Skipped++
			continue
		}
		payload.StopEvents = append(payload.StopEvents, ev)
	}

	return payload, nil
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func flag(b *bool) bool {
	return b != nil && *b
}
