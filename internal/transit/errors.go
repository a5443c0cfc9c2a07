package transit

import (
	"errors"
	"fmt"
)

// Fetch failure kinds. Match with errors.Is.
var (
	ErrInvalidRequest = errors.New("invalid departure request")
	ErrHTTP           = errors.New("departure request failed")
	ErrDecode         = errors.New("failed to decode departures")
)

// FetchError describes a failed upstream departure fetch.
type FetchError struct {
	// Kind is one of ErrInvalidRequest, ErrHTTP or ErrDecode.
	Kind error

	StopID string

	// StatusCode is the upstream HTTP status, 0 if no response was received.
	StatusCode int

	Err error
}

func (e *FetchError) Error() string {
	msg := e.Kind.Error()
	if e.StopID != "" {
		msg += " for stop " + e.StopID
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": unexpected status code: %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the failure kind so callers can use errors.Is(err, ErrHTTP).
func (e *FetchError) Is(target error) bool {
	return target == e.Kind
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// UserMessage returns a short, display-safe description of err.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "Invalid stop"
	case errors.Is(err, ErrDecode):
		return "Failed to decode response"
	case errors.Is(err, ErrHTTP):
		return "Network error"
	default:
		return "Departures unavailable"
	}
}
