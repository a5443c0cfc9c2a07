package transit_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripboard/tripboard/internal/transit"
)

func TestModeAttributes(t *testing.T) {
	tests := []struct {
		mode          transit.Mode
		defaultStopID string
		queryType     string
		excluded      string
		label         string
		icon          string
	}{
		{transit.ModeBus, "G203519", "stop", "2,9,11,1,4,7", "Bus", "bus"},
		{transit.ModeLightRail, "203294", "platform", "2,9,11,1,5,7", "Light Rail", "tram"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.True(t, tt.mode.Valid())
			assert.Equal(t, tt.defaultStopID, tt.mode.DefaultStopID())
			assert.Equal(t, tt.queryType, tt.mode.QueryType())
			assert.Equal(t, tt.excluded, tt.mode.ExcludedModes())
			assert.Equal(t, tt.label, tt.mode.Label())
			assert.Equal(t, tt.icon, tt.mode.Icon())
		})
	}
}

func TestModes_AllHaveAttributes(t *testing.T) {
	for _, m := range transit.Modes() {
		assert.NotEmpty(t, m.DefaultStopID(), m)
		assert.NotEmpty(t, m.QueryType(), m)
		assert.NotEmpty(t, m.ExcludedModes(), m)
		assert.NotEmpty(t, m.Label(), m)
		assert.NotEmpty(t, m.Icon(), m)
	}
}

func TestParseMode(t *testing.T) {
	m, err := transit.ParseMode("bus")
	require.NoError(t, err)
	assert.Equal(t, transit.ModeBus, m)

	m, err = transit.ParseMode("LightRail")
	require.NoError(t, err)
	assert.Equal(t, transit.ModeLightRail, m)

	_, err = transit.ParseMode("ferry")
	assert.ErrorIs(t, err, transit.ErrUnknownMode)

	assert.False(t, transit.Mode("ferry").Valid())
}

func TestEvent_ModeLabel(t *testing.T) {
	lr := transit.Event{Line: "L2", Description: "Randwick Light Rail"}
	assert.Equal(t, "Light Rail", lr.ModeLabel())

	bus := transit.Event{Line: "L90", Description: "Wynyard to Palm Beach"}
	assert.Equal(t, "Bus", bus.ModeLabel())
}

func TestFetchError(t *testing.T) {
	err := fmt.Errorf("building timeline: %w", &transit.FetchError{
		Kind:       transit.ErrHTTP,
		StopID:     "G203519",
		StatusCode: http.StatusInternalServerError,
	})

	assert.ErrorIs(t, err, transit.ErrHTTP)
	assert.NotErrorIs(t, err, transit.ErrDecode)
	assert.Contains(t, err.Error(), "G203519")
	assert.Contains(t, err.Error(), "500")

	var fe *transit.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusInternalServerError, fe.StatusCode)
}

func TestFetchError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := &transit.FetchError{Kind: transit.ErrHTTP, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, transit.ErrHTTP)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", transit.UserMessage(nil))
	assert.Equal(t, "Network error", transit.UserMessage(&transit.FetchError{Kind: transit.ErrHTTP}))
	assert.Equal(t, "Failed to decode response", transit.UserMessage(&transit.FetchError{Kind: transit.ErrDecode}))
	assert.Equal(t, "Invalid stop", transit.UserMessage(&transit.FetchError{Kind: transit.ErrInvalidRequest}))
	assert.Equal(t, "Departures unavailable", transit.UserMessage(errors.New("boom")))
}
