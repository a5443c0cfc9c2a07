package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tripboard/tripboard/internal/api/response"
	"github.com/tripboard/tripboard/internal/stop"
	"github.com/tripboard/tripboard/internal/transit"
)

// DepartureHandlerConfig holds configuration for the DepartureHandler.
type DepartureHandlerConfig struct {
	Provider  transit.Provider
	Directory *stop.Directory

	// Now defaults to time.Now.
	Now    func() time.Time
	Logger zerolog.Logger
}

// DepartureHandler serves live departure lists. Every request goes upstream.
type DepartureHandler struct {
	provider  transit.Provider
	directory *stop.Directory
	now       func() time.Time
	logger    zerolog.Logger
}

// NewDepartureHandler creates a new DepartureHandler.
func NewDepartureHandler(cfg DepartureHandlerConfig) *DepartureHandler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &DepartureHandler{
		provider:  cfg.Provider,
		directory: cfg.Directory,
		now:       now,
		logger:    cfg.Logger,
	}
}

// ListDepartures handles GET /v1/departures?stopType=&stopId= - departures
// for an upstream stop. A missing stopId queries the stop type's default stop.
func (h *DepartureHandler) ListDepartures(w http.ResponseWriter, r *http.Request) {
	mode, err := transit.ParseMode(r.URL.Query().Get("stopType"))
	if err != nil {
		response.BadRequest(w, r, "stopType must be one of: bus lightRail", nil)
		return
	}

	stopID := strings.TrimSpace(r.URL.Query().Get("stopId"))
	if stopID == "" {
		stopID = mode.DefaultStopID()
	}
	h.serve(w, r, stopID, mode)
}

// ListStopDepartures handles GET /v1/stops/{stopId}/departures - departures
// for a saved stop.
func (h *DepartureHandler) ListStopDepartures(w http.ResponseWriter, r *http.Request) {
	rec, err := h.directory.Get(chi.URLParam(r, "stopId"))
	if err != nil {
		response.NotFound(w, r, "stop not found")
		return
	}
	h.serve(w, r, rec.UpstreamID(), rec.Mode)
}

func (h *DepartureHandler) serve(w http.ResponseWriter, r *http.Request, stopID string, mode transit.Mode) {
	now := h.now()
	events, err := h.provider.Departures(r.Context(), stopID, mode, now)
	if err != nil {
		h.logger.Warn().Err(err).Str("stop_id", stopID).Str("mode", string(mode)).Msg("departures fetch failed")
		if errors.Is(err, transit.ErrInvalidRequest) {
			response.BadRequest(w, r, transit.UserMessage(err), nil)
			return
		}
		response.BadGateway(w, r, transit.UserMessage(err))
		return
	}
	response.JSON(w, r, http.StatusOK, toDepartureList(stopID, mode, events, now))
}
