package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tripboard/tripboard/internal/api/models"
	"github.com/tripboard/tripboard/internal/api/response"
	"github.com/tripboard/tripboard/internal/stop"
	"github.com/tripboard/tripboard/internal/transit"
)

const (
	defaultNearbyLimit = 10
	maxNearbyLimit     = 50
)

// StopHandlerConfig holds configuration for the StopHandler.
type StopHandlerConfig struct {
	Directory *stop.Directory

	// OnChange runs after every successful mutation. The API uses it to
	// drop timelines resolved against the old stop list.
	OnChange func(ctx context.Context)

	Logger zerolog.Logger
}

// StopHandler handles the saved stop endpoints.
type StopHandler struct {
	directory *stop.Directory
	onChange  func(ctx context.Context)
	logger    zerolog.Logger
}

// NewStopHandler creates a new StopHandler.
func NewStopHandler(cfg StopHandlerConfig) *StopHandler {
	onChange := cfg.OnChange
	if onChange == nil {
		onChange = func(context.Context) {}
	}
	return &StopHandler{
		directory: cfg.Directory,
		onChange:  onChange,
		logger:    cfg.Logger,
	}
}

// ListStops handles GET /v1/stops - list saved stops, optionally of one stopType.
func (h *StopHandler) ListStops(w http.ResponseWriter, r *http.Request) {
	records, err := h.recordsFor(r.URL.Query().Get("stopType"))
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	stops := make([]models.Stop, 0, len(records))
	for _, rec := range records {
		stops = append(stops, toStop(rec))
	}
	response.JSON(w, r, http.StatusOK, models.NewList(stops))
}

// CreateStop handles POST /v1/stops - save a stop.
func (h *StopHandler) CreateStop(w http.ResponseWriter, r *http.Request) {
	var input models.StopRequest
	if err := decodeJSON(r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := validate.Struct(input); err != nil {
		response.Validation(w, r, err)
		return
	}

	stopID := strings.TrimSpace(input.StopID)
	rec := stop.NewRecord(strings.TrimSpace(input.Name), stopID, transit.Mode(input.StopType), input.Latitude, input.Longitude)
	added, err := h.directory.AddUnique(r.Context(), rec)
	if err != nil {
		h.mutationFailed(w, r, "add", err)
		return
	}
	if !added {
		response.Conflict(w, r, "stop already exists")
		return
	}

	h.onChange(r.Context())
	h.logger.Info().Str("stop_id", rec.ID).Str("upstream_stop_id", rec.UpstreamID()).Msg("stop saved")
	response.Created(w, r, "/v1/stops/"+rec.ID, toStop(rec))
}

// GetStop handles GET /v1/stops/{stopId} - get a saved stop.
func (h *StopHandler) GetStop(w http.ResponseWriter, r *http.Request) {
	rec, err := h.directory.Get(chi.URLParam(r, "stopId"))
	if err != nil {
		response.NotFound(w, r, "stop not found")
		return
	}
	response.JSON(w, r, http.StatusOK, toStop(rec))
}

// UpdateStop handles PUT /v1/stops/{stopId} - replace a saved stop.
func (h *StopHandler) UpdateStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "stopId")
	existing, err := h.directory.Get(id)
	if err != nil {
		response.NotFound(w, r, "stop not found")
		return
	}

	var input models.StopRequest
	if err := decodeJSON(r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := validate.Struct(input); err != nil {
		response.Validation(w, r, err)
		return
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.StopID = strings.TrimSpace(input.StopID)
	existing.Mode = transit.Mode(input.StopType)
	existing.Latitude = input.Latitude
	existing.Longitude = input.Longitude

	if err := h.directory.UpdateUnique(r.Context(), existing); err != nil {
		h.mutationFailed(w, r, "update", err)
		return
	}

	h.onChange(r.Context())
	response.JSON(w, r, http.StatusOK, toStop(existing))
}

// DeleteStop handles DELETE /v1/stops/{stopId} - remove a saved stop.
func (h *StopHandler) DeleteStop(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.Remove(r.Context(), chi.URLParam(r, "stopId")); err != nil {
		h.mutationFailed(w, r, "remove", err)
		return
	}
	h.onChange(r.Context())
	response.NoContent(w, r)
}

// NearbyStops handles GET /v1/stops/nearby - saved stops ordered by distance
// from latitude/longitude.
func (h *StopHandler) NearbyStops(w http.ResponseWriter, r *http.Request) {
	lat, err := queryFloat(r, "latitude")
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	lon, err := queryFloat(r, "longitude")
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if lat == nil || lon == nil {
		response.BadRequest(w, r, "latitude and longitude are required", nil)
		return
	}
	pos := stop.Position{Latitude: *lat, Longitude: *lon}
	if err := validate.Struct(pos); err != nil {
		response.Validation(w, r, err)
		return
	}

	limit, err := queryInt(r, "limit", defaultNearbyLimit)
	if err != nil || limit < 1 || limit > maxNearbyLimit {
		response.BadRequest(w, r, fmt.Sprintf("limit must be between 1 and %d", maxNearbyLimit), nil)
		return
	}

	records, err := h.recordsFor(r.URL.Query().Get("stopType"))
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	ranked := stop.SortByDistance(records, pos)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	nearby := make([]models.NearbyStop, 0, len(ranked))
	for _, rr := range ranked {
		nearby = append(nearby, models.NearbyStop{
			Stop:           toStop(rr.Record),
			DistanceMeters: rr.DistanceMeters,
			Distance:       stop.FormatDistance(rr.DistanceMeters),
		})
	}
	response.JSON(w, r, http.StatusOK, models.NewList(nearby))
}

// SeedStops handles POST /v1/stops/seed - add the demo stops that are not
// already saved.
func (h *StopHandler) SeedStops(w http.ResponseWriter, r *http.Request) {
	added, err := h.directory.Seed(r.Context(), stop.SampleRecords())
	if err != nil {
		h.mutationFailed(w, r, "seed", err)
		return
	}
	if added > 0 {
		h.onChange(r.Context())
	}
	response.JSON(w, r, http.StatusOK, models.SeedResponse{Added: added, Total: h.directory.Len()})
}

func (h *StopHandler) recordsFor(stopType string) ([]stop.Record, error) {
	if strings.TrimSpace(stopType) == "" {
		return h.directory.List(), nil
	}
	mode, err := transit.ParseMode(stopType)
	if err != nil {
		return nil, err
	}
	return h.directory.ListByMode(mode), nil
}

// mutationFailed maps directory errors. A PersistError means the change
// is live in this process but was not saved.
func (h *StopHandler) mutationFailed(w http.ResponseWriter, r *http.Request, op string, err error) {
	var persistErr *stop.PersistError
	switch {
	case errors.Is(err, stop.ErrStopNotFound):
		response.NotFound(w, r, "stop not found")
	case errors.Is(err, stop.ErrStopIDInUse):
		response.Conflict(w, r, "a stop with this stopId is already saved")
	case errors.As(err, &persistErr):
		h.onChange(r.Context())
		h.logger.Error().Err(err).Str("op", op).Msg("stop store write failed")
		response.ServiceUnavailable(w, r, "stop list could not be saved")
	default:
		h.logger.Error().Err(err).Str("op", op).Msg("stop mutation failed")
		response.InternalError(w, r, "stop mutation failed")
	}
}
