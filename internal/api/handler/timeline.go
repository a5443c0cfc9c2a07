package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tripboard/tripboard/internal/api/models"
	"github.com/tripboard/tripboard/internal/api/response"
	"github.com/tripboard/tripboard/internal/stop"
	"github.com/tripboard/tripboard/internal/timeline"
	"github.com/tripboard/tripboard/internal/transit"
)

// TimelineHandlerConfig holds configuration for the TimelineHandler.
type TimelineHandlerConfig struct {
	Service *timeline.Service

	// Widgets are the configured timelines, served by name.
	Widgets []timeline.Config

	// Horizon and Step apply to ad-hoc timelines without overrides.
	Horizon time.Duration
	Step    time.Duration

	Now    func() time.Time
	Logger zerolog.Logger
}

// TimelineHandler serves precomputed departure timelines.
type TimelineHandler struct {
	service *timeline.Service
	widgets []timeline.Config
	byName  map[string]timeline.Config
	horizon time.Duration
	step    time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// NewTimelineHandler creates a new TimelineHandler.
func NewTimelineHandler(cfg TimelineHandlerConfig) *TimelineHandler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = timeline.DefaultHorizon
	}
	if cfg.Step <= 0 {
		cfg.Step = timeline.DefaultStep
	}
	byName := make(map[string]timeline.Config, len(cfg.Widgets))
	for _, w := range cfg.Widgets {
		byName[w.CacheKey()] = w
	}
	return &TimelineHandler{
		service: cfg.Service,
		widgets: cfg.Widgets,
		byName:  byName,
		horizon: cfg.Horizon,
		step:    cfg.Step,
		now:     now,
		logger:  cfg.Logger,
	}
}

// GetTimeline handles GET /v1/timeline - build or fetch a timeline for the
// stop described by the query.
func (h *TimelineHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.parseQuery(r)
	if err != nil {
		response.Validation(w, r, err)
		return
	}

	tl := h.service.Timeline(r.Context(), cfg, h.now())
	response.JSON(w, r, http.StatusOK, toTimeline(tl))
}

// ListWidgets handles GET /v1/widgets - configured widgets and their cache state.
func (h *TimelineHandler) ListWidgets(w http.ResponseWriter, r *http.Request) {
	widgets := make([]models.Widget, 0, len(h.widgets))
	for _, cfg := range h.widgets {
		widget := models.Widget{
			Name:      cfg.CacheKey(),
			StopType:  string(cfg.Request.Mode),
			StopID:    cfg.Request.StopID,
			Automatic: cfg.Request.Automatic,
		}
		if tl, ok := h.service.Cached(cfg.CacheKey()); ok {
			widget.Cached = true
			widget.RefreshAt = models.OptionalTimestamp(tl.RefreshAt)
		}
		widgets = append(widgets, widget)
	}
	response.JSON(w, r, http.StatusOK, models.NewList(widgets))
}

// GetWidgetTimeline handles GET /v1/widgets/{name}/timeline.
func (h *TimelineHandler) GetWidgetTimeline(w http.ResponseWriter, r *http.Request) {
	tl, ok := h.widgetTimeline(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, toTimeline(tl))
}

// GetWidgetCurrent handles GET /v1/widgets/{name}/current - the snapshot
// closest to now.
func (h *TimelineHandler) GetWidgetCurrent(w http.ResponseWriter, r *http.Request) {
	tl, ok := h.widgetTimeline(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, toEntry(tl.At(h.now())))
}

// Invalidate handles POST /v1/timelines/invalidate. An empty body drops
// every cached timeline.
func (h *TimelineHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	var input models.InvalidateRequest
	if err := decodeJSON(r, &input); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := validate.Struct(input); err != nil {
		response.Validation(w, r, err)
		return
	}

	if input.Timeline == "" {
		h.service.InvalidateAll()
		h.logger.Info().Msg("all timelines invalidated")
	} else {
		h.service.Invalidate(input.Timeline)
		h.logger.Info().Str("timeline", input.Timeline).Msg("timeline invalidated")
	}
	response.NoContent(w, r)
}

func (h *TimelineHandler) widgetTimeline(w http.ResponseWriter, r *http.Request) (*timeline.Timeline, bool) {
	name := chi.URLParam(r, "name")
	cfg, ok := h.byName[name]
	if !ok {
		response.NotFound(w, r, fmt.Sprintf("widget %q not found", name))
		return nil, false
	}
	return h.service.Timeline(r.Context(), cfg, h.now()), true
}

func (h *TimelineHandler) parseQuery(r *http.Request) (timeline.Config, error) {
	q := r.URL.Query()

	automatic, err := queryBool(r, "automatic")
	if err != nil {
		return timeline.Config{}, err
	}
	lat, err := queryFloat(r, "latitude")
	if err != nil {
		return timeline.Config{}, err
	}
	lon, err := queryFloat(r, "longitude")
	if err != nil {
		return timeline.Config{}, err
	}
	horizon, err := queryInt(r, "horizonMinutes", 0)
	if err != nil {
		return timeline.Config{}, err
	}
	step, err := queryInt(r, "stepMinutes", 0)
	if err != nil {
		return timeline.Config{}, err
	}

	query := models.TimelineQuery{
		StopType:       q.Get("stopType"),
		StopID:         q.Get("stopId"),
		Automatic:      automatic,
		Latitude:       lat,
		Longitude:      lon,
		HorizonMinutes: horizon,
		StepMinutes:    step,
	}
	if err := validate.Struct(query); err != nil {
		return timeline.Config{}, err
	}
	if (lat == nil) != (lon == nil) {
		return timeline.Config{}, errors.New("latitude and longitude must be given together")
	}

	mode := transit.Mode(query.StopType)
	req := stop.Request{Mode: mode, StopID: query.StopID, Automatic: query.Automatic}
	if !req.Automatic && req.StopID == "" {
		req.StopID = mode.DefaultStopID()
	}
	if lat != nil {
		req.Position = &stop.Position{Latitude: *lat, Longitude: *lon}
	}

	cfg := timeline.Config{Request: req, Horizon: h.horizon, Step: h.step}
	if query.HorizonMinutes > 0 || query.StepMinutes > 0 {
		if query.HorizonMinutes > 0 {
			cfg.Horizon = time.Duration(query.HorizonMinutes) * time.Minute
		}
		if query.StepMinutes > 0 {
			cfg.Step = time.Duration(query.StepMinutes) * time.Minute
		}
		cfg.Key = fmt.Sprintf("%s:%s/%s", cfg.CacheKey(), cfg.Horizon, cfg.Step)
	}
	return cfg, nil
}
