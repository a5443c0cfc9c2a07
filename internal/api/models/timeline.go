package models

// TimelineQuery holds the query parameters of GET /v1/timeline. The JSON
// names match the query parameter names.
type TimelineQuery struct {
	StopType       string   `json:"stopType" validate:"required,oneof=bus lightRail"`
	StopID         string   `json:"stopId" validate:"max=32"`
	Automatic      bool     `json:"automatic"`
	Latitude       *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude      *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	HorizonMinutes int      `json:"horizonMinutes" validate:"gte=0,lte=240"`
	StepMinutes    int      `json:"stepMinutes" validate:"gte=0,lte=60"`
}

// Timeline is a run of precomputed snapshots.
type Timeline struct {
	Key         string          `json:"key"`
	StopType    string          `json:"stopType"`
	StopID      string          `json:"stopId"`
	StopName    string          `json:"stopName,omitempty"`
	Source      string          `json:"source"`
	StepSeconds int             `json:"stepSeconds"`
	GeneratedAt Timestamp       `json:"generatedAt"`
	RefreshAt   Timestamp       `json:"refreshAt"`
	Entries     []TimelineEntry `json:"entries"`
}

// TimelineEntry is one snapshot. State is departure, error or empty.
type TimelineEntry struct {
	AsOf      Timestamp  `json:"asOf"`
	State     string     `json:"state"`
	StopName  string     `json:"stopName,omitempty"`
	Departure *Departure `json:"departure,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Widget is a configured widget and its cache state.
type Widget struct {
	Name      string     `json:"name"`
	StopType  string     `json:"stopType"`
	StopID    string     `json:"stopId,omitempty"`
	Automatic bool       `json:"automatic"`
	Cached    bool       `json:"cached"`
	RefreshAt *Timestamp `json:"refreshAt,omitempty"`
}

// InvalidateRequest is the optional body of POST /v1/timelines/invalidate.
// An empty Timeline invalidates everything.
type InvalidateRequest struct {
	Timeline string `json:"timeline" validate:"max=128"`
}
