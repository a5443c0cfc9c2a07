package models

// StopRequest is the body of POST /v1/stops and PUT /v1/stops/{stopId}.
type StopRequest struct {
	Name      string  `json:"name" validate:"required,max=128"`
	StopID    string  `json:"stopId,omitempty" validate:"max=32"`
	StopType  string  `json:"stopType" validate:"required,oneof=bus lightRail"`
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Stop is a saved stop.
type Stop struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StopID    string    `json:"stopId"`
	StopType  string    `json:"stopType"`
	Icon      string    `json:"icon"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt Timestamp `json:"createdAt"`
}

// NearbyStop is a saved stop with its distance from the query position.
type NearbyStop struct {
	Stop
	DistanceMeters float64 `json:"distanceMeters"`
	Distance       string  `json:"distance"`
}

// SeedResponse reports the outcome of POST /v1/stops/seed.
type SeedResponse struct {
	Added int `json:"added"`
	Total int `json:"total"`
}
