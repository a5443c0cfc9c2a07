package models

// Departure is a normalized departure with its display labels.
type Departure struct {
	ID          string `json:"id"`
	Line        string `json:"line"`
	Description string `json:"description,omitempty"`
	Destination string `json:"destination"`
	StopName    string `json:"stopName,omitempty"`
	Occupancy   string `json:"occupancy,omitempty"`
	Status      string `json:"status,omitempty"`

	DepartureTime      *Timestamp `json:"departureTime,omitempty"`
	ScheduledDeparture *Timestamp `json:"scheduledDeparture,omitempty"`
	EstimatedDeparture *Timestamp `json:"estimatedDeparture,omitempty"`

	Countdown string `json:"countdown"`
	Delay     string `json:"delay,omitempty"`
	ModeLabel string `json:"modeLabel"`
	ModeIcon  string `json:"modeIcon"`

	ForegroundColour string `json:"foregroundColour,omitempty"`
	BackgroundColour string `json:"backgroundColour,omitempty"`
	TextColour       string `json:"textColour,omitempty"`

	IsCancelled     bool  `json:"isCancelled"`
	IsAccessible    bool  `json:"isAccessible"`
	IsHighFrequency *bool `json:"isHighFrequency,omitempty"`

	ArrivalPlanned   *Timestamp `json:"arrivalPlanned,omitempty"`
	ArrivalEstimated *Timestamp `json:"arrivalEstimated,omitempty"`
	ArrivalStatus    string     `json:"arrivalStatus,omitempty"`
}

// DepartureList is the response of the departures endpoints.
type DepartureList struct {
	StopID     string      `json:"stopId"`
	StopType   string      `json:"stopType"`
	FetchedAt  Timestamp   `json:"fetchedAt"`
	Count      int         `json:"count"`
	Departures []Departure `json:"departures"`
}
