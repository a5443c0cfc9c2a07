package stop

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tripboard/tripboard/internal/transit"
)

// recordJSON is the persisted shape shared with the mobile app and widget,
// which decode createdAt as an ISO-8601 instant without fractional seconds.
type recordJSON struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	StopID    string       `json:"stopId"`
	StopType  transit.Mode `json:"stopType"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	CreatedAt string       `json:"createdAt"`
}

// EncodeRecords serializes records as a JSON array.
func EncodeRecords(records []Record) ([]byte, error) {
	out := make([]recordJSON, 0, len(records))
	for _, r := range records {
		out = append(out, recordJSON{
			ID:        r.ID,
			Name:      r.Name,
			StopID:    r.StopID,
			StopType:  r.Mode,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding stops: %w", err)
	}
	return data, nil
}

// DecodeRecords parses a JSON array written by EncodeRecords.
func DecodeRecords(data []byte) ([]Record, error) {
	var in []recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decoding stops: %w", err)
	}

	records := make([]Record, 0, len(in))
	for i, r := range in {
		if !r.StopType.Valid() {
			return nil, fmt.Errorf("decoding stop %d (%s): %w: %q", i, r.ID, transit.ErrUnknownMode, r.StopType)
		}

		var createdAt time.Time
		if r.CreatedAt != "" {
			t, err := time.Parse(time.RFC3339, r.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("decoding stop %d (%s) createdAt: %w", i, r.ID, err)
			}
			createdAt = t
		}

		records = append(records, Record{
			ID:        r.ID,
			Name:      r.Name,
			StopID:    r.StopID,
			Mode:      r.StopType,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			CreatedAt: createdAt,
		})
	}

	return records, nil
}
