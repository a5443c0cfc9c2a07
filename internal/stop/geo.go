package stop

import (
	"fmt"
	"math"
	"sort"

	"github.com/tripboard/tripboard/internal/transit"
)

// Distance returns the great-circle distance between two positions in meters.
func Distance(a, b Position) float64 {
	return haversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// haversineDistance calculates the distance between two points in meters
// using the Haversine formula.
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000 // meters

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// FormatDistance renders meters as "350 m" below a kilometre and "1.2 km" above.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// RankedRecord is a record with its distance from a reference position.
type RankedRecord struct {
	Record
	DistanceMeters float64
}

// SortByDistance returns records ordered nearest first. Equal distances keep
// their input order.
func SortByDistance(records []Record, pos Position) []RankedRecord {
	ranked := make([]RankedRecord, 0, len(records))
	for _, r := range records {
		ranked = append(ranked, RankedRecord{Record: r, DistanceMeters: Distance(pos, r.Position())})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DistanceMeters < ranked[j].DistanceMeters
	})
	return ranked
}

// Nearest returns the record of the given mode closest to pos. On a tie the
// earliest record wins.
func Nearest(records []Record, mode transit.Mode, pos Position) (Record, bool) {
	var (
		best     Record
		bestDist = math.Inf(1)
		found    bool
	)

	for _, r := range records {
		if r.Mode != mode {
			continue
		}
		if d := Distance(pos, r.Position()); d < bestDist {
			best, bestDist, found = r, d, true
		}
	}

	return best, found
}
