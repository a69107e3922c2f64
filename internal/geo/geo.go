package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for great-circle math.
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsValid reports whether the point carries usable coordinates. The
// (0, 0) pair is treated as an invalid sentinel, not a real position.
func (p Point) IsValid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return false
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return false
	}
	return p.Latitude != 0 || p.Longitude != 0
}

// Distance returns the great-circle distance between a and b in meters,
// computed with the haversine formula.
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
