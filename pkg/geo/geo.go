// Package geo provides great-circle distance math for geofence evaluation.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for the spherical
// approximation.
const EarthRadiusMeters = 6371000.0

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Distance returns the great-circle distance in meters between two
// coordinates using the haversine formula. Deterministic and symmetric;
// identical points return 0.
func Distance(a, b Coordinate) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
