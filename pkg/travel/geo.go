// Package travel holds the geographic primitives and result types shared by
// the places client and the travel tools.
package travel

import "math"

// earthRadiusKm is the mean Earth radius used by the great-circle formula.
const earthRadiusKm = 6371.0

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Haversine calculates the great-circle distance between two points
// in kilometers.
func Haversine(a, b LatLng) float64 {
	latDist := radians(b.Lat - a.Lat)
	lngDist := radians(b.Lng - a.Lng)

	h := math.Sin(latDist/2)*math.Sin(latDist/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*
			math.Sin(lngDist/2)*math.Sin(lngDist/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Round2 rounds a value to two decimal places, the precision used for
// user-facing distances.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
