package geo

import "math"

// earthRadiusMeters is the mean Earth radius of the spherical approximation.
const earthRadiusMeters = 6371000

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceMeters returns the great-circle distance between two points using
// the haversine formula.
func DistanceMeters(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// WithinRadius reports whether point p lies within radiusMeters of origin.
func WithinRadius(p, origin Point, radiusMeters float64) bool {
	return DistanceMeters(p, origin) <= radiusMeters
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
