package core

import "math"

// earthRadiusMeters is the mean Earth radius used for the spherical
// great-circle approximation.
const earthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance in meters between two
// (latitude, longitude) pairs given in degrees, via the haversine formula.
// Defined for all coordinate pairs; identical points yield 0.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)

	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}
