// Package geo implements the great-circle math used by proximity search.
package geo

import "math"

// RadiusOfEarthInMeters is the mean Earth radius used for haversine distance.
const RadiusOfEarthInMeters = 6371000.0

// Distance calculates the great-circle distance in meters between two points
// using the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)

	return 2 * RadiusOfEarthInMeters * math.Asin(math.Sqrt(a))
}

// Bearing returns the initial compass bearing in degrees [0, 360) from the
// first point toward the second.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	x := math.Sin(dLambda) * math.Cos(phi2)
	y := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)

	bearing := math.Atan2(x, y) * 180 / math.Pi
	return math.Mod(bearing+360, 360)
}

// BearingDiff returns the minimal angular difference in degrees [0, 180]
// between two bearings, handling the wraparound at 0/360.
func BearingDiff(b1, b2 float64) float64 {
	diff := math.Abs(b1 - b2)
	if diff > 180 {
		return 360 - diff
	}
	return diff
}
