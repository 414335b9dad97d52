package core

import "math"

// PathLossModel holds the constants of the log-distance path-loss model
// used to predict RSSI from geographic separation.
type PathLossModel struct {
	// ReferenceRssi is the expected RSSI at 1 meter, in dBm.
	ReferenceRssi int16

	// ExponentTimes10 is the path-loss exponent multiplied by 10, so that
	// fractional exponents (e.g. 3.0 -> 30) stay integer in configuration.
	ExponentTimes10 uint8
}

// DefaultPathLossModel matches the reference deployment: -60 dBm at 1 m
// with a path-loss exponent of 3.0.
func DefaultPathLossModel() PathLossModel {
	return PathLossModel{ReferenceRssi: -60, ExponentTimes10: 30}
}

// EstimateRSSI predicts the RSSI one node should measure from another,
// given both claimed coordinates in degrees:
//
//	rssi = reference - (exponent/10) * 10 * log10(distanceMeters)
//
// The result is truncated (not rounded) to integer dBm. A zero distance is
// degenerate (self-comparison) and yields 0; callers must not invoke this
// for a node against itself.
func (m PathLossModel) EstimateRSSI(aLat, aLon, bLat, bLon float64) int16 {
	return m.EstimateAtDistance(DistanceMeters(aLat, aLon, bLat, bLon))
}

// EstimateAtDistance applies the model to an already-computed distance in
// meters.
func (m PathLossModel) EstimateAtDistance(distanceMeters float64) int16 {
	if distanceMeters == 0 {
		return 0
	}
	exponent := float64(m.ExponentTimes10) / 10
	rssi := float64(m.ReferenceRssi) - exponent*10*math.Log10(distanceMeters)
	return int16(rssi)
}
