package discriminate

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const earthRadiusKm = 6371.0
const speedOfLightKmPerMs = 299792.458 / 1000.0 // km per ms, good enough for ground-wave ToA

// StationLocation is a known time-standard transmitter site.
type StationLocation struct {
	Name      string
	LatDeg    float64
	LonDeg    float64
}

// Known transmitter sites (public NIST/NRC information), used by the
// single-peak BCD geographic ToA classifier (spec.md §4.9 step 5).
var (
	WWVLocation  = StationLocation{Name: "WWV", LatDeg: 40.6776, LonDeg: -105.0461}
	WWVHLocation = StationLocation{Name: "WWVH", LatDeg: 21.9875, LonDeg: -159.7649}
	CHULocation  = StationLocation{Name: "CHU", LatDeg: 45.2975, LonDeg: -75.7528}
)

// GreatCircleDistanceKm returns the great-circle distance between two
// lat/lon points in degrees. Grounded on the s2.LatLng/s1.Angle usage in
// cmd/samoyed-ll2utm/main.go from the reference pack, generalized from a
// one-shot CLI conversion into a reusable distance function.
func GreatCircleDistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	angle := p1.Distance(p2)
	return float64(angle) * earthRadiusKm
}

// ToAModel predicts ground-wave propagation delay, in ms, from a station
// to the receiver.
func ToAModel(station StationLocation, receiverLatDeg, receiverLonDeg float64) float64 {
	distKm := GreatCircleDistanceKm(station.LatDeg, station.LonDeg, receiverLatDeg, receiverLonDeg)
	return distKm / speedOfLightKmPerMs
}

// ToASigmaMs is the model uncertainty budget: ground-wave propagation is
// not exactly speed-of-light (ionospheric path contamination, receiver
// clock jitter); spec.md §4.9 requires a ± tolerance rather than a point
// estimate.
const ToASigmaMs = 2.0

// ClassifySinglePeak assigns a lone BCD correlation peak at observedDelayMs
// to WWV or WWVH by comparing it against each station's predicted ToA
// range. When exactly one station's range fits the observation it returns
// that station and false; when both ranges fit, or neither does, it
// returns DominantBalanced and true for ambiguous (spec.md §4.9 step 5 and
// the open question in §9: do not guess when ranges overlap).
func ClassifySinglePeak(observedDelayMs, receiverLatDeg, receiverLonDeg float64) (station Dominance, ambiguous bool) {
	wwvDelay := ToAModel(WWVLocation, receiverLatDeg, receiverLonDeg)
	wwvhDelay := ToAModel(WWVHLocation, receiverLatDeg, receiverLonDeg)

	wwvMatch := math.Abs(observedDelayMs-wwvDelay) <= ToASigmaMs
	wwvhMatch := math.Abs(observedDelayMs-wwvhDelay) <= ToASigmaMs

	switch {
	case wwvMatch && wwvhMatch:
		return DominantBalanced, true
	case wwvMatch:
		return DominantWWV, false
	case wwvhMatch:
		return DominantWWVH, false
	default:
		return DominantBalanced, true
	}
}
