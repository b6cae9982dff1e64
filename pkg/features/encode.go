package features

import "math"

// Periods of the cyclical calendar fields.
const (
	PeriodMonth     = 12
	PeriodWeekday   = 7
	PeriodHalfHours = 48
)

// Encode maps a cyclical value onto sin(2π·v/period). The value is reduced
// modulo period first, so Encode(period, period) == Encode(0, period) == 0.
func Encode(v, period float64) float64 {
	s, _ := EncodePair(v, period)
	return s
}

// EncodePair returns the sine and cosine of the cyclical value. Together they
// identify v modulo period uniquely, which the sine alone does not.
func EncodePair(v, period float64) (sin, cos float64) {
	r := math.Mod(v, period)
	if r < 0 {
		r += period
	}
	if r == 0 {
		return 0, 1
	}
	return math.Sincos(2 * math.Pi * r / period)
}
