// Package decibel converts between the decibel scale used for Sv and the
// linear power domain in which averaging and interpolation are meaningful.
package decibel

import "math"

// Linear maps a decibel value to linear power: 10^(x/10).
// NaN maps to NaN.
func Linear(x float64) float64 {
	return math.Pow(10, x/10)
}

// Decibel maps a linear power value to decibels: 10*log10(x).
// Non-positive and NaN inputs map to NaN.
func Decibel(x float64) float64 {
	if !(x > 0) {
		return math.NaN()
	}
	return 10 * math.Log10(x)
}

// ToLinear returns a new slice holding Linear of every element of x.
func ToLinear(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = Linear(v)
	}
	return out
}

// ToDecibel returns a new slice holding Decibel of every element of x.
func ToDecibel(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = Decibel(v)
	}
	return out
}

// ToLinearInPlace converts x to linear power in place.
func ToLinearInPlace(x []float64) {
	for i, v := range x {
		x[i] = Linear(v)
	}
}

// ToDecibelInPlace converts x to decibels in place.
func ToDecibelInPlace(x []float64) {
	for i, v := range x {
		x[i] = Decibel(v)
	}
}
