// Package util provides common utility functions for price calculations.
package util

import "math"

// CentTick is the display increment for prices and gains.
const CentTick = 0.01

// RoundToTick rounds x to the nearest tick increment, ties away from zero.
// For example, with tick=0.01, 1.2345 becomes 1.23 and 1.235 becomes 1.24.
// A non-positive tick or a non-finite x returns x unchanged.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return math.Round(x/tick) * tick
}

// RoundCents rounds x to whole cents.
func RoundCents(x float64) float64 {
	return RoundToTick(x, CentTick)
}
