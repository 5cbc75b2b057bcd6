package util

import "math"

// Finite reports whether v is neither NaN nor ±Inf.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Clamp01 bounds v to [0,1]; NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 1:
		return 1
	}
	return v
}

// NonNegative maps negative and non-finite values to 0.
func NonNegative(v float64) float64 {
	if !Finite(v) || v < 0 {
		return 0
	}
	return v
}

// RelChange is |b-a|/|a|; a zero reference counts as an infinite move.
func RelChange(a, b float64) float64 {
	if a == 0 {
		return math.Inf(1)
	}
	return math.Abs(b-a) / math.Abs(a)
}
