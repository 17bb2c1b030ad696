// Package numeric centralizes tolerance-aware floating point comparisons so
// that every component agrees on what "equal" and "satisfied" mean.
package numeric

import "math"

const (
	// Feasibility is the absolute tolerance for constraint satisfaction
	// and conservation checks.
	Feasibility = 1e-6

	// WeightSum is the tolerance applied to multi-objective weight sums.
	WeightSum = 0.01

	// Utilization is the resource utilization level treated as saturated
	// when flagging bottlenecks.
	Utilization = 0.99
)

// Eq reports whether a and b are equal within tol.
func Eq(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// Leq reports whether a <= b within the feasibility tolerance.
func Leq(a, b float64) bool {
	return a <= b+Feasibility
}

// Geq reports whether a >= b within the feasibility tolerance.
func Geq(a, b float64) bool {
	return a >= b-Feasibility
}

// Zero reports whether v is zero within the feasibility tolerance.
func Zero(v float64) bool {
	return math.Abs(v) <= Feasibility
}

// Clamp limits v to the interval [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
