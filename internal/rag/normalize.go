package rag

import "math"

// ConfidenceFloor is the confidence assigned to negative raw scores.
const ConfidenceFloor = 0.01

// Normalize maps a backend raw score into [0, 1].
//
// Negative scores (and NaN) map to ConfidenceFloor. Scores above 1 are
// treated as distances and mapped through 1/(1+raw). Everything else is
// already a bounded relevance and passes through.
func Normalize(raw float64) float64 {
	switch {
	case math.IsNaN(raw) || raw < 0:
		return ConfidenceFloor
	case raw > 1:
		if math.IsInf(raw, 1) {
			return 0
		}
		return 1 / (1 + raw)
	default:
		return raw
	}
}
