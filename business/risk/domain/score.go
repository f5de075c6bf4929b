// Package domain contains the risk scoring model. Every function here is pure:
// providers fetch the inputs, the app layer orchestrates.
package domain

import "math"

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// RiskComponentScore is the output of one scorer.
type RiskComponentScore struct {
	Score    int      `json:"score"`
	Warnings []string `json:"warnings"`
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// clampScore bounds a raw score to [0, 100].
func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return MaxScore
	}
	return clamp(v, MinScore, MaxScore)
}

// roundScore rounds half away from zero and clamps.
func roundScore(v float64) int {
	return int(math.Round(clampScore(v)))
}
