package scan

import (
	"math"

	"securethread/internal/model"
)

const (
	baseScore        = 100.0
	scoreFloor       = 5.0
	dampingThreshold = 60.0
	dampingScale     = 15.0
)

// severityWeight is the per-finding penalty before confidence adjustment.
var severityWeight = map[model.Severity]float64{
	model.SeverityCritical: 15,
	model.SeverityHigh:     10,
	model.SeverityMedium:   5,
	model.SeverityLow:      2,
}

// SecurityScore computes the aggregate 0-100 scan score. Each finding
// subtracts severityWeight x confidence (confidence 1.0 when unset). Once the
// cumulative penalty crosses the damping threshold it grows logarithmically,
// so heavily vulnerable repositories bottom out at the floor instead of zero.
// The score is monotonically non-increasing in the number of findings.
func SecurityScore(findings []model.Finding) float64 {
	penalty := 0.0
	for _, f := range findings {
		confidence := f.Confidence
		if confidence <= 0 {
			confidence = 1.0
		}
		penalty += severityWeight[f.Severity] * confidence
	}

	if penalty > dampingThreshold {
		penalty = dampingThreshold + dampingScale*math.Log1p((penalty-dampingThreshold)/dampingScale)
	}

	score := baseScore - penalty
	if score < scoreFloor {
		score = scoreFloor
	}
	if score > baseScore {
		score = baseScore
	}
	return score
}

// Grade folds per-severity counts into a letter grade for human summaries.
func Grade(counts map[string]int) string {
	critical := counts[string(model.SeverityCritical)]
	high := counts[string(model.SeverityHigh)]
	total := 0
	for _, c := range counts {
		total += c
	}

	switch {
	case total == 0:
		return "A+"
	case critical == 0 && high == 0:
		return "A"
	case critical == 0 && high <= 3:
		return "B"
	case critical == 0:
		return "C"
	case critical <= 3:
		return "D"
	default:
		return "F"
	}
}
