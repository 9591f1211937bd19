package diagnosis

import (
	"errors"
	"math"
	"strings"
)

// ConfidenceLevel buckets a confidence value for display.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Lower bounds of the high and medium buckets. Anything below medium is low.
const (
	HighConfidenceThreshold   = 0.9
	MediumConfidenceThreshold = 0.7
)

// ConfidenceLevelFor maps a probability-like value onto its bucket.
func ConfidenceLevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= HighConfidenceThreshold:
		return ConfidenceHigh
	case confidence >= MediumConfidenceThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ConfidencePercent renders confidence as a whole percentage.
func ConfidencePercent(confidence float64) int {
	return int(math.Round(confidence * 100))
}

// StageLevel is the severity bucket derived from the free-text stage label.
type StageLevel string

const (
	StageEarly       StageLevel = "early"
	StageModerate    StageLevel = "moderate"
	StageAdvanced    StageLevel = "advanced"
	StageUnspecified StageLevel = "unspecified"
)

// StageLevelFor classifies a stage label by keyword, case-insensitively.
func StageLevelFor(stage string) StageLevel {
	label := strings.ToLower(stage)
	switch {
	case strings.Contains(label, "early"):
		return StageEarly
	case strings.Contains(label, "moderate"):
		return StageModerate
	case strings.Contains(label, "advanced"), strings.Contains(label, "severe"):
		return StageAdvanced
	default:
		return StageUnspecified
	}
}

// Validate checks the invariants every produced result must hold.
func (r Result) Validate() error {
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return errors.New("confidence must be within [0,1]")
	}
	if strings.TrimSpace(r.Disease) == "" {
		return errors.New("disease cannot be empty")
	}
	if strings.TrimSpace(r.DoctorRecommendation.Name) == "" {
		return errors.New("doctor recommendation is missing a name")
	}
	return nil
}
