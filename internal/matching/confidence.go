package matching

import (
	"github.com/lexfield/regscreen/internal/models"
)

// Confidence interval and review defaults
const (
	baseIntervalWidth      = 0.05
	completenessWidthScale = 0.25
	missingDimensionWidth  = 0.05
	correctionWidthScale   = 0.30

	defaultCompositeReviewThreshold    = 0.8
	defaultCompletenessReviewThreshold = 0.5
	defaultSpreadReviewThreshold       = 0.6
	defaultCorrectionReviewThreshold   = 0.2
)

// ConfidenceScorer converts a composite score and data-quality signals
// into a confidence band with a manual-review flag. The formula is
// deliberately deterministic: the interval tightens as the profile
// becomes more complete and widens for every dimension that was scored
// on missing data.
type ConfidenceScorer struct {
	CompositeReviewThreshold    float64
	CompletenessReviewThreshold float64
	SpreadReviewThreshold       float64
	CorrectionReviewThreshold   float64
}

// NewConfidenceScorer creates a confidence scorer with default review
// thresholds.
func NewConfidenceScorer() *ConfidenceScorer {
	return &ConfidenceScorer{
		CompositeReviewThreshold:    defaultCompositeReviewThreshold,
		CompletenessReviewThreshold: defaultCompletenessReviewThreshold,
		SpreadReviewThreshold:       defaultSpreadReviewThreshold,
		CorrectionReviewThreshold:   defaultCorrectionReviewThreshold,
	}
}

// Rate computes the confidence band for one scored candidate.
// missingDimensions counts the dimensions scored without data (unknown
// size, no declared activities, no declared roles); correctionRate is the
// historical professional-correction rate for the record's family, zero
// when no feedback has been recorded.
func (c *ConfidenceScorer) Rate(composite, completeness float64, breakdown models.ScoreBreakdown, missingDimensions int, correctionRate float64) models.ConfidenceBand {
	composite = clamp01(composite)
	completeness = clamp01(completeness)
	correctionRate = clamp01(correctionRate)

	width := baseIntervalWidth +
		completenessWidthScale*(1-completeness) +
		missingDimensionWidth*float64(missingDimensions) +
		correctionWidthScale*correctionRate

	review := composite < c.CompositeReviewThreshold ||
		completeness < c.CompletenessReviewThreshold ||
		breakdown.Spread() > c.SpreadReviewThreshold ||
		correctionRate > c.CorrectionReviewThreshold

	return models.ConfidenceBand{
		Lower:          clamp01(composite - width),
		Upper:          clamp01(composite + width),
		RequiresReview: review,
	}
}

// Widest returns the maximally uncertain band used for structurally
// invalid inputs: the full [0,1] interval with the review flag set.
// Screening always produces output; it never hard-fails on a single
// malformed record.
func (c *ConfidenceScorer) Widest() models.ConfidenceBand {
	return models.ConfidenceBand{Lower: 0, Upper: 1, RequiresReview: true}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
