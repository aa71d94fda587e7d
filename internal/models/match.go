package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DimensionScore is one scored dimension with a short human explanation
type DimensionScore struct {
	Score  float64 `json:"score"`
	Detail string  `json:"detail"`
}

// ScoreBreakdown holds the five applicability dimensions. Each score is
// in [0,1]; the composite is a convex combination of them.
type ScoreBreakdown struct {
	Sector    DimensionScore `json:"sector"`
	Role      DimensionScore `json:"role"`
	Geography DimensionScore `json:"geography"`
	Size      DimensionScore `json:"size"`
	Content   DimensionScore `json:"content"`
}

// Scores returns the five dimension scores in declaration order
func (b ScoreBreakdown) Scores() [5]float64 {
	return [5]float64{b.Sector.Score, b.Role.Score, b.Geography.Score, b.Size.Score, b.Content.Score}
}

// Min returns the lowest dimension score
func (b ScoreBreakdown) Min() float64 {
	min := 1.0
	for _, s := range b.Scores() {
		if s < min {
			min = s
		}
	}
	return min
}

// Max returns the highest dimension score
func (b ScoreBreakdown) Max() float64 {
	max := 0.0
	for _, s := range b.Scores() {
		if s > max {
			max = s
		}
	}
	return max
}

// Spread returns the disagreement between the strongest and weakest
// dimensions; a large spread signals an unreliable composite.
func (b ScoreBreakdown) Spread() float64 {
	return b.Max() - b.Min()
}

// Value implements driver.Valuer for ScoreBreakdown
func (b ScoreBreakdown) Value() (driver.Value, error) {
	return json.Marshal(b)
}

// Scan implements sql.Scanner for ScoreBreakdown
func (b *ScoreBreakdown) Scan(value interface{}) error {
	if value == nil {
		*b = ScoreBreakdown{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into ScoreBreakdown", value)
	}

	return json.Unmarshal(bytes, b)
}

// ConfidenceBand is the calibrated confidence interval around a composite
// score, with the manual-review flag.
type ConfidenceBand struct {
	Lower          float64 `json:"lower"`
	Upper          float64 `json:"upper"`
	RequiresReview bool    `json:"requires_review"`
}

// MatchResult is one ranked screening outcome: a regulation the profile
// plausibly falls under, with its score breakdown and confidence band.
// Results are recomputed on demand; persistence is the caller's concern.
type MatchResult struct {
	RegulationID string         `json:"regulation_id" db:"regulation_id"`
	Title        string         `json:"title" db:"title"`
	Family       string         `json:"family" db:"family"`
	Composite    float64        `json:"composite" db:"composite"`
	Breakdown    ScoreBreakdown `json:"breakdown" db:"breakdown"`
	Confidence   ConfidenceBand `json:"confidence" db:"confidence"`
	ScreenedAt   time.Time      `json:"screened_at" db:"screened_at"`
}

// AnonymizedProfile is the only shape of another organization that
// similarity output ever exposes: a stable opaque token plus bucketed,
// non-identifying aggregates. Name, domain and raw ids never appear here.
type AnonymizedProfile struct {
	OrgToken          string   `json:"org_token"`
	SizeBand          SizeBand `json:"size_band"`
	SectorGroup       string   `json:"sector_group"`
	OrgType           OrgType  `json:"org_type"`
	JurisdictionCount int      `json:"jurisdiction_count"`
	RiskIndicators    []string `json:"risk_indicators"`
}

// SimilarityMatch pairs a similarity score with the anonymized profile of
// the matched organization and the category distribution of its
// previously computed applicable regulations.
type SimilarityMatch struct {
	Score             float64           `json:"score"`
	Profile           AnonymizedProfile `json:"profile"`
	LawCategoryCounts map[string]int    `json:"law_category_counts"`
}
