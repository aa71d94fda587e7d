package matching

import (
	"fmt"
	"math"
	"strings"

	"github.com/lexfield/regscreen/internal/models"
)

// Weights are the convex combination applied to the five dimension
// scores. They must be non-negative and sum to exactly 1, so the
// composite always lies between the weakest and strongest dimension.
type Weights struct {
	Sector    float64 `json:"sector"`
	Role      float64 `json:"role"`
	Geography float64 `json:"geography"`
	Size      float64 `json:"size"`
	Content   float64 `json:"content"`
}

// DefaultWeights returns the standard applicability weighting
func DefaultWeights() Weights {
	return Weights{
		Sector:    0.30,
		Role:      0.25,
		Geography: 0.20,
		Size:      0.15,
		Content:   0.10,
	}
}

// Validate checks non-negativity and that the weights sum to 1
func (w Weights) Validate() error {
	for _, v := range []float64{w.Sector, w.Role, w.Geography, w.Size, w.Content} {
		if v < 0 {
			return fmt.Errorf("weights must be non-negative")
		}
	}
	sum := w.Sector + w.Role + w.Geography + w.Size + w.Content
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}

// Composite combines a breakdown into the weighted applicability score
func (w Weights) Composite(b models.ScoreBreakdown) float64 {
	return w.Sector*b.Sector.Score +
		w.Role*b.Role.Score +
		w.Geography*b.Geography.Score +
		w.Size*b.Size.Score +
		w.Content*b.Content.Score
}

// Partial credits for inexact dimension matches
const (
	sectorGroupCredit   = 0.5
	roleHierarchyCredit = 0.7
	geoContainedCredit  = 0.8
	geoOperatingCredit  = 0.5
	geoNarrowerCredit   = 0.3
	sizeNeutralCredit   = 0.5
)

// Scorer computes per-dimension applicability scores for a candidate
// that survived the filter pipeline.
type Scorer struct {
	tables  *Tables
	weights Weights
}

// NewScorer creates a scorer over the given tables and weights
func NewScorer(tables *Tables, weights Weights) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{tables: tables, weights: weights}, nil
}

// Weights returns the scorer's weighting
func (s *Scorer) Weights() Weights { return s.weights }

// Score computes the five-dimension breakdown for one profile/record pair
func (s *Scorer) Score(profile *models.OrganizationProfile, rec *models.RegulationRecord) models.ScoreBreakdown {
	return models.ScoreBreakdown{
		Sector:    s.sectorScore(profile, rec),
		Role:      s.roleScore(profile, rec),
		Geography: s.geographyScore(profile, rec),
		Size:      s.sizeScore(profile, rec),
		Content:   s.contentScore(profile, rec),
	}
}

// sectorScore gives full credit for an exact family match, partial credit
// when the record's family shares the organization's top-level sector
// group, and zero otherwise.
func (s *Scorer) sectorScore(profile *models.OrganizationProfile, rec *models.RegulationRecord) models.DimensionScore {
	family := strings.ToLower(strings.TrimSpace(rec.Family))
	families := s.tables.FamiliesForSector(profile.SectorCode)
	if len(families) == 0 {
		return models.DimensionScore{Score: 0, Detail: "sector code unmapped"}
	}

	groups := make(map[string]struct{}, len(families))
	for _, f := range families {
		if strings.EqualFold(f, family) {
			return models.DimensionScore{
				Score:  1.0,
				Detail: fmt.Sprintf("family %s matches sector %s", family, profile.SectorCode),
			}
		}
		if g := s.tables.GroupForFamily(f); g != "" {
			groups[g] = struct{}{}
		}
	}

	if g := s.tables.GroupForFamily(family); g != "" {
		if _, ok := groups[g]; ok {
			return models.DimensionScore{
				Score:  sectorGroupCredit,
				Detail: fmt.Sprintf("family %s in same sector group %s", family, g),
			}
		}
	}
	return models.DimensionScore{Score: 0, Detail: fmt.Sprintf("family %s outside sector families", family)}
}

// roleScore gives full credit when a declared role is named verbatim in
// any stakeholder field, hierarchy credit when only a generalization of a
// declared role is named, and zero otherwise.
func (s *Scorer) roleScore(profile *models.OrganizationProfile, rec *models.RegulationRecord) models.DimensionScore {
	if len(profile.Roles) == 0 {
		return models.DimensionScore{Score: 0, Detail: "no roles declared"}
	}

	holders := make(map[string]struct{})
	for _, holder := range rec.RoleHolders() {
		holders[strings.ToLower(strings.TrimSpace(holder))] = struct{}{}
	}
	if len(holders) == 0 {
		return models.DimensionScore{Score: 0, Detail: "record names no stakeholder roles"}
	}

	for _, role := range profile.Roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if _, ok := holders[normalized]; ok {
			return models.DimensionScore{
				Score:  1.0,
				Detail: fmt.Sprintf("declared role %q named on record", normalized),
			}
		}
	}
	for _, role := range profile.Roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		for _, general := range s.tables.GeneralizationsOf(normalized) {
			if _, ok := holders[strings.ToLower(general)]; ok {
				return models.DimensionScore{
					Score:  roleHierarchyCredit,
					Detail: fmt.Sprintf("%q generalizes to %q named on record", normalized, general),
				}
			}
		}
	}
	return models.DimensionScore{Score: 0, Detail: "no declared role named on record"}
}

// geographyScore rates how directly the record's extent covers the
// organization: exact headquarters naming scores full, a broader
// containing jurisdiction scores high, a named non-headquarters operating
// jurisdiction scores half, an extent strictly narrower than the
// headquarters jurisdiction scores low.
func (s *Scorer) geographyScore(profile *models.OrganizationProfile, rec *models.RegulationRecord) models.DimensionScore {
	hq := profile.HQJurisdiction
	if !hq.Valid() && len(profile.OperatingJurisdictions) == 0 {
		return models.DimensionScore{Score: 0, Detail: "no jurisdictions declared"}
	}
	if hq.Valid() {
		for _, e := range rec.GeoExtent {
			if e == hq {
				return models.DimensionScore{
					Score:  1.0,
					Detail: fmt.Sprintf("extent names headquarters jurisdiction %s", hq),
				}
			}
		}
		for _, e := range rec.GeoExtent {
			if s.tables.Contains(e, hq) {
				return models.DimensionScore{
					Score:  geoContainedCredit,
					Detail: fmt.Sprintf("headquarters %s contained in extent %s", hq, e),
				}
			}
		}
	}

	for _, o := range profile.OperatingJurisdictions {
		if o == hq {
			continue
		}
		for _, e := range rec.GeoExtent {
			if e == o || s.tables.Contains(e, o) {
				return models.DimensionScore{
					Score:  geoOperatingCredit,
					Detail: fmt.Sprintf("extent covers operating jurisdiction %s", o),
				}
			}
		}
	}

	if hq.Valid() {
		for _, e := range rec.GeoExtent {
			if s.tables.Contains(hq, e) {
				return models.DimensionScore{
					Score:  geoNarrowerCredit,
					Detail: fmt.Sprintf("extent %s narrower than headquarters %s", e, hq),
				}
			}
		}
	}
	return models.DimensionScore{Score: 0, Detail: "extent outside declared jurisdictions"}
}

// sizeScore gives full credit when a known gate is explicitly satisfied
// and neutral credit when the record carries no gate or the size is
// unknown. An explicitly unmet gate scores zero; the filter normally
// removes those, so the zero is defensive.
func (s *Scorer) sizeScore(profile *models.OrganizationProfile, rec *models.RegulationRecord) models.DimensionScore {
	gates := s.tables.ThresholdsFor(rec)
	if len(gates) == 0 {
		return models.DimensionScore{Score: sizeNeutralCredit, Detail: "no size threshold attached"}
	}

	unknown := false
	for _, gate := range gates {
		switch gate.Evaluate(profile.EmployeeCount, profile.AnnualTurnover) {
		case ThresholdSatisfied:
			return models.DimensionScore{
				Score:  1.0,
				Detail: fmt.Sprintf("meets threshold: %s", gate.Detail),
			}
		case ThresholdUnknown:
			unknown = true
		}
	}
	if unknown {
		return models.DimensionScore{Score: sizeNeutralCredit, Detail: "size unknown, threshold not assessed"}
	}
	return models.DimensionScore{Score: 0, Detail: "below all attached size thresholds"}
}

// contentScore measures keyword overlap between the organization's
// declared activities and the record's title, tags and description.
// Deterministic Jaccard overlap; zero when either side has no text.
func (s *Scorer) contentScore(profile *models.OrganizationProfile, rec *models.RegulationRecord) models.DimensionScore {
	orgKeywords := profileKeywords(profile)
	if len(orgKeywords) == 0 {
		return models.DimensionScore{Score: 0, Detail: "no activities declared"}
	}
	recKeywords := recordKeywords(rec)
	if len(recKeywords) == 0 {
		return models.DimensionScore{Score: 0, Detail: "record has no descriptive text"}
	}

	overlap := keywordOverlap(orgKeywords, recKeywords)
	return models.DimensionScore{
		Score:  overlap,
		Detail: fmt.Sprintf("activity keyword overlap %.2f", overlap),
	}
}
