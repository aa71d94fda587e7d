package matching

import (
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/lexfield/regscreen/internal/models"
)

// Similarity matching defaults
const (
	defaultSimilarityThreshold = 0.8
	defaultSimilarityLimit     = 3
)

// SimilarityWeights weight the non-confidential attributes compared
// between organizations. Like the applicability weights they must sum to
// 1; an exact sector-code match also earns the sector-group credit, so a
// fully matching pair scores exactly 1.
type SimilarityWeights struct {
	SectorCode  float64 `json:"sector_code"`
	SectorGroup float64 `json:"sector_group"`
	SizeBand    float64 `json:"size_band"`
	Geography   float64 `json:"geography"`
	OrgType     float64 `json:"org_type"`
}

// DefaultSimilarityWeights returns the standard similarity weighting
func DefaultSimilarityWeights() SimilarityWeights {
	return SimilarityWeights{
		SectorCode:  0.35,
		SectorGroup: 0.25,
		SizeBand:    0.20,
		Geography:   0.15,
		OrgType:     0.05,
	}
}

// Validate checks non-negativity and that the weights sum to 1
func (w SimilarityWeights) Validate() error {
	for _, v := range []float64{w.SectorCode, w.SectorGroup, w.SizeBand, w.Geography, w.OrgType} {
		if v < 0 {
			return fmt.Errorf("similarity weights must be non-negative")
		}
	}
	sum := w.SectorCode + w.SectorGroup + w.SizeBand + w.Geography + w.OrgType
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("similarity weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}

// SimilarityCandidate pairs another organization's profile with the
// category distribution of its previously computed applicable
// regulations. The profile is consumed read-only and never surfaces in
// output except through anonymized aggregates.
type SimilarityCandidate struct {
	Profile           models.OrganizationProfile
	LawCategoryCounts map[string]int
}

// SimilarityMatcher finds already-profiled organizations resembling a new
// profile on non-confidential attributes, to prime its screening.
//
// Privacy is a hard invariant here, not configuration: candidates sharing
// the queried organization's domain are excluded outright, and matches
// expose only the anonymized aggregate shape defined by
// models.AnonymizedProfile.
type SimilarityMatcher struct {
	tables    *Tables
	weights   SimilarityWeights
	threshold float64
	limit     int
	tokenSalt []byte
}

// NewSimilarityMatcher creates a matcher over the given tables. The
// threshold is the minimum accepted score, the limit caps the number of
// returned matches, and the salt keys the anonymized org tokens.
func NewSimilarityMatcher(tables *Tables, weights SimilarityWeights, threshold float64, limit int, tokenSalt []byte) (*SimilarityMatcher, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("similarity threshold must be in [0,1], got %.2f", threshold)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("similarity limit must be positive, got %d", limit)
	}
	if len(tokenSalt) > 64 {
		return nil, fmt.Errorf("token salt exceeds 64 bytes")
	}
	return &SimilarityMatcher{
		tables:    tables,
		weights:   weights,
		threshold: threshold,
		limit:     limit,
		tokenSalt: tokenSalt,
	}, nil
}

// FindSimilar scores every candidate against the profile and returns the
// top matches above the threshold, capped to the limit, ordered by score
// descending with ties broken by org token. Candidates sharing the
// queried profile's domain never appear.
func (m *SimilarityMatcher) FindSimilar(profile *models.OrganizationProfile, candidates []SimilarityCandidate) []models.SimilarityMatch {
	if profile == nil {
		return nil
	}

	matches := make([]models.SimilarityMatch, 0, len(candidates))
	for i := range candidates {
		cand := &candidates[i]
		if cand.Profile.ID == profile.ID {
			continue
		}
		if sharesDomain(profile.Domain, cand.Profile.Domain) {
			continue
		}

		score := m.score(profile, &cand.Profile)
		if score < m.threshold {
			continue
		}
		matches = append(matches, models.SimilarityMatch{
			Score:             score,
			Profile:           m.anonymize(&cand.Profile),
			LawCategoryCounts: copyCounts(cand.LawCategoryCounts),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Profile.OrgToken < matches[j].Profile.OrgToken
	})
	if len(matches) > m.limit {
		matches = matches[:m.limit]
	}
	return matches
}

// score computes the weighted attribute similarity of two profiles
func (m *SimilarityMatcher) score(a, b *models.OrganizationProfile) float64 {
	score := 0.0

	groupA := m.sectorGroup(a.SectorCode)
	groupB := m.sectorGroup(b.SectorCode)
	codeA := strings.TrimSpace(a.SectorCode)
	codeB := strings.TrimSpace(b.SectorCode)
	if codeA != "" && codeA == codeB {
		// An exact code match implies the group match as well.
		score += m.weights.SectorCode + m.weights.SectorGroup
	} else if groupA != "" && groupA == groupB {
		score += m.weights.SectorGroup
	}

	if bandA := a.SizeBand(); bandA != models.SizeBandUnknown && bandA == b.SizeBand() {
		score += m.weights.SizeBand
	}

	if m.tables.ExtentIntersects(a.Jurisdictions(), b.Jurisdictions()) {
		score += m.weights.Geography
	}

	if a.OrgType.Valid() && a.OrgType == b.OrgType {
		score += m.weights.OrgType
	}

	return score
}

// sectorGroup resolves a sector code to its top-level group. A code
// mapping to several families takes the first family's group, matching
// the table's declaration order.
func (m *SimilarityMatcher) sectorGroup(code string) string {
	for _, family := range m.tables.FamiliesForSector(code) {
		if g := m.tables.GroupForFamily(family); g != "" {
			return g
		}
	}
	return ""
}

// anonymize reduces a profile to the aggregate shape similarity output is
// allowed to expose.
func (m *SimilarityMatcher) anonymize(p *models.OrganizationProfile) models.AnonymizedProfile {
	return models.AnonymizedProfile{
		OrgToken:          m.orgToken(p),
		SizeBand:          p.SizeBand(),
		SectorGroup:       m.sectorGroup(p.SectorCode),
		OrgType:           p.OrgType,
		JurisdictionCount: len(p.Jurisdictions()),
		RiskIndicators:    p.Attributes.TrueFlags(),
	}
}

// orgToken derives a stable opaque token from the organization id using
// keyed BLAKE2b, so repeated queries correlate without revealing the id.
func (m *SimilarityMatcher) orgToken(p *models.OrganizationProfile) string {
	h, err := blake2b.New(16, m.tokenSalt)
	if err != nil {
		// Salt length is checked at construction; an unkeyed hash is the
		// only reachable fallback.
		h, _ = blake2b.New(16, nil)
	}
	h.Write([]byte(p.ID.String()))
	return hex.EncodeToString(h.Sum(nil))
}

func sharesDomain(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	return a != "" && a == b
}

func copyCounts(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}
