package matching

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/lexfield/regscreen/internal/models"
)

func newTestMatcher(t *testing.T) *SimilarityMatcher {
	t.Helper()
	matcher, err := NewSimilarityMatcher(DefaultTables(), DefaultSimilarityWeights(),
		defaultSimilarityThreshold, defaultSimilarityLimit, []byte("test-salt"))
	if err != nil {
		t.Fatalf("Failed to build matcher: %v", err)
	}
	return matcher
}

func similarOrg(id, domain, sector string) models.OrganizationProfile {
	return models.OrganizationProfile{
		ID:                     uuid.MustParse(id),
		Name:                   "Candidate " + id[:8],
		Domain:                 domain,
		SectorCode:             sector,
		OrgType:                models.OrgTypeLimitedCompany,
		HQJurisdiction:         models.JurisdictionEngland,
		OperatingJurisdictions: []models.Jurisdiction{models.JurisdictionEngland},
		EmployeeCount:          intPtr(75),
	}
}

func TestSimilarityMatcher_FindSimilar(t *testing.T) {
	matcher := newTestMatcher(t)
	query := constructionProfile() // sector 41201, medium, England, ltd

	twin := similarOrg("0aa90b3e-41ff-4eb3-a0ef-9e1f0c1c8a01", "twinbuild.co.uk", "41201")
	sameGroup := similarOrg("1bb90b3e-41ff-4eb3-a0ef-9e1f0c1c8a02", "lettings.co.uk", "68100") // real-estate
	unrelated := similarOrg("2cc90b3e-41ff-4eb3-a0ef-9e1f0c1c8a03", "haulage.co.uk", "49410")  // transport

	matches := matcher.FindSimilar(query, []SimilarityCandidate{
		{Profile: twin, LawCategoryCounts: map[string]int{"construction": 12, "employment": 5}},
		{Profile: sameGroup},
		{Profile: unrelated},
	})

	// Exact sector code implies the group credit too, so the twin scores
	// 0.35+0.25+0.20+0.15+0.05 = 1.0; the same-group candidate tops out
	// at 0.65 and stays below the 0.8 threshold.
	if len(matches) != 1 {
		t.Fatalf("Expected exactly the twin to match, got %d matches", len(matches))
	}
	if matches[0].Score != 1.0 {
		t.Errorf("Expected twin score 1.0, got %.4f", matches[0].Score)
	}
	if matches[0].LawCategoryCounts["construction"] != 12 {
		t.Errorf("Expected aggregated law categories to carry over, got %v", matches[0].LawCategoryCounts)
	}
}

func TestSimilarityMatcher_DomainPrivacyInvariant(t *testing.T) {
	matcher := newTestMatcher(t)
	query := constructionProfile()

	sibling := similarOrg("3dd90b3e-41ff-4eb3-a0ef-9e1f0c1c8a04", "HarwellGroundworks.CO.UK", "41201")

	matches := matcher.FindSimilar(query, []SimilarityCandidate{{Profile: sibling}})
	if len(matches) != 0 {
		t.Fatal("Organizations sharing the queried domain must never be returned, regardless of score")
	}

	// The queried organization itself is likewise excluded.
	self := *query
	matches = matcher.FindSimilar(query, []SimilarityCandidate{{Profile: self}})
	if len(matches) != 0 {
		t.Fatal("The queried organization must never match itself")
	}
}

func TestSimilarityMatcher_AnonymizedOutput(t *testing.T) {
	matcher := newTestMatcher(t)
	query := constructionProfile()

	twin := similarOrg("4ee90b3e-41ff-4eb3-a0ef-9e1f0c1c8a05", "twinbuild.co.uk", "41201")
	twin.Attributes = models.AttributeMap{
		"work_at_height":            models.BoolAttr(true),
		"uses_hazardous_substances": models.BoolAttr(true),
		"night_work":                models.BoolAttr(false),
		"site_count":                models.NumberAttr(4),
	}

	matches := matcher.FindSimilar(query, []SimilarityCandidate{{Profile: twin}})
	if len(matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(matches))
	}

	anon := matches[0].Profile
	if anon.OrgToken == "" || anon.OrgToken == twin.ID.String() {
		t.Error("Org token must be present and must not be the raw id")
	}
	if strings.Contains(anon.OrgToken, "twinbuild") {
		t.Error("Org token must not leak the domain")
	}
	if anon.SizeBand != models.SizeBandMedium {
		t.Errorf("Expected size band medium, got %s", anon.SizeBand)
	}
	if anon.SectorGroup != "built-environment" {
		t.Errorf("Expected sector group built-environment, got %s", anon.SectorGroup)
	}
	wantFlags := []string{"uses_hazardous_substances", "work_at_height"}
	if len(anon.RiskIndicators) != len(wantFlags) {
		t.Fatalf("Expected risk indicators %v, got %v", wantFlags, anon.RiskIndicators)
	}
	for i, flag := range wantFlags {
		if anon.RiskIndicators[i] != flag {
			t.Errorf("Expected sorted risk indicators %v, got %v", wantFlags, anon.RiskIndicators)
		}
	}

	// Tokens are stable across calls and distinct across organizations.
	again := matcher.FindSimilar(query, []SimilarityCandidate{{Profile: twin}})
	if again[0].Profile.OrgToken != anon.OrgToken {
		t.Error("Org token must be stable for the same organization")
	}
	other := similarOrg("5ff90b3e-41ff-4eb3-a0ef-9e1f0c1c8a06", "otherbuild.co.uk", "41201")
	otherMatches := matcher.FindSimilar(query, []SimilarityCandidate{{Profile: other}})
	if otherMatches[0].Profile.OrgToken == anon.OrgToken {
		t.Error("Distinct organizations must get distinct tokens")
	}
}

func TestSimilarityMatcher_CapAndOrdering(t *testing.T) {
	matcher := newTestMatcher(t)
	query := constructionProfile()

	ids := []string{
		"6aa90b3e-41ff-4eb3-a0ef-9e1f0c1c8a07",
		"7bb90b3e-41ff-4eb3-a0ef-9e1f0c1c8a08",
		"8cc90b3e-41ff-4eb3-a0ef-9e1f0c1c8a09",
		"9dd90b3e-41ff-4eb3-a0ef-9e1f0c1c8a0a",
		"aee90b3e-41ff-4eb3-a0ef-9e1f0c1c8a0b",
	}
	candidates := make([]SimilarityCandidate, 0, len(ids))
	for i, id := range ids {
		cand := similarOrg(id, "cand"+string(rune('a'+i))+".co.uk", "41201")
		candidates = append(candidates, SimilarityCandidate{Profile: cand})
	}

	matches := matcher.FindSimilar(query, candidates)
	if len(matches) != 3 {
		t.Fatalf("Expected the cap of 3 matches, got %d", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i-1].Score < matches[i].Score {
			t.Error("Matches must be ordered by score descending")
		}
		if matches[i-1].Score == matches[i].Score &&
			matches[i-1].Profile.OrgToken > matches[i].Profile.OrgToken {
			t.Error("Equal scores must be ordered by org token for determinism")
		}
	}
}

func TestSimilarityMatcher_SizeBandBuckets(t *testing.T) {
	matcher := newTestMatcher(t)
	query := constructionProfile() // 75 employees: medium

	// 120 employees also lands in the medium band: raw numbers are
	// bucketed, never compared directly.
	bucketed := similarOrg("bff90b3e-41ff-4eb3-a0ef-9e1f0c1c8a0c", "bucket.co.uk", "41201")
	bucketed.EmployeeCount = intPtr(120)

	matches := matcher.FindSimilar(query, []SimilarityCandidate{{Profile: bucketed}})
	if len(matches) != 1 || matches[0].Score != 1.0 {
		t.Fatalf("Expected same-band candidate to take full size credit, got %v", matches)
	}

	// Unknown headcount earns no size credit on either side.
	unknown := similarOrg("cff90b3e-41ff-4eb3-a0ef-9e1f0c1c8a0d", "unknown.co.uk", "41201")
	unknown.EmployeeCount = nil
	matches = matcher.FindSimilar(query, []SimilarityCandidate{{Profile: unknown}})
	if len(matches) != 1 {
		t.Fatalf("Expected candidate above threshold without size credit, got %d", len(matches))
	}
	if matches[0].Score != 0.8 {
		t.Errorf("Expected 0.8 without size credit, got %.4f", matches[0].Score)
	}
}

func TestEngine_FindSimilar(t *testing.T) {
	engine := newTestEngine(t, WithTokenSalt([]byte("query-salt")))
	query := constructionProfile()

	twin := similarOrg("dff90b3e-41ff-4eb3-a0ef-9e1f0c1c8a0e", "twinbuild.co.uk", "41201")
	matches := engine.FindSimilar(query, []SimilarityCandidate{
		{Profile: twin, LawCategoryCounts: map[string]int{"construction": 9}},
	})
	if len(matches) != 1 {
		t.Fatalf("Expected 1 match through the engine, got %d", len(matches))
	}
	if matches[0].LawCategoryCounts["construction"] != 9 {
		t.Errorf("Expected law category counts to pass through, got %v", matches[0].LawCategoryCounts)
	}
}
