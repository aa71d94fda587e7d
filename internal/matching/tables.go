package matching

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lexfield/regscreen/internal/models"
)

// Tables holds the versioned lookup data the engine matches against:
// sector-to-family mappings, sector groups, size thresholds, the role
// hierarchy and the jurisdiction containment relation. A Tables value is
// loaded once and treated as immutable configuration.
type Tables struct {
	Version string `json:"version"`

	// SectorFamilies maps SIC division prefixes (leading digits of the
	// classification code) to regulation families.
	SectorFamilies map[string][]string `json:"sector_families"`

	// UniversalFamilies apply to every organization regardless of sector
	// and are never narrowed out by the sector filter.
	UniversalFamilies []string `json:"universal_families"`

	// SectorGroups maps each family to its top-level sector group, used
	// for partial sector credit and similarity matching.
	SectorGroups map[string]string `json:"sector_groups"`

	// Thresholds are the size gates attached to threshold regulations,
	// keyed by family and optional tag.
	Thresholds []SizeThreshold `json:"thresholds"`

	// RoleHierarchy maps a lowercased role designation to the broader
	// designations it generalizes to.
	RoleHierarchy map[string][]string `json:"role_hierarchy"`

	// Containment maps each jurisdiction to the strictly broader
	// jurisdictions that contain it.
	Containment map[models.Jurisdiction][]models.Jurisdiction `json:"containment"`
}

// SizeThreshold is one size gate: a record in Family carrying Tag applies
// only to organizations meeting either bound. A zero bound means the gate
// has no bound of that kind.
type SizeThreshold struct {
	Family       string  `json:"family"`
	Tag          string  `json:"tag"`
	MinEmployees int     `json:"min_employees"`
	MinTurnover  float64 `json:"min_turnover"`
	Detail       string  `json:"detail"`
}

// ThresholdOutcome is the tri-state result of evaluating a size gate
type ThresholdOutcome int

const (
	// ThresholdSatisfied means a known bound is explicitly met
	ThresholdSatisfied ThresholdOutcome = iota
	// ThresholdUnmet means every bound is known and explicitly missed
	ThresholdUnmet
	// ThresholdUnknown means the data needed to decide is missing; the
	// pipeline fails open on this outcome
	ThresholdUnknown
)

// Evaluate checks the gate against an organization's headcount and
// turnover. Missing data never produces ThresholdUnmet.
func (t SizeThreshold) Evaluate(employees *int, turnover *float64) ThresholdOutcome {
	unknown := false

	if t.MinEmployees > 0 {
		if employees == nil {
			unknown = true
		} else if *employees >= t.MinEmployees {
			return ThresholdSatisfied
		}
	}
	if t.MinTurnover > 0 {
		if turnover == nil {
			unknown = true
		} else if *turnover >= t.MinTurnover {
			return ThresholdSatisfied
		}
	}

	if unknown {
		return ThresholdUnknown
	}
	return ThresholdUnmet
}

// FamiliesForSector maps a sector classification code to regulation
// families by longest-prefix match on the code's leading digits. Unmapped
// codes return nil, which the sector filter treats as a no-op.
func (t *Tables) FamiliesForSector(code string) []string {
	digits := leadingDigits(code)
	for l := len(digits); l > 0; l-- {
		if families, ok := t.SectorFamilies[digits[:l]]; ok {
			return families
		}
	}
	return nil
}

// GroupForFamily returns the top-level sector group of a family, or the
// empty string when the family belongs to no group.
func (t *Tables) GroupForFamily(family string) string {
	return t.SectorGroups[strings.ToLower(strings.TrimSpace(family))]
}

// IsUniversalFamily reports whether the family applies to every
// organization regardless of its sector mapping.
func (t *Tables) IsUniversalFamily(family string) bool {
	f := strings.ToLower(strings.TrimSpace(family))
	for _, u := range t.UniversalFamilies {
		if u == f {
			return true
		}
	}
	return false
}

// GeneralizationsOf returns the broader designations a role generalizes
// to, case-insensitively. Unknown roles generalize to nothing.
func (t *Tables) GeneralizationsOf(role string) []string {
	return t.RoleHierarchy[strings.ToLower(strings.TrimSpace(role))]
}

// ThresholdsFor returns the size gates attached to a record: gates in the
// record's family whose tag is empty or present among the record's tags.
func (t *Tables) ThresholdsFor(rec *models.RegulationRecord) []SizeThreshold {
	family := strings.ToLower(strings.TrimSpace(rec.Family))
	var gates []SizeThreshold
	for _, gate := range t.Thresholds {
		if gate.Family != family {
			continue
		}
		if gate.Tag == "" || hasTag(rec.Tags, gate.Tag) {
			gates = append(gates, gate)
		}
	}
	return gates
}

// Contains reports whether broader strictly contains narrower according
// to the containment table.
func (t *Tables) Contains(broader, narrower models.Jurisdiction) bool {
	for _, b := range t.Containment[narrower] {
		if b == broader {
			return true
		}
	}
	return false
}

// Overlap reports whether two jurisdictions name intersecting territory:
// equal, or one contains the other.
func (t *Tables) Overlap(a, b models.Jurisdiction) bool {
	return a == b || t.Contains(a, b) || t.Contains(b, a)
}

// ExtentIntersects reports whether any jurisdiction in a record's extent
// overlaps any jurisdiction the organization operates in.
func (t *Tables) ExtentIntersects(extent, operating []models.Jurisdiction) bool {
	for _, e := range extent {
		for _, o := range operating {
			if t.Overlap(e, o) {
				return true
			}
		}
	}
	return false
}

// Validate checks the structural consistency of the tables
func (t *Tables) Validate() error {
	if strings.TrimSpace(t.Version) == "" {
		return fmt.Errorf("tables missing version")
	}
	for prefix, families := range t.SectorFamilies {
		if leadingDigits(prefix) != prefix || prefix == "" {
			return fmt.Errorf("sector prefix %q is not numeric", prefix)
		}
		if len(families) == 0 {
			return fmt.Errorf("sector prefix %q maps to no families", prefix)
		}
	}
	for _, gate := range t.Thresholds {
		if strings.TrimSpace(gate.Family) == "" {
			return fmt.Errorf("size threshold missing family")
		}
		if gate.MinEmployees < 0 || gate.MinTurnover < 0 {
			return fmt.Errorf("size threshold for %s has negative bound", gate.Family)
		}
		if gate.MinEmployees == 0 && gate.MinTurnover == 0 {
			return fmt.Errorf("size threshold for %s has no bound", gate.Family)
		}
	}
	for role, generalizations := range t.RoleHierarchy {
		if role != strings.ToLower(role) {
			return fmt.Errorf("role hierarchy key %q must be lowercase", role)
		}
		if len(generalizations) == 0 {
			return fmt.Errorf("role %q generalizes to nothing", role)
		}
	}
	for narrower, broaders := range t.Containment {
		if !narrower.Valid() {
			return fmt.Errorf("containment table names unknown jurisdiction %q", narrower)
		}
		for _, b := range broaders {
			if !b.Valid() {
				return fmt.Errorf("containment of %q names unknown jurisdiction %q", narrower, b)
			}
			if b == narrower {
				return fmt.Errorf("jurisdiction %q cannot contain itself", narrower)
			}
		}
	}
	return nil
}

// LoadTablesJSON parses and validates a Tables document, for deployments
// that override the built-in defaults.
func LoadTablesJSON(data []byte) (*Tables, error) {
	var t Tables
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse tables: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tables: %w", err)
	}
	return &t, nil
}

// DefaultTables returns the built-in lookup tables. The sector mapping
// follows UK SIC 2007 divisions; thresholds and the role hierarchy cover
// the common threshold regulations and site designations.
func DefaultTables() *Tables {
	sectorRanges := []struct {
		lo, hi   int
		families []string
	}{
		{1, 3, []string{"agriculture"}},
		{5, 9, []string{"mining"}},
		{10, 33, []string{"manufacturing"}},
		{35, 35, []string{"energy"}},
		{36, 39, []string{"water-waste"}},
		{41, 43, []string{"construction"}},
		{45, 47, []string{"retail-wholesale"}},
		{49, 53, []string{"transport-logistics"}},
		{55, 56, []string{"hospitality"}},
		{58, 63, []string{"information-technology"}},
		{64, 66, []string{"financial-services"}},
		{68, 68, []string{"real-estate"}},
		{85, 85, []string{"education"}},
		{86, 88, []string{"health-social-care"}},
	}

	sectorFamilies := make(map[string][]string)
	for _, r := range sectorRanges {
		for d := r.lo; d <= r.hi; d++ {
			sectorFamilies[fmt.Sprintf("%02d", d)] = r.families
		}
	}

	return &Tables{
		Version:        "2025-08",
		SectorFamilies: sectorFamilies,
		UniversalFamilies: []string{
			"employment",
			"data-protection",
			"fire-safety",
		},
		SectorGroups: map[string]string{
			"construction":           "built-environment",
			"real-estate":            "built-environment",
			"manufacturing":          "industrial",
			"energy":                 "industrial",
			"water-waste":            "industrial",
			"mining":                 "industrial",
			"agriculture":            "primary",
			"retail-wholesale":       "commerce",
			"hospitality":            "commerce",
			"financial-services":     "commerce",
			"information-technology": "knowledge",
			"education":              "knowledge",
			"health-social-care":     "care",
			"transport-logistics":    "movement",
		},
		Thresholds: []SizeThreshold{
			{Family: "employment", Tag: "written-policy", MinEmployees: 5, Detail: "written health and safety policy (5+ employees)"},
			{Family: "employment", Tag: "gender-pay-gap", MinEmployees: 250, Detail: "gender pay gap reporting (250+ employees)"},
			{Family: "employment", Tag: "auto-enrolment", MinEmployees: 1, Detail: "pension auto-enrolment (any staff)"},
			{Family: "energy", Tag: "esos", MinEmployees: 250, MinTurnover: 44_000_000, Detail: "energy savings opportunity scheme (250+ employees or 44m turnover)"},
			{Family: "health-social-care", Tag: "cqc-registration", MinEmployees: 1, Detail: "care quality commission registration (any staff)"},
		},
		RoleHierarchy: map[string][]string{
			"site manager":              {"manager", "person in control"},
			"principal contractor":      {"contractor"},
			"principal designer":        {"designer"},
			"hr manager":                {"manager"},
			"managing director":         {"director", "officer"},
			"company secretary":         {"officer"},
			"data protection officer":   {"officer", "controller"},
			"fire warden":               {"responsible person"},
			"health and safety officer": {"officer", "competent person"},
		},
		Containment: map[models.Jurisdiction][]models.Jurisdiction{
			models.JurisdictionEngland:         {models.JurisdictionEnglandWales, models.JurisdictionGreatBritain, models.JurisdictionUK},
			models.JurisdictionWales:           {models.JurisdictionEnglandWales, models.JurisdictionGreatBritain, models.JurisdictionUK},
			models.JurisdictionScotland:        {models.JurisdictionGreatBritain, models.JurisdictionUK},
			models.JurisdictionNorthernIreland: {models.JurisdictionUK},
			models.JurisdictionEnglandWales:    {models.JurisdictionGreatBritain, models.JurisdictionUK},
			models.JurisdictionGreatBritain:    {models.JurisdictionUK},
		},
	}
}

func leadingDigits(s string) string {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
