package matching

import (
	"strings"
	"time"

	"github.com/lexfield/regscreen/internal/models"
)

// FilterPipeline narrows the corpus to a candidate set before scoring
// runs. Layers apply in strict order, each operating only on the
// survivors of the previous one:
//
//  1. status (hard)        - in-force as of the caller's clock
//  2. geography (hard)     - extent intersects operating jurisdictions
//  3. sector (soft)        - mapped families only; unmapped sector passes
//  4. size/threshold (soft) - known gates enforced; unknown size passes
//  5. role (soft)          - declared roles matched; none declared passes
//
// An empty candidate set is a valid outcome, not an error.
type FilterPipeline struct {
	tables *Tables
}

// NewFilterPipeline creates a filter pipeline over the given tables
func NewFilterPipeline(tables *Tables) *FilterPipeline {
	return &FilterPipeline{tables: tables}
}

// Run applies all layers and returns the surviving candidates. The
// returned pointers alias the snapshot's records and must be treated as
// read-only.
func (p *FilterPipeline) Run(profile *models.OrganizationProfile, snap *CorpusSnapshot, now time.Time) []*models.RegulationRecord {
	records := snap.Records()
	candidates := make([]*models.RegulationRecord, 0, len(records))
	for i := range records {
		candidates = append(candidates, &records[i])
	}

	candidates = p.filterStatus(candidates, now)
	candidates = p.filterGeography(candidates, profile.Jurisdictions())
	candidates = p.filterSector(candidates, profile.SectorCode)
	candidates = p.filterSize(candidates, profile)
	candidates = p.filterRole(candidates, profile.Roles)
	return candidates
}

// filterStatus keeps only records in force at the given instant. Hard
// layer: revoked, partially revoked and superseded records never reach
// scoring regardless of any other attribute.
func (p *FilterPipeline) filterStatus(candidates []*models.RegulationRecord, now time.Time) []*models.RegulationRecord {
	kept := candidates[:0]
	for _, rec := range candidates {
		if rec.InForceAt(now) {
			kept = append(kept, rec)
		}
	}
	return kept
}

// filterGeography keeps records whose extent intersects the
// organization's jurisdictions under the containment table. Hard layer
// whenever the organization declares any jurisdiction.
func (p *FilterPipeline) filterGeography(candidates []*models.RegulationRecord, operating []models.Jurisdiction) []*models.RegulationRecord {
	if len(operating) == 0 {
		// No geographic signal: geography cannot exclude, the sector
		// layer carries the narrowing instead.
		return candidates
	}
	kept := candidates[:0]
	for _, rec := range candidates {
		if p.tables.ExtentIntersects(rec.GeoExtent, operating) {
			kept = append(kept, rec)
		}
	}
	return kept
}

// filterSector keeps records in the families the organization's sector
// code maps to, plus universal families. Soft layer: an unmapped or
// absent sector code passes everything through, never zeroing out the
// candidate set.
func (p *FilterPipeline) filterSector(candidates []*models.RegulationRecord, sectorCode string) []*models.RegulationRecord {
	families := p.tables.FamiliesForSector(sectorCode)
	if len(families) == 0 {
		return candidates
	}

	allowed := make(map[string]struct{}, len(families))
	for _, f := range families {
		allowed[strings.ToLower(f)] = struct{}{}
	}

	kept := candidates[:0]
	for _, rec := range candidates {
		family := strings.ToLower(strings.TrimSpace(rec.Family))
		if _, ok := allowed[family]; ok {
			kept = append(kept, rec)
			continue
		}
		if p.tables.IsUniversalFamily(family) {
			kept = append(kept, rec)
		}
	}
	return kept
}

// filterSize drops records whose size gate the organization explicitly
// misses. Soft layer, fail open: unknown employee count or turnover never
// excludes, and records without gates always pass.
func (p *FilterPipeline) filterSize(candidates []*models.RegulationRecord, profile *models.OrganizationProfile) []*models.RegulationRecord {
	kept := candidates[:0]
	for _, rec := range candidates {
		if p.passesSizeGates(rec, profile) {
			kept = append(kept, rec)
		}
	}
	return kept
}

func (p *FilterPipeline) passesSizeGates(rec *models.RegulationRecord, profile *models.OrganizationProfile) bool {
	gates := p.tables.ThresholdsFor(rec)
	if len(gates) == 0 {
		return true
	}
	for _, gate := range gates {
		if gate.Evaluate(profile.EmployeeCount, profile.AnnualTurnover) != ThresholdUnmet {
			return true
		}
	}
	return false
}

// filterRole keeps records naming one of the organization's declared
// roles, or a hierarchy generalization of one, in any stakeholder field.
// Soft layer: an organization declaring no roles passes everything.
func (p *FilterPipeline) filterRole(candidates []*models.RegulationRecord, declared []string) []*models.RegulationRecord {
	if len(declared) == 0 {
		return candidates
	}

	wanted := make(map[string]struct{}, len(declared)*2)
	for _, role := range declared {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized == "" {
			continue
		}
		wanted[normalized] = struct{}{}
		for _, general := range p.tables.GeneralizationsOf(normalized) {
			wanted[strings.ToLower(general)] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return candidates
	}

	kept := candidates[:0]
	for _, rec := range candidates {
		if recordNamesAnyRole(rec, wanted) {
			kept = append(kept, rec)
		}
	}
	return kept
}

func recordNamesAnyRole(rec *models.RegulationRecord, wanted map[string]struct{}) bool {
	for _, holder := range rec.RoleHolders() {
		if _, ok := wanted[strings.ToLower(strings.TrimSpace(holder))]; ok {
			return true
		}
	}
	return false
}
