package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/lexfield/regscreen/internal/models"
)

// Transformer converts parsed register data into corpus records
type Transformer struct{}

// NewTransformer creates a new transformer instance
func NewTransformer() *Transformer {
	return &Transformer{}
}

// ToRecord builds a corpus record from a search entry and the parsed
// detail page. A nil detail map yields register defaults: in force,
// UK-wide extent. The family comes from the sync job, not the page:
// register subject headings do not line up with corpus families one
// to one, so each job binds its subject to a family.
func (t *Transformer) ToRecord(entry RegisterEntry, detail map[string]interface{}, family string) (*models.RegulationRecord, error) {
	if entry.ID == "" {
		return nil, fmt.Errorf("register entry missing id")
	}

	rec := &models.RegulationRecord{
		ID:         entry.ID,
		Title:      entry.Title,
		Year:       entry.Year,
		Family:     strings.ToLower(strings.TrimSpace(family)),
		LiveStatus: models.StatusInForce,
		GeoExtent:  []models.Jurisdiction{models.JurisdictionUK},
	}

	if status, ok := detail["live_status"].(models.LiveStatus); ok {
		rec.LiveStatus = status
	}
	if extent, ok := detail["geo_extent"].([]models.Jurisdiction); ok && len(extent) > 0 {
		rec.GeoExtent = extent
	}
	if date, ok := detail["effective_from"].(*time.Time); ok {
		rec.EffectiveFrom = date
	}
	if date, ok := detail["last_amended_at"].(*time.Time); ok {
		rec.LastAmendedAt = date
	}
	if tags, ok := detail["tags"].([]string); ok {
		rec.Tags = tags
	}
	if description, ok := detail["description"].(string); ok {
		rec.Description = description
	}
	if ids, ok := detail["amends"].([]string); ok {
		rec.Amends = dropSelf(ids, entry.ID)
	}
	if ids, ok := detail["amended_by"].([]string); ok {
		rec.AmendedBy = dropSelf(ids, entry.ID)
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// dropSelf removes the record's own id from an amendment list; detail
// pages link the record itself alongside its amendments.
func dropSelf(ids []string, self string) []string {
	var out []string
	for _, id := range ids {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}
