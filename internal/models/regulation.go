package models

import (
	"fmt"
	"strings"
	"time"
)

// LiveStatus represents the legal status of a regulation record
type LiveStatus string

const (
	StatusInForce          LiveStatus = "in-force"
	StatusRevoked          LiveStatus = "revoked"
	StatusPartiallyRevoked LiveStatus = "partially-revoked"
	StatusSuperseded       LiveStatus = "superseded"
)

// Valid reports whether the status is one of the known enum values
func (s LiveStatus) Valid() bool {
	switch s {
	case StatusInForce, StatusRevoked, StatusPartiallyRevoked, StatusSuperseded:
		return true
	}
	return false
}

// Jurisdiction represents a geographic extent a regulation applies to
type Jurisdiction string

const (
	JurisdictionEngland         Jurisdiction = "England"
	JurisdictionWales           Jurisdiction = "Wales"
	JurisdictionScotland        Jurisdiction = "Scotland"
	JurisdictionNorthernIreland Jurisdiction = "Northern Ireland"
	JurisdictionEnglandWales    Jurisdiction = "England and Wales"
	JurisdictionGreatBritain    Jurisdiction = "Great Britain"
	JurisdictionUK              Jurisdiction = "United Kingdom"
)

// Valid reports whether the jurisdiction is one of the known enum values
func (j Jurisdiction) Valid() bool {
	switch j {
	case JurisdictionEngland, JurisdictionWales, JurisdictionScotland,
		JurisdictionNorthernIreland, JurisdictionEnglandWales,
		JurisdictionGreatBritain, JurisdictionUK:
		return true
	}
	return false
}

// jurisdictionAliases maps common register spellings to canonical values
var jurisdictionAliases = map[string]Jurisdiction{
	"england":           JurisdictionEngland,
	"wales":             JurisdictionWales,
	"scotland":          JurisdictionScotland,
	"northern ireland":  JurisdictionNorthernIreland,
	"ni":                JurisdictionNorthernIreland,
	"england and wales": JurisdictionEnglandWales,
	"england & wales":   JurisdictionEnglandWales,
	"e+w":               JurisdictionEnglandWales,
	"great britain":     JurisdictionGreatBritain,
	"gb":                JurisdictionGreatBritain,
	"united kingdom":    JurisdictionUK,
	"uk":                JurisdictionUK,
	"uk-wide":           JurisdictionUK,
}

// ParseJurisdiction resolves a free-form register label to a canonical
// jurisdiction. The second return value is false for unrecognized labels.
func ParseJurisdiction(s string) (Jurisdiction, bool) {
	j, ok := jurisdictionAliases[strings.ToLower(strings.TrimSpace(s))]
	return j, ok
}

// RegulationRecord represents a single entry in the regulation corpus.
// Records are append-only: the matching engine reads them and never
// mutates them.
type RegulationRecord struct {
	ID             string     `json:"id" db:"id"`
	Title          string     `json:"title" db:"title"`
	Year           int        `json:"year" db:"year"`
	Family         string     `json:"family" db:"family"`
	SecondaryClass string     `json:"secondary_class" db:"secondary_class"`
	Tags           []string   `json:"tags" db:"tags"`
	LiveStatus     LiveStatus `json:"live_status" db:"live_status"`
	EffectiveFrom  *time.Time `json:"effective_from" db:"effective_from"`
	EffectiveTo    *time.Time `json:"effective_to" db:"effective_to"`

	GeoExtent []Jurisdiction `json:"geo_extent" db:"geo_extent"`

	DutyHolders           []string `json:"duty_holders" db:"duty_holders"`
	PowerHolders          []string `json:"power_holders" db:"power_holders"`
	RightsHolders         []string `json:"rights_holders" db:"rights_holders"`
	ResponsibilityHolders []string `json:"responsibility_holders" db:"responsibility_holders"`
	Roles                 []string `json:"roles" db:"roles"`

	Description string `json:"description" db:"description"`

	Amends        []string   `json:"amends" db:"amends"`
	AmendedBy     []string   `json:"amended_by" db:"amended_by"`
	Rescinds      []string   `json:"rescinds" db:"rescinds"`
	RescindedBy   []string   `json:"rescinded_by" db:"rescinded_by"`
	LastAmendedAt *time.Time `json:"last_amended_at" db:"last_amended_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks the structural invariants a well-formed corpus record
// carries. Records failing validation are still screened, but scored
// defensively with a full-width confidence interval.
func (r *RegulationRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("regulation record missing id")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("regulation record %s missing title", r.ID)
	}
	if !r.LiveStatus.Valid() {
		return fmt.Errorf("regulation record %s has unknown live status %q", r.ID, r.LiveStatus)
	}
	if len(r.GeoExtent) == 0 {
		return fmt.Errorf("regulation record %s has empty geographic extent", r.ID)
	}
	for _, j := range r.GeoExtent {
		if !j.Valid() {
			return fmt.Errorf("regulation record %s has unknown jurisdiction %q", r.ID, j)
		}
	}
	return nil
}

// InForceAt reports whether the record is in force at the given instant.
// Only in-force records with a started (or unset) effective window qualify.
func (r *RegulationRecord) InForceAt(now time.Time) bool {
	if r.LiveStatus != StatusInForce {
		return false
	}
	if r.EffectiveFrom != nil && r.EffectiveFrom.After(now) {
		return false
	}
	if r.EffectiveTo != nil && !r.EffectiveTo.After(now) {
		return false
	}
	return true
}

// RecencyDate returns the date used for tie-breaking equal composite
// scores: the most recent amendment when one exists, otherwise the
// effective-from date, otherwise the zero time.
func (r *RegulationRecord) RecencyDate() time.Time {
	if r.LastAmendedAt != nil {
		return *r.LastAmendedAt
	}
	if r.EffectiveFrom != nil {
		return *r.EffectiveFrom
	}
	return time.Time{}
}

// RoleHolders returns every stakeholder designation on the record across
// all five role fields, in declaration order.
func (r *RegulationRecord) RoleHolders() []string {
	out := make([]string, 0, len(r.DutyHolders)+len(r.PowerHolders)+
		len(r.RightsHolders)+len(r.ResponsibilityHolders)+len(r.Roles))
	out = append(out, r.DutyHolders...)
	out = append(out, r.PowerHolders...)
	out = append(out, r.RightsHolders...)
	out = append(out, r.ResponsibilityHolders...)
	out = append(out, r.Roles...)
	return out
}
