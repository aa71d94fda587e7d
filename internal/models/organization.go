package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrgType classifies the legal form of an organization
type OrgType string

const (
	OrgTypeLimitedCompany OrgType = "limited-company"
	OrgTypePLC            OrgType = "plc"
	OrgTypePartnership    OrgType = "partnership"
	OrgTypeSoleTrader     OrgType = "sole-trader"
	OrgTypeCharity        OrgType = "charity"
	OrgTypePublicBody     OrgType = "public-body"
)

// Valid reports whether the org type is one of the known enum values
func (t OrgType) Valid() bool {
	switch t {
	case OrgTypeLimitedCompany, OrgTypePLC, OrgTypePartnership,
		OrgTypeSoleTrader, OrgTypeCharity, OrgTypePublicBody:
		return true
	}
	return false
}

// SizeBand buckets organizations by headcount for similarity matching
type SizeBand string

const (
	SizeBandMicro   SizeBand = "micro"  // fewer than 10 employees
	SizeBandSmall   SizeBand = "small"  // 10-49
	SizeBandMedium  SizeBand = "medium" // 50-249
	SizeBandLarge   SizeBand = "large"  // 250 and above
	SizeBandUnknown SizeBand = "unknown"
)

// AttrKind discriminates the typed values an extended attribute can hold
type AttrKind string

const (
	AttrBool      AttrKind = "bool"
	AttrNumber    AttrKind = "number"
	AttrString    AttrKind = "string"
	AttrStringSet AttrKind = "string-set"
)

// AttrValue is a tagged variant for extended profile attributes. Keys are
// discovered progressively by the enrichment collaborator, so the map is
// open, but every value is shape-checked at the boundary instead of being
// dispatched dynamically per key.
type AttrValue struct {
	Kind   AttrKind `json:"kind"`
	Bool   bool     `json:"bool,omitempty"`
	Number float64  `json:"number,omitempty"`
	Str    string   `json:"string,omitempty"`
	StrSet []string `json:"string_set,omitempty"`
}

// BoolAttr builds a boolean attribute value
func BoolAttr(v bool) AttrValue { return AttrValue{Kind: AttrBool, Bool: v} }

// NumberAttr builds a numeric attribute value
func NumberAttr(v float64) AttrValue { return AttrValue{Kind: AttrNumber, Number: v} }

// StringAttr builds a string attribute value
func StringAttr(v string) AttrValue { return AttrValue{Kind: AttrString, Str: v} }

// StringSetAttr builds a string-set attribute value
func StringSetAttr(v ...string) AttrValue { return AttrValue{Kind: AttrStringSet, StrSet: v} }

// Validate checks the variant tag and the shape it implies
func (v AttrValue) Validate() error {
	switch v.Kind {
	case AttrBool, AttrNumber, AttrString:
		return nil
	case AttrStringSet:
		for _, s := range v.StrSet {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("string-set attribute contains empty entry")
			}
		}
		return nil
	}
	return fmt.Errorf("unknown attribute kind %q", v.Kind)
}

// IsTrue reports whether the value is a boolean attribute set to true
func (v AttrValue) IsTrue() bool {
	return v.Kind == AttrBool && v.Bool
}

// AttributeMap holds the sparse extended attributes of a profile as JSON
type AttributeMap map[string]AttrValue

// Value implements driver.Valuer for AttributeMap
func (m AttributeMap) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(AttributeMap{})
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for AttributeMap
func (m *AttributeMap) Scan(value interface{}) error {
	if value == nil {
		*m = AttributeMap{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into AttributeMap", value)
	}

	return json.Unmarshal(bytes, m)
}

// Validate checks every attribute value's shape
func (m AttributeMap) Validate() error {
	for key, v := range m {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("attribute map contains empty key")
		}
		if err := v.Validate(); err != nil {
			return fmt.Errorf("attribute %q: %w", key, err)
		}
	}
	return nil
}

// TrueFlags returns the keys of boolean attributes set to true, sorted,
// which is the risk-indicator view used by anonymized similarity output.
func (m AttributeMap) TrueFlags() []string {
	flags := make([]string, 0, len(m))
	for key, v := range m {
		if v.IsTrue() {
			flags = append(flags, key)
		}
	}
	sort.Strings(flags)
	return flags
}

// OrganizationProfile represents the structured profile screened against
// the regulation corpus. The matcher consumes it read-only; enrichment is
// an external collaborator's concern.
type OrganizationProfile struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Domain     string    `json:"domain" db:"domain"`
	SectorCode string    `json:"sector_code" db:"sector_code"`
	OrgType    OrgType   `json:"org_type" db:"org_type"`

	HQJurisdiction         Jurisdiction   `json:"hq_jurisdiction" db:"hq_jurisdiction"`
	OperatingJurisdictions []Jurisdiction `json:"operating_jurisdictions" db:"operating_jurisdictions"`

	EmployeeCount  *int     `json:"employee_count" db:"employee_count"`
	AnnualTurnover *float64 `json:"annual_turnover" db:"annual_turnover"`

	Roles      []string     `json:"roles" db:"roles"`
	Activities []string     `json:"activities" db:"activities"`
	Attributes AttributeMap `json:"attributes" db:"attributes"`

	// LastScreenedAt is stamped by the store when screening results are
	// persisted; the pipeline uses it to find stale profiles.
	LastScreenedAt *time.Time `json:"last_screened_at" db:"last_screened_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// completeness weights favor the fields most predictive of applicability:
// sector and geography drive the hard filters, size gates threshold
// regulations, roles and activities drive the soft dimensions.
var completenessWeights = []struct {
	weight    float64
	populated func(*OrganizationProfile) bool
}{
	{0.20, func(p *OrganizationProfile) bool { return strings.TrimSpace(p.SectorCode) != "" }},
	{0.15, func(p *OrganizationProfile) bool { return len(p.OperatingJurisdictions) > 0 }},
	{0.10, func(p *OrganizationProfile) bool { return p.HQJurisdiction.Valid() }},
	{0.15, func(p *OrganizationProfile) bool { return p.EmployeeCount != nil }},
	{0.05, func(p *OrganizationProfile) bool { return p.AnnualTurnover != nil }},
	{0.15, func(p *OrganizationProfile) bool { return len(p.Roles) > 0 }},
	{0.15, func(p *OrganizationProfile) bool { return len(p.Activities) > 0 }},
	{0.05, func(p *OrganizationProfile) bool { return len(p.Attributes) > 0 }},
}

// Completeness scores how fully the profile is populated, in [0,1]
func (p *OrganizationProfile) Completeness() float64 {
	total := 0.0
	for _, f := range completenessWeights {
		if f.populated(p) {
			total += f.weight
		}
	}
	if total > 1 {
		total = 1
	}
	return total
}

// Screenable reports whether the profile carries the minimal identity
// needed to screen at all: a sector code or at least one jurisdiction.
func (p *OrganizationProfile) Screenable() bool {
	if strings.TrimSpace(p.SectorCode) != "" {
		return true
	}
	if p.HQJurisdiction.Valid() {
		return true
	}
	return len(p.OperatingJurisdictions) > 0
}

// Jurisdictions returns the operational jurisdiction set with the
// headquarters jurisdiction folded in, deduplicated, order preserved.
func (p *OrganizationProfile) Jurisdictions() []Jurisdiction {
	seen := make(map[Jurisdiction]struct{}, len(p.OperatingJurisdictions)+1)
	out := make([]Jurisdiction, 0, len(p.OperatingJurisdictions)+1)
	for _, j := range p.OperatingJurisdictions {
		if _, dup := seen[j]; !dup {
			seen[j] = struct{}{}
			out = append(out, j)
		}
	}
	if p.HQJurisdiction.Valid() {
		if _, dup := seen[p.HQJurisdiction]; !dup {
			out = append(out, p.HQJurisdiction)
		}
	}
	return out
}

// SizeBand buckets the profile's headcount for similarity matching
func (p *OrganizationProfile) SizeBand() SizeBand {
	if p.EmployeeCount == nil {
		return SizeBandUnknown
	}
	switch n := *p.EmployeeCount; {
	case n < 10:
		return SizeBandMicro
	case n < 50:
		return SizeBandSmall
	case n < 250:
		return SizeBandMedium
	default:
		return SizeBandLarge
	}
}

// Validate checks the structural shape of the profile. A profile can be
// valid yet not screenable; screenability is the engine's precondition.
func (p *OrganizationProfile) Validate() error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("organization profile missing id")
	}
	if p.HQJurisdiction != "" && !p.HQJurisdiction.Valid() {
		return fmt.Errorf("unknown headquarters jurisdiction %q", p.HQJurisdiction)
	}
	for _, j := range p.OperatingJurisdictions {
		if !j.Valid() {
			return fmt.Errorf("unknown operating jurisdiction %q", j)
		}
	}
	if p.OrgType != "" && !p.OrgType.Valid() {
		return fmt.Errorf("unknown organization type %q", p.OrgType)
	}
	if p.EmployeeCount != nil && *p.EmployeeCount < 0 {
		return fmt.Errorf("employee count cannot be negative")
	}
	if p.AnnualTurnover != nil && *p.AnnualTurnover < 0 {
		return fmt.Errorf("annual turnover cannot be negative")
	}
	return p.Attributes.Validate()
}
